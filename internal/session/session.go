// Package session runs live detection for one camera: frames flow through
// the sampler, scorer and matcher into the rep machine, and confirmed reps
// are committed to the store and handed to the notifier.
//
// All detection state is owned by a single goroutine. Other goroutines talk
// to it through Complete, Retry, Snapshot and Stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/motion"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/reps"
	"github.com/julianstephens/repcam/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
)

type Options struct {
	Matcher          motion.MatcherConfig
	Reps             reps.Config
	FrameInterval    time.Duration
	TickInterval     time.Duration
	RolloverInterval time.Duration
	// Now drives the hold countdown.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Matcher:          motion.DefaultMatcherConfig(),
		Reps:             reps.DefaultConfig(),
		FrameInterval:    constants.FrameInterval,
		TickInterval:     constants.HoldTickInterval,
		RolloverInterval: constants.RolloverInterval,
		Now:              time.Now,
	}
}

// Snapshot is a point-in-time view of a session for display.
type Snapshot struct {
	Device       string
	Running      bool
	Camera       camera.State
	CameraErr    error
	Frames       uint64
	HasSignature bool
	Match        motion.MatchState
	Reps         reps.Status

	HabitName      string
	Day            string
	Count          int
	Goal           int
	Streak         int
	LongestStreak  int
	DeadlineTime   string
	DeadlineMissed bool
	LastEvent      *models.CompletionEvent
}

type completion struct {
	event   models.CompletionEvent
	counted bool
	err     error
}

type retryRequest struct {
	ctx   context.Context
	reply chan error
}

type Session struct {
	src   camera.Source
	store *store.Store
	disp  *notifier.Dispatcher
	opts  Options

	sampler *motion.Sampler
	scorer  *motion.Scorer
	matcher *motion.Matcher
	machine *reps.Machine
	lastSeq uint64
	camErr  error
	// day is the day key the detection state belongs to
	day     string

	manual  chan chan completion
	retry   chan retryRequest
	updates chan Snapshot

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	mu   sync.Mutex
	snap Snapshot
}

// New prepares a session for the configured habit. disp may be nil.
func New(src camera.Source, st *store.Store, disp *notifier.Dispatcher, opts Options) (*Session, error) {
	state := st.Snapshot()
	if state.Habit == nil {
		return nil, store.ErrNoHabit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if disp == nil {
		disp = notifier.NewDispatcher(constants.SinkTimeout)
	}

	var sig *models.MotionSignature
	if state.Habit.HasSignature() {
		sig = state.Habit.MotionSignature
	}

	s := &Session{
		src:     src,
		store:   st,
		disp:    disp,
		opts:    opts,
		sampler: motion.NewSampler(),
		scorer:  motion.NewScorer(),
		matcher: motion.NewMatcher(opts.Matcher, sig),
		machine: reps.New(opts.Reps, state.Habit.MovementDuration),
		day:     st.Today(),
		manual:  make(chan chan completion),
		retry:   make(chan retryRequest),
		updates: make(chan Snapshot, 1),
	}
	s.snap.Device = src.Device()
	s.snap.Camera = camera.StatePending
	s.snap.HasSignature = s.matcher.HasSignature()
	s.machine.SetGoalReached(st.IsTodayComplete())
	s.refreshHabit()
	return s, nil
}

func (s *Session) Device() string { return s.src.Device() }

// Start acquires the camera and starts the detection loop. The loop runs
// even when acquisition fails, so manual completions, deadline checks and
// day rollover keep working; the acquisition error is returned and shown in
// the snapshot.
func (s *Session) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.done != nil || s.stopped {
		s.runMu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.runMu.Unlock()

	openErr := s.src.Open(ctx)
	s.camErr = openErr
	if openErr != nil {
		logger.Warn("Camera unavailable, manual completion only", "device", s.Device(), "error", openErr)
	}

	s.mu.Lock()
	s.snap.Running = true
	s.snap.Camera = s.src.State()
	s.snap.CameraErr = openErr
	s.mu.Unlock()
	s.publish()

	go s.loop(loopCtx, s.done)

	if openErr != nil {
		return fmt.Errorf("camera %s: %w", s.Device(), openErr)
	}
	logger.Info("Detection session started", "device", s.Device(), "signature", s.matcher.HasSignature())
	return nil
}

func (s *Session) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	frames := time.NewTicker(s.opts.FrameInterval)
	defer frames.Stop()
	ticks := time.NewTicker(s.opts.TickInterval)
	defer ticks.Stop()
	rollover := time.NewTicker(s.opts.RolloverInterval)
	defer rollover.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.C:
			s.processFrame()
		case <-ticks.C:
			s.tick()
		case <-rollover.C:
			s.rollover()
		case reply := <-s.manual:
			reply <- s.complete(true)
		case req := <-s.retry:
			req.reply <- s.reopen(req.ctx)
		}
	}
}

// processFrame scores the newest frame if the source produced one since
// the last call.
func (s *Session) processFrame() {
	if s.camErr != nil {
		return
	}
	if err := s.src.Err(); err != nil {
		s.camErr = err
		logger.Warn("Camera feed lost", "device", s.Device(), "error", err)
		s.mu.Lock()
		s.snap.Camera = s.src.State()
		s.snap.CameraErr = err
		s.mu.Unlock()
		s.publish()
		return
	}

	img, seq, ok := s.src.Latest()
	if !ok || seq == s.lastSeq {
		return
	}
	s.lastSeq = seq

	buf := s.sampler.Sample(img)
	if buf == nil {
		return
	}
	st := s.matcher.Update(s.scorer.Next(buf))
	s.machine.Observe(st, s.opts.Now())

	s.mu.Lock()
	s.snap.Frames++
	s.snap.Camera = camera.StateActive
	s.snap.Match = st
	s.snap.Reps = s.machine.Status()
	s.mu.Unlock()
}

func (s *Session) tick() {
	s.syncDay()
	if s.machine.Tick(s.opts.Now()) {
		s.complete(false)
	}

	if passed, err := s.store.DeadlinePassed(); err != nil {
		logger.Debug("Deadline check failed", "error", err)
	} else if passed {
		expired, err := s.store.HandleDeadlineExpired()
		if err != nil {
			logger.Error("Failed to expire deadline", "error", err)
		} else if expired {
			s.mu.Lock()
			s.snap.DeadlineMissed = true
			s.mu.Unlock()
		}
	}

	s.machine.SetGoalReached(s.store.IsTodayComplete())
	s.refreshHabit()
	s.publish()
}

func (s *Session) rollover() {
	if _, err := s.store.CheckDayRollover(); err != nil {
		logger.Error("Day rollover failed", "error", err)
		return
	}
	if s.syncDay() {
		s.refreshHabit()
		s.publish()
	}
}

// syncDay clears all detection state when the store's day differs from the
// one the state was built on. It reports whether it did.
func (s *Session) syncDay() bool {
	today := s.store.Today()
	if today == s.day {
		return false
	}
	logger.Debug("New day, resetting detection", "from", s.day, "to", today)
	s.day = today
	s.machine.Reset()
	s.matcher.Reset()
	s.scorer.Reset()
	s.machine.SetGoalReached(s.store.IsTodayComplete())

	s.mu.Lock()
	s.snap.DeadlineMissed = false
	s.snap.LastEvent = nil
	s.snap.Reps = s.machine.Status()
	s.mu.Unlock()
	return true
}

// complete commits one rep and dispatches it when it counted.
func (s *Session) complete(manual bool) completion {
	s.syncDay()
	ev, counted, err := s.store.RecordCompletion(manual)
	if err != nil {
		logger.Error("Failed to record completion", "error", err)
		return completion{err: err}
	}
	if !counted {
		logger.Debug("Completion ignored, goal already met")
		return completion{}
	}

	logger.Info("Rep completed", "count", ev.Count, "goal", ev.Goal, "streak", ev.Streak, "manual", manual)
	s.disp.Dispatch(ev)
	if ev.GoalReached {
		s.machine.SetGoalReached(true)
	}

	s.mu.Lock()
	s.snap.LastEvent = &ev
	s.mu.Unlock()
	s.refreshHabit()
	s.publish()
	return completion{event: ev, counted: true}
}

// refreshHabit copies the store's view of today into the snapshot.
func (s *Session) refreshHabit() {
	state := s.store.Snapshot()
	day := s.store.Today()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Day = day
	s.snap.Reps = s.machine.Status()
	s.snap.Streak = state.Streak
	s.snap.LongestStreak = state.LongestStreak
	s.snap.Count = state.TodayCompletedCount
	if state.CountDate != day {
		s.snap.Count = state.DailyRecords[day].CompletedCount
	}
	if state.Habit != nil {
		s.snap.HabitName = state.Habit.Name
		s.snap.Goal = state.Habit.DailyGoal
		s.snap.DeadlineTime = state.Habit.DeadlineTime
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()
	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- snap:
		default:
		}
	}
}

// Updates delivers the latest snapshot after notable changes. Only the most
// recent snapshot is kept.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	if s.snap.LastEvent != nil {
		ev := *s.snap.LastEvent
		snap.LastEvent = &ev
	}
	return snap
}

// Complete records a manual rep. It goes through the loop while the session
// runs so it is serialized with detected reps.
func (s *Session) Complete(ctx context.Context) (models.CompletionEvent, bool, error) {
	s.runMu.Lock()
	running := s.done != nil
	s.runMu.Unlock()

	if !running {
		c := s.complete(true)
		return c.event, c.counted, c.err
	}

	reply := make(chan completion, 1)
	select {
	case s.manual <- reply:
	case <-ctx.Done():
		return models.CompletionEvent{}, false, ctx.Err()
	}
	select {
	case c := <-reply:
		return c.event, c.counted, c.err
	case <-ctx.Done():
		return models.CompletionEvent{}, false, ctx.Err()
	}
}

// Retry closes and reopens the camera after an acquisition failure or a
// lost feed. The scorer and matcher start over; the rep machine keeps its
// state and stays frozen until frames arrive.
func (s *Session) Retry(ctx context.Context) error {
	s.runMu.Lock()
	running := s.done != nil
	s.runMu.Unlock()
	if !running {
		return ErrNotRunning
	}

	req := retryRequest{ctx: ctx, reply: make(chan error, 1)}
	select {
	case s.retry <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) reopen(ctx context.Context) error {
	if err := s.src.Close(); err != nil {
		logger.Debug("Closing camera before retry failed", "error", err)
	}
	err := s.src.Open(ctx)
	s.camErr = err
	s.scorer.Reset()
	s.matcher.Reset()

	s.mu.Lock()
	s.snap.Camera = s.src.State()
	s.snap.CameraErr = err
	s.mu.Unlock()
	s.publish()

	if err != nil {
		logger.Warn("Camera retry failed", "device", s.Device(), "error", err)
		return fmt.Errorf("camera %s: %w", s.Device(), err)
	}
	logger.Info("Camera reacquired", "device", s.Device())
	return nil
}

// Stop ends the loop, releases the camera and waits for in-flight
// deliveries up to the sink timeout. It is safe to call more than once.
func (s *Session) Stop() error {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	already := s.stopped
	s.stopped = true
	s.runMu.Unlock()

	if already {
		return nil
	}
	if cancel != nil {
		cancel()
		<-done
	}

	err := s.src.Close()
	if !s.disp.Wait(constants.SinkTimeout) {
		logger.Warn("Completion deliveries still running after stop")
	}

	s.mu.Lock()
	s.snap.Running = false
	s.snap.Camera = s.src.State()
	s.mu.Unlock()
	s.publish()

	logger.Info("Detection session stopped", "device", s.Device())
	return err
}
