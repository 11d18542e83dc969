package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/reps"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/store"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

var (
	black = solid(color.Black)
	white = solid(color.White)
)

// fakeSource produces a new frame on every Latest call. Moving sources
// alternate black and white so every frame scores full motion. failAt only
// applies to the first connection.
type fakeSource struct {
	device  string
	openErr error
	moving  bool
	failAt  uint64

	mu     sync.Mutex
	seq    uint64
	state  camera.State
	err    error
	opened int
	closed int
}

func (f *fakeSource) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		f.err = f.openErr
		f.state = camera.StateFor(f.openErr)
		return f.openErr
	}
	if f.opened > 0 {
		f.failAt = 0
	}
	f.opened++
	f.err = nil
	f.state = camera.StateActive
	return nil
}

func (f *fakeSource) setOpenErr(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *fakeSource) setMoving(moving bool) {
	f.mu.Lock()
	f.moving = moving
	f.mu.Unlock()
}

func (f *fakeSource) Latest() (image.Image, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if f.failAt > 0 && f.seq >= f.failAt && f.err == nil {
		f.err = camera.ErrDisconnected
		f.state = camera.StateDisconnected
	}
	if f.moving && f.seq%2 == 0 {
		return white, f.seq, true
	}
	return black, f.seq, true
}

func (f *fakeSource) State() camera.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.state == camera.StateActive {
		f.state = camera.StateStopped
	}
	return nil
}

func (f *fakeSource) Device() string {
	if f.device == "" {
		return "fake://cam0"
	}
	return f.device
}

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type lockedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *lockedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// secondClock moves forward one second per reading, so every hold tick is
// a full second after the previous one.
func secondClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.CompletionEvent
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, ev models.CompletionEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fixture struct {
	clock *lockedClock
	store *store.Store
	sink  *recordingSink
	disp  *notifier.Dispatcher
}

func newFixture(t *testing.T, habit models.Habit) *fixture {
	t.Helper()
	p := storage.NewJSONStore(filepath.Join(t.TempDir(), "repcam.json"))
	if err := p.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	clock := &lockedClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	st := store.New(p, store.WithClock(clock.Now), store.WithLocation(time.UTC))
	if err := st.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := st.SetHabit(habit); err != nil {
		t.Fatalf("SetHabit failed: %v", err)
	}
	sink := &recordingSink{}
	return &fixture{
		clock: clock,
		store: st,
		sink:  sink,
		disp:  notifier.NewDispatcher(time.Second, sink),
	}
}

func testHabit() models.Habit {
	return models.Habit{
		Name:             "Squats",
		DailyGoal:        3,
		MovementDuration: 2,
		DeadlineTime:     "23:59",
	}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.FrameInterval = time.Millisecond
	opts.TickInterval = 10 * time.Millisecond
	opts.RolloverInterval = time.Hour
	opts.Now = secondClock()
	return opts
}

func (f *fixture) start(t *testing.T, src camera.Source, opts Options) *Session {
	t.Helper()
	s, err := New(src, f.store, f.disp, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionCountsRepsUpToGoal(t *testing.T) {
	f := newFixture(t, testHabit())
	src := &fakeSource{moving: true}
	s := f.start(t, src, fastOptions())

	eventually(t, "three reps", func() bool { return f.store.Snapshot().TodayCompletedCount == 3 })

	// the goal is met, so the machine must not arm again
	time.Sleep(150 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	state := f.store.Snapshot()
	if state.TodayCompletedCount != 3 || state.DailyRecords["2026-03-10"].CompletedCount != 3 {
		t.Errorf("count = %d, record = %d, want 3", state.TodayCompletedCount, state.DailyRecords["2026-03-10"].CompletedCount)
	}
	if state.Streak != 1 {
		t.Errorf("streak = %d, want 1", state.Streak)
	}
	if f.sink.count() != 3 {
		t.Errorf("delivered %d events, want 3", f.sink.count())
	}

	snap := s.Snapshot()
	if snap.Running {
		t.Error("snapshot still running after Stop")
	}
	if snap.Count != 3 || snap.Goal != 3 || snap.HabitName != "Squats" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.LastEvent == nil || !snap.LastEvent.GoalReached || snap.LastEvent.Manual {
		t.Errorf("unexpected last event: %+v", snap.LastEvent)
	}
	if !snap.Reps.GoalReached {
		t.Error("machine does not know the goal is reached")
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
}

func TestSessionStillFramesDoNotComplete(t *testing.T) {
	f := newFixture(t, testHabit())
	s := f.start(t, &fakeSource{}, fastOptions())

	eventually(t, "frames", func() bool { return s.Snapshot().Frames > 20 })
	time.Sleep(100 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Match.MotionLevel != 0 || snap.Match.MatchScore != 0 {
		t.Errorf("still frames scored %+v", snap.Match)
	}
	if snap.Reps.Phase != reps.Idle {
		t.Errorf("phase = %v, want idle", snap.Reps.Phase)
	}
	if f.store.Snapshot().TodayCompletedCount != 0 {
		t.Error("still frames produced a completion")
	}
}

func TestSessionManualCompletion(t *testing.T) {
	f := newFixture(t, testHabit())
	s := f.start(t, &fakeSource{}, fastOptions())

	ev, counted, err := s.Complete(context.Background())
	if err != nil || !counted {
		t.Fatalf("Complete() = %v, %v", counted, err)
	}
	if !ev.Manual || ev.Count != 1 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if snap := s.Snapshot(); snap.LastEvent == nil || snap.LastEvent.ID != ev.ID {
		t.Errorf("snapshot missing the manual event: %+v", snap.LastEvent)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := s.Complete(context.Background()); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}
	if _, counted, err := s.Complete(context.Background()); err != nil || counted {
		t.Errorf("completion after the goal: counted=%v err=%v", counted, err)
	}
}

func TestSessionCameraDenied(t *testing.T) {
	f := newFixture(t, testHabit())
	src := &fakeSource{openErr: camera.ErrPermissionDenied}
	s, err := New(src, f.store, f.disp, fastOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("Start() = %v, want ErrPermissionDenied", err)
	}
	snap := s.Snapshot()
	if !snap.Running || snap.Camera != camera.StateDenied {
		t.Errorf("snapshot = running %v camera %v", snap.Running, snap.Camera)
	}

	if _, counted, err := s.Complete(context.Background()); err != nil || !counted {
		t.Errorf("manual completion without camera: counted=%v err=%v", counted, err)
	}
	if s.Snapshot().Frames != 0 {
		t.Error("frames processed without a camera")
	}
}

func TestSessionCameraLost(t *testing.T) {
	f := newFixture(t, testHabit())
	s := f.start(t, &fakeSource{failAt: 5}, fastOptions())

	eventually(t, "camera loss", func() bool { return s.Snapshot().CameraErr != nil })
	snap := s.Snapshot()
	if !errors.Is(snap.CameraErr, camera.ErrDisconnected) || snap.Camera != camera.StateDisconnected {
		t.Errorf("snapshot camera = %v, %v", snap.Camera, snap.CameraErr)
	}
	if !snap.Running {
		t.Error("session stopped on camera loss")
	}
}

func TestSessionRetryAfterDenied(t *testing.T) {
	f := newFixture(t, testHabit())
	src := &fakeSource{openErr: camera.ErrPermissionDenied}
	s, err := New(src, f.store, f.disp, fastOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("Start() = %v, want ErrPermissionDenied", err)
	}
	if err := s.Retry(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("Retry() while still denied = %v", err)
	}
	if snap := s.Snapshot(); snap.Camera != camera.StateDenied || snap.CameraErr == nil {
		t.Errorf("snapshot after failed retry: camera %v err %v", snap.Camera, snap.CameraErr)
	}

	src.setOpenErr(nil)
	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() = %v", err)
	}
	snap := s.Snapshot()
	if snap.Camera != camera.StateActive || snap.CameraErr != nil {
		t.Errorf("snapshot after retry: camera %v err %v", snap.Camera, snap.CameraErr)
	}
	eventually(t, "frames after retry", func() bool { return s.Snapshot().Frames > 5 })
	if src.closeCount() != 2 {
		t.Errorf("source closed %d times, want 2", src.closeCount())
	}
}

func TestSessionRetryAfterLoss(t *testing.T) {
	f := newFixture(t, testHabit())
	src := &fakeSource{failAt: 5}
	s := f.start(t, src, fastOptions())

	eventually(t, "camera loss", func() bool { return s.Snapshot().CameraErr != nil })
	before := s.Snapshot().Frames

	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() = %v", err)
	}
	eventually(t, "frames after retry", func() bool { return s.Snapshot().Frames > before+5 })
	snap := s.Snapshot()
	if snap.Camera != camera.StateActive || snap.CameraErr != nil {
		t.Errorf("snapshot after retry: camera %v err %v", snap.Camera, snap.CameraErr)
	}
}

func TestRetryRequiresRunningSession(t *testing.T) {
	f := newFixture(t, testHabit())
	s, err := New(&fakeSource{}, f.store, f.disp, fastOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Retry(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Retry() before Start = %v, want ErrNotRunning", err)
	}
}

func TestSessionDeadline(t *testing.T) {
	habit := testHabit()
	habit.DeadlineTime = "08:00"
	f := newFixture(t, habit)
	s := f.start(t, &fakeSource{}, fastOptions())

	eventually(t, "deadline expiry", func() bool { return s.Snapshot().DeadlineMissed })
	if got := f.store.Snapshot().LastExpiredDate; got != "2026-03-10" {
		t.Errorf("LastExpiredDate = %q", got)
	}
}

func TestSessionRollover(t *testing.T) {
	f := newFixture(t, testHabit())
	opts := fastOptions()
	opts.RolloverInterval = 5 * time.Millisecond
	s := f.start(t, &fakeSource{}, opts)

	if _, _, err := s.Complete(context.Background()); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	f.clock.Advance(24 * time.Hour)

	eventually(t, "rollover", func() bool {
		snap := s.Snapshot()
		return snap.Day == "2026-03-11" && snap.LastEvent == nil
	})
	snap := s.Snapshot()
	if snap.Count != 0 || snap.LastEvent != nil {
		t.Errorf("new day carried over: count=%d event=%v", snap.Count, snap.LastEvent)
	}
}

func TestSessionManualCompletionAfterMidnightResetsHold(t *testing.T) {
	habit := testHabit()
	habit.MovementDuration = 30
	f := newFixture(t, habit)
	f.clock.Advance(14*time.Hour + 58*time.Minute)

	// the countdown cannot move on a frozen clock
	opts := fastOptions()
	opts.Now = f.clock.Now
	src := &fakeSource{moving: true}
	s := f.start(t, src, opts)

	eventually(t, "hold armed", func() bool { return s.Snapshot().Reps.Phase == reps.HoldTimerRunning })
	src.setMoving(false)
	f.clock.Advance(2 * time.Minute)

	ev, counted, err := s.Complete(context.Background())
	if err != nil || !counted {
		t.Fatalf("Complete() = %v, %v", counted, err)
	}
	if ev.Date != "2026-03-11" || ev.Count != 1 {
		t.Errorf("completion landed on %s as rep %d", ev.Date, ev.Count)
	}
	snap := s.Snapshot()
	if snap.Day != "2026-03-11" {
		t.Errorf("Day = %q", snap.Day)
	}
	if snap.Reps.Phase == reps.HoldTimerRunning {
		t.Errorf("yesterday's hold survived the rollover: %+v", snap.Reps)
	}
	if got := f.store.Snapshot().DailyRecords["2026-03-11"].CompletedCount; got != 1 {
		t.Errorf("new day count = %d, want 1", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, testHabit())
	src := &fakeSource{}
	s := f.start(t, src, fastOptions())

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start after Stop = %v, want ErrAlreadyRunning", err)
	}
}

func TestSessionUpdates(t *testing.T) {
	f := newFixture(t, testHabit())
	s := f.start(t, &fakeSource{}, fastOptions())

	select {
	case snap := <-s.Updates():
		if snap.HabitName != "Squats" {
			t.Errorf("update for %q", snap.HabitName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestNewRequiresHabit(t *testing.T) {
	p := storage.NewJSONStore(filepath.Join(t.TempDir(), "repcam.json"))
	if err := p.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	st := store.New(p)
	if err := st.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := New(&fakeSource{}, st, nil, DefaultOptions()); !errors.Is(err, store.ErrNoHabit) {
		t.Errorf("New() = %v, want ErrNoHabit", err)
	}
}

func TestManagerOneSessionPerDevice(t *testing.T) {
	f := newFixture(t, testHabit())
	m := NewManager()

	first := &fakeSource{device: "fake://cam0"}
	second := &fakeSource{device: "fake://cam0"}
	other := &fakeSource{device: "fake://cam1"}

	var sessions []*Session
	for _, src := range []*fakeSource{first, second, other} {
		s, err := New(src, f.store, f.disp, fastOptions())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := m.Start(context.Background(), s); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		sessions = append(sessions, s)
	}

	if first.closeCount() != 1 {
		t.Error("first session was not stopped when the device was reused")
	}
	if got, ok := m.Get("fake://cam0"); !ok || got != sessions[1] {
		t.Error("device is not bound to the newest session")
	}
	if second.closeCount() != 0 || other.closeCount() != 0 {
		t.Error("unrelated sessions were stopped")
	}

	if err := m.Stop("fake://cam1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if other.closeCount() != 1 {
		t.Error("Stop did not stop the session")
	}

	m.StopAll()
	if second.closeCount() != 1 {
		t.Error("StopAll did not stop the remaining session")
	}
	if _, ok := m.Get("fake://cam0"); ok {
		t.Error("StopAll left a session registered")
	}
}
