// Package store owns the persisted habit state: the habit itself, daily
// records and the streak. All mutation goes through Store; readers get
// copies from Snapshot.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/storage"
	"github.com/julianstephens/repcam/internal/utils"
	"github.com/julianstephens/repcam/internal/validation"
)

var ErrNoHabit = errors.New("no habit configured")

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone day keys are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

type Store struct {
	mu       sync.Mutex
	provider storage.Provider
	now      func() time.Time
	loc      *time.Location
	offset   int
	state    models.HabitState
	// rolled is set when any operation moved the counter to a new day and
	// cleared when CheckDayRollover reports it.
	rolled bool
}

func New(p storage.Provider, opts ...Option) *Store {
	s := &Store{
		provider: p,
		now:      time.Now,
		loc:      time.Local,
		state:    emptyState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emptyState() models.HabitState {
	return models.HabitState{
		Version:      constants.StateVersion,
		DailyRecords: make(map[string]models.DailyRecord),
	}
}

// Load reads the day offset and the habit state from the provider. A
// corrupt blob is logged and replaced by an empty state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := s.readOffset()
	if err != nil {
		return err
	}
	s.offset = offset

	data, err := s.provider.Get(constants.StateKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.state = emptyState()
	case err != nil:
		return fmt.Errorf("failed to read habit state: %w", err)
	default:
		state, err := Upgrade(data)
		if err != nil {
			logger.Warn("Discarding unreadable habit state", "error", err)
			state = emptyState()
		}
		s.state = state
	}

	_, err = s.rolloverLocked()
	s.rolled = false
	return err
}

func (s *Store) readOffset() (int, error) {
	data, err := s.provider.Get(constants.DayOffsetKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read day offset: %w", err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		logger.Warn("Ignoring invalid day offset", "value", string(data))
		return 0, nil
	}
	return n, nil
}

// commit persists next and makes it current. The in-memory state is left
// untouched when the write fails.
func (s *Store) commit(next models.HabitState) error {
	next.Version = constants.StateVersion
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to serialize habit state: %w", err)
	}
	if err := s.provider.Put(constants.StateKey, data); err != nil {
		return fmt.Errorf("failed to save habit state: %w", err)
	}
	s.state = next
	return nil
}

func (s *Store) todayLocked() string {
	return utils.DayKey(s.now(), s.offset, s.loc)
}

// Today returns the current day key, including the day offset.
func (s *Store) Today() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.todayLocked()
}

func (s *Store) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// SetHabit installs h and clears all streak and record state.
func (s *Store) SetHabit(h models.Habit) error {
	if err := validation.ValidateHabit(h).Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now()
	}

	next := emptyState()
	next.Habit = &h
	next.CountDate = s.todayLocked()
	return s.commit(next)
}

// RecordCompletion counts one rep for today. Once the daily goal is met it
// is a no-op and reports false. The returned event is only meaningful when
// the rep was counted.
func (s *Store) RecordCompletion(manual bool) (models.CompletionEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Habit == nil {
		return models.CompletionEvent{}, false, ErrNoHabit
	}
	if _, err := s.rolloverLocked(); err != nil {
		return models.CompletionEvent{}, false, err
	}

	goal := s.state.Habit.DailyGoal
	if s.state.TodayCompletedCount >= goal {
		return models.CompletionEvent{}, false, nil
	}

	now := s.now()
	today := s.todayLocked()
	next := s.state.Clone()

	rec, ok := next.DailyRecords[today]
	if !ok {
		rec = models.DailyRecord{Date: today, Completions: []time.Time{}}
	}
	rec.CompletedCount++
	rec.Completions = append(rec.Completions, now)
	next.DailyRecords[today] = rec

	next.TodayCompletedCount++
	next.CountDate = today

	if next.TodayCompletedCount == goal {
		yesterday, err := utils.PreviousDay(today)
		if err != nil {
			return models.CompletionEvent{}, false, err
		}
		switch next.LastCompletedDate {
		case yesterday:
			next.Streak++
		case today:
		default:
			next.Streak = 1
		}
		next.LongestStreak = max(next.LongestStreak, next.Streak)
		next.LastCompletedDate = today
	}

	if err := s.commit(next); err != nil {
		return models.CompletionEvent{}, false, err
	}

	ev := models.CompletionEvent{
		ID:          uuid.NewString(),
		HabitName:   next.Habit.Name,
		Date:        today,
		Count:       next.TodayCompletedCount,
		Goal:        goal,
		Streak:      next.Streak,
		GoalReached: next.TodayCompletedCount >= goal,
		Manual:      manual,
		At:          now,
	}
	if err := s.provider.AppendCompletion(ev); err != nil {
		logger.Warn("Failed to append completion history", "error", err)
	}
	return ev, true, nil
}

// IsTodayComplete reports whether today's count has reached the goal.
func (s *Store) IsTodayComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked()
}

func (s *Store) completeLocked() bool {
	if s.state.Habit == nil {
		return false
	}
	count := s.state.TodayCompletedCount
	if s.state.CountDate != s.todayLocked() {
		count = s.state.DailyRecords[s.todayLocked()].CompletedCount
	}
	return count >= s.state.Habit.DailyGoal
}

// DeadlinePassed reports whether today's deadline time has been reached.
func (s *Store) DeadlinePassed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Habit == nil {
		return false, ErrNoHabit
	}
	return utils.DeadlinePassed(s.now(), s.state.Habit.DeadlineTime, s.loc)
}

// HandleDeadlineExpired drops the streak and today's live count when the
// goal was missed. It acts at most once per day and reports whether it did.
// The day's record is kept.
func (s *Store) HandleDeadlineExpired() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Habit == nil {
		return false, nil
	}
	if _, err := s.rolloverLocked(); err != nil {
		return false, err
	}

	today := s.todayLocked()
	if s.state.LastExpiredDate == today || s.state.TodayCompletedCount >= s.state.Habit.DailyGoal {
		return false, nil
	}

	next := s.state.Clone()
	next.Streak = 0
	next.TodayCompletedCount = 0
	next.LastExpiredDate = today
	if err := s.commit(next); err != nil {
		return false, err
	}
	logger.Info("Deadline passed with goal unmet", "day", today, "habit", next.Habit.Name)
	return true, nil
}

// ResetHabit wipes the habit state. The day offset is kept.
func (s *Store) ResetHabit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.provider.Delete(constants.StateKey); err != nil {
		return fmt.Errorf("failed to reset habit state: %w", err)
	}
	s.state = emptyState()
	return nil
}

// CheckDayRollover aligns the live counter with the current day and drops a
// broken streak. It reports whether the day changed since the last check,
// including a change another operation applied first.
func (s *Store) CheckDayRollover() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rolloverLocked(); err != nil {
		return false, err
	}
	rolled := s.rolled
	s.rolled = false
	return rolled, nil
}

func (s *Store) rolloverLocked() (bool, error) {
	if s.state.Habit == nil {
		return false, nil
	}

	today := s.todayLocked()
	yesterday, err := utils.PreviousDay(today)
	if err != nil {
		return false, err
	}

	next := s.state.Clone()
	changed := false
	rolled := false

	if next.CountDate != today {
		rolled = next.CountDate != ""
		next.TodayCompletedCount = next.DailyRecords[today].CompletedCount
		next.CountDate = today
		changed = true
	}
	if next.LastCompletedDate != "" && next.LastCompletedDate != today && next.LastCompletedDate != yesterday && next.Streak != 0 {
		next.Streak = 0
		changed = true
	}

	if !changed {
		return false, nil
	}
	if err := s.commit(next); err != nil {
		return false, err
	}
	if rolled {
		s.rolled = true
		logger.Info("Day rolled over", "day", today, "streak", next.Streak)
	}
	return rolled, nil
}

// SetMovementDuration changes how long a rep must be held, in seconds.
func (s *Store) SetMovementDuration(seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("movement duration must be at least 1 second")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Habit == nil {
		return ErrNoHabit
	}
	next := s.state.Clone()
	next.Habit.MovementDuration = seconds
	return s.commit(next)
}

// Recalibrate replaces the reference frames and the signature together.
// sig may be nil when too few frames were usable.
func (s *Store) Recalibrate(frames []string, sig *models.MotionSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Habit == nil {
		return ErrNoHabit
	}
	next := s.state.Clone()
	next.Habit.ReferenceFrames = append([]string(nil), frames...)
	if sig != nil {
		cp := *sig
		cp.MotionSequence = append([]float64(nil), sig.MotionSequence...)
		sig = &cp
	}
	next.Habit.MotionSignature = sig
	return s.commit(next)
}

func (s *Store) DayOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SetDayOffset shifts every day key forward by n days. Zero removes the
// offset.
func (s *Store) SetDayOffset(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if n == 0 {
		err = s.provider.Delete(constants.DayOffsetKey)
	} else {
		err = s.provider.Put(constants.DayOffsetKey, []byte(strconv.Itoa(n)))
	}
	if err != nil {
		return fmt.Errorf("failed to save day offset: %w", err)
	}
	s.offset = n

	_, err = s.rolloverLocked()
	return err
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() models.HabitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Import replaces the state with a blob exported from an earlier version.
func (s *Store) Import(data []byte) error {
	state, err := Upgrade(data)
	if err != nil {
		return err
	}
	if state.Habit == nil {
		return fmt.Errorf("import contains no habit")
	}
	if err := validation.ValidateState(state).Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commit(state); err != nil {
		return err
	}
	_, err = s.rolloverLocked()
	return err
}
