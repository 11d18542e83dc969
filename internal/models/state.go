package models

import "time"

// DailyRecord holds the completions of one calendar day
type DailyRecord struct {
	Date           string      `json:"date"` // YYYY-MM-DD format
	CompletedCount int         `json:"completedCount"`
	Completions    []time.Time `json:"completions"`
}

// HabitState is the persisted aggregate for the configured habit
type HabitState struct {
	Version             int                    `json:"version"`
	Habit               *Habit                 `json:"habit"`
	Streak              int                    `json:"streak"`
	LongestStreak       int                    `json:"longestStreak"`
	DailyRecords        map[string]DailyRecord `json:"dailyRecords"`
	TodayCompletedCount int                    `json:"todayCompletedCount"`
	LastCompletedDate   string                 `json:"lastCompletedDate,omitempty"`
	CountDate           string                 `json:"countDate,omitempty"`       // day key TodayCompletedCount belongs to
	LastExpiredDate     string                 `json:"lastExpiredDate,omitempty"` // day key of the last deadline expiry
}

// Clone returns a deep copy safe to hand to readers
func (s HabitState) Clone() HabitState {
	out := s
	if s.Habit != nil {
		h := *s.Habit
		h.ReferenceFrames = append([]string(nil), s.Habit.ReferenceFrames...)
		if s.Habit.MotionSignature != nil {
			sig := *s.Habit.MotionSignature
			sig.MotionSequence = append([]float64(nil), s.Habit.MotionSignature.MotionSequence...)
			h.MotionSignature = &sig
		}
		out.Habit = &h
	}
	out.DailyRecords = make(map[string]DailyRecord, len(s.DailyRecords))
	for day, rec := range s.DailyRecords {
		rec.Completions = append([]time.Time(nil), rec.Completions...)
		out.DailyRecords[day] = rec
	}
	return out
}
