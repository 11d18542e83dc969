package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
)

// storedRecord accepts both the current daily record shape and the legacy
// one that only carried a completed flag.
type storedRecord struct {
	Date           string      `json:"date"`
	CompletedCount *int        `json:"completedCount"`
	Completions    []time.Time `json:"completions"`
	Completed      *bool       `json:"completed"`
	CompletedAt    *time.Time  `json:"completedAt"`
}

type storedState struct {
	Version             int                     `json:"version"`
	Habit               *models.Habit           `json:"habit"`
	Streak              int                     `json:"streak"`
	LongestStreak       int                     `json:"longestStreak"`
	DailyRecords        map[string]storedRecord `json:"dailyRecords"`
	TodayCompletedCount int                     `json:"todayCompletedCount"`
	LastCompletedDate   string                  `json:"lastCompletedDate"`
	CountDate           string                  `json:"countDate"`
	LastExpiredDate     string                  `json:"lastExpiredDate"`
}

// Upgrade parses a persisted blob of any known version and returns it in the
// current shape. It never mutates its input.
func Upgrade(data []byte) (models.HabitState, error) {
	var raw storedState
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.HabitState{}, fmt.Errorf("failed to parse habit state: %w", err)
	}
	if raw.Version > constants.StateVersion {
		return models.HabitState{}, fmt.Errorf("habit state version %d is newer than supported version %d", raw.Version, constants.StateVersion)
	}

	state := models.HabitState{
		Version:             constants.StateVersion,
		Habit:               raw.Habit,
		Streak:              max(raw.Streak, 0),
		LongestStreak:       max(raw.LongestStreak, raw.Streak, 0),
		DailyRecords:        make(map[string]models.DailyRecord, len(raw.DailyRecords)),
		TodayCompletedCount: max(raw.TodayCompletedCount, 0),
		LastCompletedDate:   raw.LastCompletedDate,
		CountDate:           raw.CountDate,
		LastExpiredDate:     raw.LastExpiredDate,
	}

	for day, rec := range raw.DailyRecords {
		state.DailyRecords[day] = upgradeRecord(day, rec)
	}

	if h := state.Habit; h != nil {
		if h.DailyGoal < 1 {
			// the boolean era had exactly one rep per day
			h.DailyGoal = 1
		}
		if h.MovementDuration < 1 {
			h.MovementDuration = constants.DefaultMovementDuration
		}
		if h.DeadlineTime == "" {
			h.DeadlineTime = constants.DefaultDeadline
		}
	}

	// a blob without a count date predates the live counter; the next
	// rollover check rebuilds it from the records
	if state.CountDate == "" {
		state.TodayCompletedCount = 0
	}

	return state, nil
}

func upgradeRecord(day string, rec storedRecord) models.DailyRecord {
	out := models.DailyRecord{
		Date:        rec.Date,
		Completions: append([]time.Time(nil), rec.Completions...),
	}
	if out.Date == "" {
		out.Date = day
	}

	switch {
	case rec.CompletedCount != nil:
		out.CompletedCount = max(*rec.CompletedCount, 0)
	case rec.Completed != nil && *rec.Completed:
		out.CompletedCount = 1
		if len(out.Completions) == 0 && rec.CompletedAt != nil {
			out.Completions = []time.Time{*rec.CompletedAt}
		}
	default:
		out.CompletedCount = len(out.Completions)
	}

	sort.Slice(out.Completions, func(i, j int) bool { return out.Completions[i].Before(out.Completions[j]) })
	if out.Completions == nil {
		out.Completions = []time.Time{}
	}
	return out
}
