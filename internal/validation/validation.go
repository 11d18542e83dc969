package validation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/utils"
)

// IssueType identifies a validation problem
type IssueType string

const (
	IssueMissingName        IssueType = "missing_name"
	IssueInvalidGoal        IssueType = "invalid_goal"
	IssueInvalidDuration    IssueType = "invalid_duration"
	IssueInvalidDeadline    IssueType = "invalid_deadline"
	IssueMissingSignature   IssueType = "missing_signature"
	IssueStreakInconsistent IssueType = "streak_inconsistent"
	IssueRecordMismatch     IssueType = "record_mismatch"
	IssueInvalidDate        IssueType = "invalid_date"
	IssueInvalidTimezone    IssueType = "invalid_timezone"
	IssueInvalidCameraURL   IssueType = "invalid_camera_url"
	IssueInvalidResolution  IssueType = "invalid_resolution"
)

// Issue is one detected problem. Warnings do not block saving.
type Issue struct {
	Type        IssueType
	Description string
	Warning     bool
	Date        string // YYYY-MM-DD (if applicable)
}

// Result collects issues from one validation pass
type Result struct {
	Issues []Issue
}

// HasErrors reports whether any non-warning issue was found
func (r Result) HasErrors() bool {
	for _, i := range r.Issues {
		if !i.Warning {
			return true
		}
	}
	return false
}

// Err folds the blocking issues into a single error, or nil
func (r Result) Err() error {
	var msgs []string
	for _, i := range r.Issues {
		if !i.Warning {
			msgs = append(msgs, i.Description)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid: %s", strings.Join(msgs, "; "))
}

// FormatReport returns a human-readable report of all issues
func (r Result) FormatReport() string {
	if len(r.Issues) == 0 {
		return "No issues detected."
	}

	var b strings.Builder
	b.WriteString("Issues detected:\n")
	for _, i := range r.Issues {
		prefix := "error"
		if i.Warning {
			prefix = "warning"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", prefix, i.Description)
	}
	return b.String()
}

func (r *Result) add(t IssueType, warning bool, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Type: t, Warning: warning, Description: fmt.Sprintf(format, args...)})
}

// ValidateHabit checks the editable fields of a habit
func ValidateHabit(h models.Habit) Result {
	var r Result
	if strings.TrimSpace(h.Name) == "" {
		r.add(IssueMissingName, false, "habit name is required")
	}
	if h.DailyGoal < 1 {
		r.add(IssueInvalidGoal, false, "daily goal must be at least 1 (got %d)", h.DailyGoal)
	}
	if h.MovementDuration < 1 {
		r.add(IssueInvalidDuration, false, "movement duration must be at least 1 second (got %d)", h.MovementDuration)
	}
	if !utils.ValidateTimeFormat(h.DeadlineTime) {
		r.add(IssueInvalidDeadline, false, "deadline %q is not HH:MM", h.DeadlineTime)
	}
	if !h.HasSignature() {
		r.add(IssueMissingSignature, true, "no motion signature learned; any sustained motion will count")
	}
	return r
}

// ValidateState checks a persisted habit state for internal consistency
func ValidateState(s models.HabitState) Result {
	var r Result
	if s.Habit != nil {
		r.Issues = append(r.Issues, ValidateHabit(*s.Habit).Issues...)
	}

	if s.LongestStreak < s.Streak {
		r.add(IssueStreakInconsistent, false, "longest streak %d is below current streak %d", s.LongestStreak, s.Streak)
	}
	if s.Streak < 0 || s.TodayCompletedCount < 0 {
		r.add(IssueStreakInconsistent, false, "negative counters (streak %d, today %d)", s.Streak, s.TodayCompletedCount)
	}

	days := make([]string, 0, len(s.DailyRecords))
	for day := range s.DailyRecords {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		rec := s.DailyRecords[day]
		if _, err := utils.ShiftDay(day, 0); err != nil {
			r.Issues = append(r.Issues, Issue{Type: IssueInvalidDate, Date: day, Description: fmt.Sprintf("record key %q is not a date", day)})
			continue
		}
		if rec.Date != "" && rec.Date != day {
			r.Issues = append(r.Issues, Issue{Type: IssueRecordMismatch, Date: day, Description: fmt.Sprintf("record %s is stored under %s", rec.Date, day)})
		}
		if len(rec.Completions) > 0 && len(rec.Completions) != rec.CompletedCount {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueRecordMismatch,
				Date:        day,
				Warning:     true,
				Description: fmt.Sprintf("%s: count %d but %d completion timestamps", day, rec.CompletedCount, len(rec.Completions)),
			})
		}
	}
	return r
}

// ValidateSettings checks user-editable settings
func ValidateSettings(s models.Settings) Result {
	var r Result
	if !utils.ValidateTimezone(s.Timezone) {
		r.add(IssueInvalidTimezone, false, "unknown timezone %q", s.Timezone)
	}
	if u, err := url.Parse(s.CameraURL); err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
		r.add(IssueInvalidCameraURL, false, "camera URL %q must be http(s) or file", s.CameraURL)
	}
	if s.CameraWidth < 1 || s.CameraHeight < 1 {
		r.add(IssueInvalidResolution, false, "camera resolution %dx%d is invalid", s.CameraWidth, s.CameraHeight)
	}
	return r
}
