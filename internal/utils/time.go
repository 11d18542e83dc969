package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/repcam/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// DayKey returns the calendar day (YYYY-MM-DD) of instant in loc, shifted
// forward by offsetDays. Every "today" and "yesterday" in the application
// goes through this function.
func DayKey(instant time.Time, offsetDays int, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	local := instant.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, loc)
	return day.AddDate(0, 0, offsetDays).Format(constants.DateFormat)
}

// PreviousDay returns the day key exactly one calendar day before dayKey.
func PreviousDay(dayKey string) (string, error) {
	return ShiftDay(dayKey, -1)
}

// ShiftDay moves a day key by n calendar days.
func ShiftDay(dayKey string, n int) (string, error) {
	t, err := time.Parse(constants.DateFormat, dayKey)
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", dayKey, err)
	}
	return t.AddDate(0, 0, n).Format(constants.DateFormat), nil
}

// ParseTime parses a time string in the standard format (HH:MM).
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(constants.TimeFormat, timeStr)
}

// ParseTimeToMinutes parses a time string (HH:MM) and returns the number of minutes from midnight.
func ParseTimeToMinutes(timeStr string) (int, error) {
	t, err := ParseTime(timeStr)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DeadlinePassed reports whether the wall-clock time of now in loc is at or
// past the HH:MM deadline.
func DeadlinePassed(now time.Time, deadline string, loc *time.Location) (bool, error) {
	deadlineMin, err := ParseTimeToMinutes(deadline)
	if err != nil {
		return false, fmt.Errorf("invalid deadline %q: %w", deadline, err)
	}
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return local.Hour()*60+local.Minute() >= deadlineMin, nil
}

// UntilDeadline returns the time left before the HH:MM deadline today, or 0
// once it has passed.
func UntilDeadline(now time.Time, deadline string, loc *time.Location) (time.Duration, error) {
	t, err := ParseTime(deadline)
	if err != nil {
		return 0, fmt.Errorf("invalid deadline %q: %w", deadline, err)
	}
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !at.After(local) {
		return 0, nil
	}
	return at.Sub(local), nil
}

// ValidateTimeFormat checks if the string matches the standard time format.
func ValidateTimeFormat(timeStr string) bool {
	_, err := ParseTime(timeStr)
	return err == nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}
