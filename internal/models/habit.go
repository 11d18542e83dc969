package models

import "time"

// Habit is the single physical habit being tracked
type Habit struct {
	ID               string           `json:"id"`
	Name             string           `json:"habitName"`
	Description      string           `json:"habitDescription"`
	DailyGoal        int              `json:"dailyGoal"`        // reps required per day, at least 1
	MovementDuration int              `json:"movementDuration"` // seconds the movement must be held to confirm one rep
	DeadlineTime     string           `json:"deadlineTime"`     // HH:MM local time
	ReferenceFrames  []string         `json:"referenceFrames"`  // base64 encoded JPEG stills from calibration
	MotionSignature  *MotionSignature `json:"motionSignature,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// HasSignature reports whether a usable motion signature was learned
func (h Habit) HasSignature() bool {
	return h.MotionSignature != nil && h.MotionSignature.Duration > 0
}

// MotionSignature summarizes the reference movement recorded during calibration.
// It is never mutated after creation; recalibration replaces it.
type MotionSignature struct {
	MotionSequence []float64 `json:"motionSequence"`
	AvgIntensity   float64   `json:"avgIntensity"`
	PeakMotion     float64   `json:"peakMotion"`
	Duration       int       `json:"duration"`
}
