package constants

import "time"

const (
	// Default Settings Values
	DefaultCameraURL            = "http://127.0.0.1:8081/stream.mjpg"
	DefaultCameraWidth          = 640
	DefaultCameraHeight         = 480
	DefaultCameraFacing         = "user"
	DefaultAcquireTimeout       = 10 * time.Second
	DefaultTimezone             = "Local" // Use system local timezone by default
	DefaultNotificationsEnabled = true
	DefaultTrayEnabled          = true
	DefaultMQTTTopic            = "repcam/completions"
	DefaultMQTTClientID         = "repcam"

	// Habit defaults
	DefaultDailyGoal        = 3
	DefaultMovementDuration = 10
	DefaultDeadline         = "21:00"
)
