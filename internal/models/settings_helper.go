package models

import (
	"time"

	"github.com/julianstephens/repcam/internal/constants"
)

// DefaultSettings returns the settings a fresh store starts with
func DefaultSettings() Settings {
	return Settings{
		CameraURL:            constants.DefaultCameraURL,
		CameraWidth:          constants.DefaultCameraWidth,
		CameraHeight:         constants.DefaultCameraHeight,
		CameraFacing:         constants.DefaultCameraFacing,
		AcquireTimeoutSec:    int(constants.DefaultAcquireTimeout / time.Second),
		Timezone:             constants.DefaultTimezone,
		NotificationsEnabled: constants.DefaultNotificationsEnabled,
		TrayEnabled:          constants.DefaultTrayEnabled,
		MQTTTopic:            constants.DefaultMQTTTopic,
		MQTTClientID:         constants.DefaultMQTTClientID,
	}
}

// AcquireTimeout returns the camera acquisition timeout, falling back to the default
func (s Settings) AcquireTimeout() time.Duration {
	if s.AcquireTimeoutSec <= 0 {
		return constants.DefaultAcquireTimeout
	}
	return time.Duration(s.AcquireTimeoutSec) * time.Second
}
