package constants

import "time"

const (
	AppName            = "repcam"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/repcam/repcam.db"
	Version            = "v0.3.0"

	// StateKey is the storage key holding the serialized habit state
	StateKey = "habit-state"
	// SettingsKey is the storage key holding the serialized settings
	SettingsKey = "settings"
	// DayOffsetKey is the storage key of the day-offset test hook
	DayOffsetKey = "day-offset"

	// StateVersion is the current shape of the persisted habit state
	StateVersion = 2

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "repcam-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifierLockfileName   = "repcam-bridge.lock"
	NotificationDurationMs = 4000
	TrayAppIdentifier      = "com.julianstephens.repcam"
	TrayExecutablePrefix   = "repcam-bridge"
	SinkTimeout            = 3 * time.Second

	// Environment variables
	EnvConfig       = "REPCAM_CONFIG"
	EnvDBConnection = "REPCAM_DB_CONNECTION"
	EnvMQTTUsername = "REPCAM_MQTT_USERNAME"
	EnvMQTTPassword = "REPCAM_MQTT_PASSWORD"
	EnvMQTTBroker   = "REPCAM_MQTT_BROKER"
	EnvDebug        = "REPCAM_DEBUG"

	DotEnvFileName = ".env"
)
