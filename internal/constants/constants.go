package constants

import "time"

const (
	AppName            = "chime"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/chime/config.yaml"
	DefaultDBPath      = "~/.config/chime/chime.db"
	DefaultDataDir     = "~/.config/chime/data"
	DefaultLockDir     = "~/.config/chime"
	Version            = "v0.1.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Persistence layout
	AlarmNamespace = "alarms"
	AlarmDataKey   = "alarms_data"

	// Network reset layout
	WifiConfigNamespace   = "nvs.net80211"
	WifiSettingsNamespace = "wifi"
	WifiForceAPKey        = "force_ap"

	// Daemon defaults
	DefaultCheckSchedule = "@every 5s"
	DefaultRPCListen     = "127.0.0.1:8645"
	LockfileName         = "chime.lock"
	ShutdownGracePeriod  = 5 * time.Second

	// Env vars
	EnvDBConnection = "CHIME_DB_CONNECTION"
)
