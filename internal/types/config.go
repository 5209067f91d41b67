package types

type RunMode string

const (
	// ModeLocal is the mode for running the API server against a local database
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running just the API server
	ModeAPI RunMode = "api"
	// ModeJob is the mode for one-shot batch binaries such as reconciliation
	ModeJob RunMode = "job"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
