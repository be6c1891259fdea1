package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`

	// Events are registered at startup and re-registered on every reload.
	Events []EventConfig `json:"events,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the wake-up loop.
//
// Defaults (when fields are omitted/zero):
//   - auto_start: true
//   - base_interval: 1 (in time_unit)
//   - time_unit: "seconds"
//   - minimum_interval: "32ms"
//   - anonymous: "unique"
//   - trace_rate: 0 (wake-up trace lines disabled)
type SchedulerConfig struct {
	// AutoStart is a pointer so an explicit false can be told apart from "omitted".
	AutoStart    *bool   `json:"auto_start,omitempty"`
	BaseInterval float64 `json:"base_interval,omitempty"`
	TimeUnit     string  `json:"time_unit,omitempty"`

	// MinimumInterval is a Go duration string (e.g. "32ms", "1s").
	MinimumInterval string `json:"minimum_interval,omitempty"`

	// Anonymous is "unique" or "shared".
	Anonymous string  `json:"anonymous,omitempty"`
	TraceRate float64 `json:"trace_rate,omitempty"`

	// Timezone used for cron schedules. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the fire history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./eagertimer.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retain caps the number of kept history records. 0 keeps everything.
	Retain int `json:"retain,omitempty"`
}

// EventConfig declares an event in the config file.
//
// Exactly one of At, In or Every must be set:
//   - at: RFC3339 timestamp, fires once
//   - in: Go duration from load time, fires once
//   - every: schedule string ("55m", "02:30", "*/5 * * * *", "cron:@hourly")
//
// Start and End (RFC3339) bound repeating events. Times > 0 retires the
// event after that many fires.
type EventConfig struct {
	Name    string `json:"name"`
	At      string `json:"at,omitempty"`
	In      string `json:"in,omitempty"`
	Every   string `json:"every,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Message string `json:"message,omitempty"`
	Times   int    `json:"times,omitempty"`
}
