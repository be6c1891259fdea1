package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps the number of kept records. 0 keeps everything.
	Retain int
}

// Record kinds, matching the scheduler bus event types they come from.
const (
	KindFired   = "fired"
	KindDone    = "done"
	KindFailed  = "failed"
	KindRemoved = "removed"
)

// FireRecord is one history line. Keep it compact and schema-stable.
type FireRecord struct {
	At         time.Time `json:"at"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	PlannedAt  time.Time `json:"planned_at,omitzero"`
	TimesFired int       `json:"times_fired"`
	Next       time.Time `json:"next,omitzero"`
	Error      string    `json:"error,omitempty"`
}
