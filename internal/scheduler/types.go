package scheduler

import (
	"time"

	"eagertimer/internal/clock"
	"eagertimer/internal/eventbus"
	logx "eagertimer/pkg/logx"
)

const (
	defaultMinimumInterval = 32 * time.Millisecond // at most ~31 checks per second
	defaultBaseInterval    = 1
	anonymousName          = "anonymous"

	// DoneKey is the data key a handler sets to true to retire its event.
	DoneKey = "done"
)

// Bus event types published by the scheduler. Data is a FireEvent.
const (
	EventRegistered = "timer.registered"
	EventFired      = "timer.fired"
	EventDone       = "timer.done"
	EventRemoved    = "timer.removed"
	EventFailed     = "timer.failed"
)

type AnonymousPolicy int

const (
	// AnonymousUnique gives every unnamed registration its own synthetic name.
	AnonymousUnique AnonymousPolicy = iota
	// AnonymousShared stores all unnamed registrations under "anonymous"; the last one wins.
	AnonymousShared
)

// Config controls the scheduler.
type Config struct {
	AutoStart bool
	// BaseInterval, in TimeUnit, is the idle heartbeat used when no events are registered.
	BaseInterval float64
	TimeUnit     Unit
	// MinimumInterval is the floor on the delay between two wake-ups.
	MinimumInterval time.Duration
	Anonymous       AnonymousPolicy
	// TraceRate caps wake-up trace log lines per second. 0 disables them.
	TraceRate float64
	// Location is used to evaluate cron schedules. Nil means time.Local.
	Location *time.Location
}

// DefaultConfig returns an auto-starting scheduler with a one second heartbeat.
func DefaultConfig() Config {
	return Config{
		AutoStart:       true,
		BaseInterval:    defaultBaseInterval,
		TimeUnit:        Seconds,
		MinimumInterval: defaultMinimumInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = defaultBaseInterval
	}
	c.TimeUnit = c.TimeUnit.orDefault()
	if c.MinimumInterval <= 0 {
		c.MinimumInterval = defaultMinimumInterval
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

func (c Config) heartbeat() time.Duration {
	d, ok := c.TimeUnit.Duration(c.BaseInterval)
	if !ok || d < c.MinimumInterval {
		return c.MinimumInterval
	}
	return d
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clk = c
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithBus(b eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = b }
}

// WithErrorHandler installs a hook receiving handler errors from timer-driven sweeps.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// Data is the per-event state carried between fires.
type Data map[string]any

// Clone returns a shallow copy; nil clones to an empty map.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge overwrites d with every key of upd.
func (d Data) Merge(upd Data) {
	for k, v := range upd {
		d[k] = v
	}
}

// Done reports whether DoneKey is set to true.
func (d Data) Done() bool {
	v, ok := d[DoneKey].(bool)
	return ok && v
}

// Handler is called when an event fires. It receives a copy of the event's
// data and the number of previous fires and returns a partial update (may be nil).
type Handler func(data Data, timesFired int) (Data, error)

// EventInfo is a read-only view of an event.
type EventInfo struct {
	Name       string
	PlannedAt  time.Time
	Interval   time.Duration
	Schedule   string
	Start      time.Time
	End        time.Time
	TimesFired int
	Done       bool
	Data       Data
}

// FireEvent is the bus payload for scheduler events.
type FireEvent struct {
	Name       string
	PlannedAt  time.Time
	FiredAt    time.Time
	TimesFired int
	Next       time.Time
	Done       bool
	Error      string
}

// Snapshot describes the scheduler state for inspection.
type Snapshot struct {
	Running         bool
	Events          []EventInfo
	Plan            []time.Time
	Iterations      uint64
	SinceStart      time.Duration
	LastDelay       time.Duration
	MinimumInterval time.Duration
	Heartbeat       time.Duration
}
