package config

import (
	"fmt"
	"strings"
	"time"

	"eagertimer/internal/scheduler"
	"eagertimer/internal/storage"
	logx "eagertimer/pkg/logx"
)

const DefaultBusyTimeout = 5 * time.Second

func (c LoggingConfig) ToLogx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    strings.TrimSpace(c.File.Path),
		},
	}
}

// ToStorage converts the optional section; nil yields a disabled store config.
func (c *StorageConfig) ToStorage() (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	busy, err := ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(c.Driver),
		Path:        strings.TrimSpace(c.Path),
		BusyTimeout: busy,
		Retain:      c.Retain,
	}, nil
}

// ToScheduler converts the section into a scheduler.Config, filling defaults.
func (c SchedulerConfig) ToScheduler() (scheduler.Config, error) {
	out := scheduler.DefaultConfig()
	if c.AutoStart != nil {
		out.AutoStart = *c.AutoStart
	}
	if c.BaseInterval < 0 {
		return out, fmt.Errorf("scheduler.base_interval: must be >= 0")
	}
	if c.BaseInterval > 0 {
		out.BaseInterval = c.BaseInterval
	}
	if strings.TrimSpace(c.TimeUnit) != "" {
		u, err := scheduler.ParseUnit(c.TimeUnit)
		if err != nil {
			return out, fmt.Errorf("scheduler.time_unit: %w", err)
		}
		out.TimeUnit = u
	}
	minimum, err := ParseDurationOrDefault("scheduler.minimum_interval", c.MinimumInterval, out.MinimumInterval)
	if err != nil {
		return out, err
	}
	out.MinimumInterval = minimum

	switch strings.ToLower(strings.TrimSpace(c.Anonymous)) {
	case "", "unique":
		out.Anonymous = scheduler.AnonymousUnique
	case "shared":
		out.Anonymous = scheduler.AnonymousShared
	default:
		return out, fmt.Errorf("scheduler.anonymous: unknown policy %q (use unique or shared)", c.Anonymous)
	}

	if c.TraceRate < 0 {
		return out, fmt.Errorf("scheduler.trace_rate: must be >= 0")
	}
	out.TraceRate = c.TraceRate

	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return out, fmt.Errorf("scheduler.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// EventPlan is a declared event resolved against a point in time.
type EventPlan struct {
	Name string
	// At is set for one-shot events; Schedule is used otherwise.
	At       time.Time
	Schedule scheduler.ParsedSpec
	Start    time.Time
	End      time.Time
	Message  string
	Times    int
}

func (p EventPlan) OneShot() bool { return !p.At.IsZero() }

// Resolve validates the declaration and computes its plan; "in" is measured from now.
func (e EventConfig) Resolve(path string, now time.Time) (EventPlan, error) {
	p := EventPlan{
		Name:    strings.TrimSpace(e.Name),
		Message: e.Message,
		Times:   e.Times,
	}
	if p.Name == "" {
		return p, fmt.Errorf("%s.name: required", path)
	}
	if e.Times < 0 {
		return p, fmt.Errorf("%s.times: must be >= 0", path)
	}

	set := 0
	for _, v := range []string{e.At, e.In, e.Every} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return p, fmt.Errorf("%s: exactly one of at, in, every is required", path)
	}

	var err error
	if p.Start, err = ParseTimeField(path+".start", e.Start); err != nil {
		return p, err
	}
	if p.End, err = ParseTimeField(path+".end", e.End); err != nil {
		return p, err
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return p, fmt.Errorf("%s.end: before start", path)
	}

	switch {
	case strings.TrimSpace(e.At) != "":
		if p.At, err = ParseTimeField(path+".at", e.At); err != nil {
			return p, err
		}
	case strings.TrimSpace(e.In) != "":
		d, err := ParseDurationField(path+".in", e.In)
		if err != nil {
			return p, err
		}
		p.At = now.Add(d)
	default:
		if p.Schedule, err = scheduler.ParseSchedule(e.Every); err != nil {
			return p, fmt.Errorf("%s.every: %w", path, err)
		}
	}
	if p.OneShot() && (!p.Start.IsZero() || !p.End.IsZero()) {
		return p, fmt.Errorf("%s: start/end only apply to repeating events", path)
	}
	return p, nil
}
