package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var storageDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true}

// Validate checks every section and reports all problems found, each
// prefixed with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := cfg.Scheduler.ToScheduler(); err != nil {
		errs = append(errs, err)
	}

	if s := cfg.Storage; s != nil {
		d := strings.ToLower(strings.TrimSpace(s.Driver))
		if !storageDrivers[d] {
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (use file, sqlite or none)", s.Driver))
		}
		if (d == "file" || d == "sqlite") && strings.TrimSpace(s.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", d))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if s.Retain < 0 {
			errs = append(errs, fmt.Errorf("storage.retain: must be >= 0"))
		}
	}

	now := time.Now()
	seen := make(map[string]int, len(cfg.Events))
	for i, ev := range cfg.Events {
		path := fmt.Sprintf("events[%d]", i)
		p, err := ev.Resolve(path, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if j, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: %q already declared by events[%d]", path, p.Name, j))
			continue
		}
		seen[p.Name] = i
	}
	return errors.Join(errs...)
}

// Validator adapts Validate to ConfigManager.SetValidator.
func Validator(_ context.Context, cfg *Config) error { return Validate(cfg) }
