package config

import (
	"reflect"
	"strings"

	logx "eagertimer/pkg/logx"
)

// SummarizeConfigChange returns the list of changed sections and compact
// structured attrs describing the new values, for a single reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		s := newCfg.Scheduler
		attrs = append(attrs,
			logx.Float64("scheduler.base_interval", s.BaseInterval),
			logx.String("scheduler.time_unit", strings.TrimSpace(s.TimeUnit)),
			logx.String("scheduler.minimum_interval", strings.TrimSpace(s.MinimumInterval)),
			logx.Float64("scheduler.trace_rate", s.TraceRate),
		)
	}

	// Storage is only read at startup; surface the change so operators know
	// a restart is needed.
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.Bool("storage.restart_required", true))
	}

	if !reflect.DeepEqual(oldCfg.Events, newCfg.Events) {
		changed = append(changed, "events")
		attrs = append(attrs, logx.Int("events.count", len(newCfg.Events)))
	}

	return changed, attrs
}

// EventNames returns the names of declared events, trimmed, in file order.
func EventNames(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	out := make([]string, 0, len(cfg.Events))
	for _, ev := range cfg.Events {
		if n := strings.TrimSpace(ev.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}
