package app

import (
	"context"
	"strings"

	"eagertimer/internal/config"
	logx "eagertimer/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					newCfg = newer
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig hot-applies logging, scheduler tuning and declared events.
// Storage changes need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(newCfg.Logging.ToLogx())
		case "scheduler":
			sc, err := newCfg.Scheduler.ToScheduler()
			if err != nil {
				a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				continue
			}
			a.sched.Apply(sc)
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "events":
			a.syncEvents(newCfg)
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
