package app

import (
	"fmt"
	"strings"
	"time"

	"eagertimer/internal/config"
	"eagertimer/internal/scheduler"
	logx "eagertimer/pkg/logx"
)

// Data keys carried by declared events.
const (
	keyMessage = "message"
	keyTimes   = "times"
)

// syncEvents makes the scheduler's declared events match cfg: new or
// changed declarations are (re)registered, vanished ones removed. Unchanged
// declarations keep their live event, including its fire count.
func (a *App) syncEvents(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clk.Now()
	want := make(map[string]struct{}, len(cfg.Events))
	for i, ec := range cfg.Events {
		name := strings.TrimSpace(ec.Name)
		want[name] = struct{}{}
		if prev, ok := a.declared[name]; ok && prev == ec {
			continue
		}
		if err := a.registerDeclared(fmt.Sprintf("events[%d]", i), ec, now); err != nil {
			a.log.Warn("declared event skipped", logx.String("name", name), logx.Err(err))
			delete(a.declared, name)
			continue
		}
		a.declared[name] = ec
	}
	for name := range a.declared {
		if _, ok := want[name]; ok {
			continue
		}
		a.sched.RemoveEvent(name)
		delete(a.declared, name)
		a.log.Info("declared event removed", logx.String("name", name))
	}
}

func (a *App) registerDeclared(path string, ec config.EventConfig, now time.Time) error {
	p, err := ec.Resolve(path, now)
	if err != nil {
		return err
	}
	data := scheduler.Data{keyMessage: p.Message, keyTimes: p.Times}
	h := a.declaredHandler(p.Name)

	switch {
	case p.OneShot():
		_, err = a.sched.AddEventAt(p.At, h, p.Name, data)
	case p.Schedule.Kind == scheduler.SpecCron:
		_, err = a.sched.RepeatEventCronBetween(p.Start, p.End, p.Schedule.Cron, h, p.Name, data)
	default:
		ms := float64(p.Schedule.Every) / float64(time.Millisecond)
		_, err = a.sched.RepeatEventBetween(p.Start, p.End, ms, scheduler.Milliseconds, h, p.Name, data)
	}
	if err != nil {
		return err
	}
	a.log.Info("declared event registered", logx.String("name", p.Name), logx.Bool("one_shot", p.OneShot()))
	return nil
}

// declaredHandler logs the event's message and retires it once it has
// fired "times" times.
func (a *App) declaredHandler(name string) scheduler.Handler {
	log := a.log.With(logx.String("comp", "event"), logx.String("event", name))
	return func(data scheduler.Data, timesFired int) (scheduler.Data, error) {
		n := timesFired + 1
		msg, _ := data[keyMessage].(string)
		if msg == "" {
			msg = "event fired"
		}
		log.Info(msg, logx.Int("times_fired", n))

		if limit, _ := data[keyTimes].(int); limit > 0 && n >= limit {
			return scheduler.Data{scheduler.DoneKey: true}, nil
		}
		return nil, nil
	}
}
