package scheduler

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	logx "eagertimer/pkg/logx"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// AddEventAt registers a one-shot event firing at the first wake-up at or after at.
func (s *Scheduler) AddEventAt(at time.Time, handler Handler, name string, data Data) (*Event, error) {
	if handler == nil {
		return nil, invalid("handler is required")
	}
	if at.IsZero() {
		return nil, invalid("fire time is required")
	}
	ev := newEvent(s.clk, handler, data)
	ev.fireAt(at)
	return s.register(ev, name), nil
}

// RepeatEventEvery registers an event firing every amount of unit, starting
// one interval from now. A zero unit means Seconds.
func (s *Scheduler) RepeatEventEvery(amount float64, unit Unit, handler Handler, name string, data Data) (*Event, error) {
	every, err := intervalOf(amount, unit)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, invalid("handler is required")
	}
	ev := newEvent(s.clk, handler, data)
	ev.interval = every
	ev.fireIn(every)
	return s.register(ev, name), nil
}

// RepeatEventBetween is RepeatEventEvery bounded to [start, stop]. The first
// fire happens at max(now, start) when start is given, otherwise one interval
// from now. Zero start or stop leaves that side of the window open.
func (s *Scheduler) RepeatEventBetween(start, stop time.Time, amount float64, unit Unit, handler Handler, name string, data Data) (*Event, error) {
	every, err := intervalOf(amount, unit)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, invalid("handler is required")
	}
	if !start.IsZero() && !stop.IsZero() && stop.Before(start) {
		return nil, invalid("window stop %s is before start %s", stop.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	ev := newEvent(s.clk, handler, data)
	ev.interval = every
	ev.span(start, stop)
	if !start.IsZero() {
		first := start
		if now := s.clk.Now(); now.After(first) {
			first = now
		}
		ev.fireAt(first)
	} else {
		ev.fireIn(every)
	}
	if !stop.IsZero() && ev.PlannedAt().After(stop) {
		return nil, invalid("window stop %s is before the first fire", stop.Format(time.RFC3339))
	}
	return s.register(ev, name), nil
}

// RepeatEventCron registers an event following a cron spec, evaluated in
// Config.Location. Specs with or without a seconds field and descriptors
// like "@hourly" are accepted.
func (s *Scheduler) RepeatEventCron(spec string, handler Handler, name string, data Data) (*Event, error) {
	return s.RepeatEventCronBetween(time.Time{}, time.Time{}, spec, handler, name, data)
}

// RepeatEventCronBetween is RepeatEventCron bounded to [start, stop]. The
// first fire is the first tick after max(now, start).
func (s *Scheduler) RepeatEventCronBetween(start, stop time.Time, spec string, handler Handler, name string, data Data) (*Event, error) {
	if handler == nil {
		return nil, invalid("handler is required")
	}
	sched, err := cronParser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, invalid("cron spec %q: %v", spec, err)
	}
	if !start.IsZero() && !stop.IsZero() && stop.Before(start) {
		return nil, invalid("window stop %s is before start %s", stop.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	s.mu.Lock()
	loc := s.cfg.Location
	s.mu.Unlock()

	from := s.clk.Now()
	if start.After(from) {
		from = start
	}
	first := sched.Next(from.In(loc))
	if first.IsZero() {
		return nil, invalid("cron spec %q never fires", spec)
	}
	if !stop.IsZero() && first.After(stop) {
		return nil, invalid("window stop %s is before the first fire", stop.Format(time.RFC3339))
	}

	ev := newEvent(s.clk, handler, data)
	ev.schedule = sched
	ev.spec = spec
	ev.loc = loc
	ev.span(start, stop)
	ev.fireAt(first)
	return s.register(ev, name), nil
}

// RepeatEventSchedule accepts any form understood by ParseSchedule.
func (s *Scheduler) RepeatEventSchedule(raw string, handler Handler, name string, data Data) (*Event, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if ps.Kind == SpecCron {
		return s.RepeatEventCron(ps.Cron, handler, name, data)
	}
	return s.RepeatEventEvery(float64(ps.Every)/float64(time.Millisecond), Milliseconds, handler, name, data)
}

// RemoveEvent unregisters and cancels the named event. It reports whether
// something was removed; unknown names are a no-op.
func (s *Scheduler) RemoveEvent(name string) bool {
	s.mu.Lock()
	ev, ok := s.events[name]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.events, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	ev.Cancel()
	s.updatePlanLocked()
	s.mu.Unlock()

	s.log.Debug("event removed", logx.String("name", name))
	s.publish(EventRemoved, s.clk.Now(), FireEvent{Name: name, TimesFired: ev.TimesFired(), Done: true})
	return true
}

// Lookup returns the live event registered under name.
func (s *Scheduler) Lookup(name string) (*Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[name]
	return ev, ok
}

// GetEvents returns a snapshot of the registered events in sweep order.
func (s *Scheduler) GetEvents() []EventInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.events[name].Info())
	}
	return out
}

// register inserts ev under name (resolving unnamed registrations), replacing
// any event with the same name, and re-arms when running.
func (s *Scheduler) register(ev *Event, name string) *Event {
	s.mu.Lock()
	ev.name = s.resolveNameLocked(name)
	if old, ok := s.events[ev.name]; ok {
		old.Cancel()
	} else {
		s.order = append(s.order, ev.name)
	}
	s.events[ev.name] = ev
	s.updatePlanLocked()
	if !s.stopped {
		s.setTimerLocked()
	}
	s.mu.Unlock()

	info := ev.Info()
	s.log.Debug("event registered",
		logx.String("name", info.Name),
		logx.Time("planned_at", info.PlannedAt),
		logx.Duration("interval", info.Interval),
		logx.String("schedule", info.Schedule),
	)
	s.publish(EventRegistered, s.clk.Now(), FireEvent{Name: info.Name, Next: info.PlannedAt})
	return ev
}

func (s *Scheduler) resolveNameLocked(name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if s.cfg.Anonymous == AnonymousShared {
		return anonymousName
	}
	return anonymousName + "-" + uuid.NewString()
}

func intervalOf(amount float64, unit Unit) (time.Duration, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, invalid("interval amount must be a positive number, got %v", amount)
	}
	if unit < 0 {
		return 0, invalid("time unit must be positive, got %d", int64(unit))
	}
	d, ok := unit.Duration(amount)
	if !ok || d <= 0 {
		return 0, invalid("interval %v %s is out of range", amount, unit.orDefault())
	}
	return d, nil
}
