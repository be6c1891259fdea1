package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eagertimer/internal/clock"
)

// Event is one registered handler together with its due time, recurrence
// and bounding window.
//
// Invariants: a done event has no planned time; an event without interval
// or cron schedule is done after its single fire.
type Event struct {
	mu  sync.Mutex
	clk clock.Clock

	name    string
	handler Handler
	data    Data

	plannedAt time.Time // zero when unset
	interval  time.Duration

	schedule cron.Schedule
	spec     string
	loc      *time.Location

	start time.Time
	end   time.Time

	timesFired int
	done       bool
}

type fireOutcome struct {
	fired      bool
	plannedAt  time.Time
	firedAt    time.Time
	timesFired int
	next       time.Time
	done       bool
}

func newEvent(clk clock.Clock, handler Handler, data Data) *Event {
	return &Event{clk: clk, handler: handler, data: data.Clone(), loc: time.Local}
}

// fireAt plans the next fire at t.
func (e *Event) fireAt(t time.Time) {
	e.mu.Lock()
	e.plannedAt = t
	e.mu.Unlock()
}

// fireIn plans the next fire d from now.
func (e *Event) fireIn(d time.Duration) {
	e.mu.Lock()
	e.plannedAt = e.clk.Now().Add(d)
	e.mu.Unlock()
}

// span restricts repeats to [start, end]. Zero values leave that side open.
func (e *Event) span(start, end time.Time) {
	e.mu.Lock()
	e.start = start
	e.end = end
	e.mu.Unlock()
}

func (e *Event) dueLocked(now time.Time) bool {
	return !e.done && !e.plannedAt.IsZero() && !e.plannedAt.After(now)
}

func (e *Event) due(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dueLocked(now)
}

func (e *Event) repeatingLocked() bool {
	return e.interval > 0 || e.schedule != nil
}

func (e *Event) inWindowLocked(now time.Time) bool {
	return e.end.IsZero() || !now.After(e.end)
}

// plan computes the next fire: the later of the start bound and one
// repetition from now. Repeats that would land past the end bound retire
// the event.
func (e *Event) planLocked(now time.Time) {
	var next time.Time
	if e.schedule != nil {
		next = e.schedule.Next(now.In(e.loc))
		if next.IsZero() {
			e.retireLocked()
			return
		}
	} else {
		next = now.Add(e.interval)
	}
	if e.start.After(next) {
		next = e.start
	}
	if !e.end.IsZero() && next.After(e.end) {
		e.retireLocked()
		return
	}
	e.plannedAt = next
}

func (e *Event) retireLocked() {
	e.plannedAt = time.Time{}
	e.done = true
}

// fire runs the handler once and either re-plans or retires the event.
// The handler runs without the event lock held.
func (e *Event) fire() (fireOutcome, error) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return fireOutcome{}, nil
	}
	firedAt := e.clk.Now()
	planned := e.plannedAt
	n := e.timesFired
	snapshot := e.data.Clone()
	h := e.handler
	e.mu.Unlock()

	upd, err := h(snapshot, n)
	if err != nil {
		return fireOutcome{}, &HandlerError{Name: e.name, TimesFired: n, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.data.Merge(upd)
	switch {
	case e.done:
		// cancelled while the handler ran
	case !e.repeatingLocked() || !e.inWindowLocked(firedAt) || e.data.Done():
		e.retireLocked()
	default:
		e.planLocked(e.clk.Now())
	}
	e.timesFired++
	return fireOutcome{
		fired:      true,
		plannedAt:  planned,
		firedAt:    firedAt,
		timesFired: e.timesFired,
		next:       e.plannedAt,
		done:       e.done,
	}, nil
}

// Cancel retires the event. It is idempotent and does not interrupt a
// handler that is already running.
func (e *Event) Cancel() {
	e.mu.Lock()
	e.retireLocked()
	e.mu.Unlock()
}

// SetHandler rebinds the handler. A fire already in progress finishes with
// the previous one.
func (e *Event) SetHandler(h Handler) error {
	if h == nil {
		return invalid("handler is required")
	}
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
	return nil
}

// SetSpan replaces the window. A planned fire before the new start moves to
// start; one past the new end retires the event. The scheduler picks up the
// new plan on its next wake-up.
func (e *Event) SetSpan(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("window stop %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.start, e.end = start, end
	if e.done {
		return nil
	}
	if e.start.After(e.plannedAt) {
		e.plannedAt = e.start
	}
	if !e.end.IsZero() && e.plannedAt.After(e.end) {
		e.retireLocked()
	}
	return nil
}

func (e *Event) Name() string { return e.name }

func (e *Event) PlannedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plannedAt
}

func (e *Event) Interval() time.Duration { return e.interval }

func (e *Event) TimesFired() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timesFired
}

func (e *Event) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Data returns a copy of the event's data.
func (e *Event) Data() Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Clone()
}

func (e *Event) Info() EventInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EventInfo{
		Name:       e.name,
		PlannedAt:  e.plannedAt,
		Interval:   e.interval,
		Schedule:   e.spec,
		Start:      e.start,
		End:        e.end,
		TimesFired: e.timesFired,
		Done:       e.done,
		Data:       e.data.Clone(),
	}
}
