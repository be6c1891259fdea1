package scheduler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"eagertimer/internal/clock"
	"eagertimer/internal/eventbus"
	logx "eagertimer/pkg/logx"
)

// Scheduler owns the registered events and the single pending wake-up.
// Create one with New and share it; there is no package-level instance.
type Scheduler struct {
	mu sync.Mutex
	// sweepMu serializes fire sweeps; handlers run with only sweepMu held.
	sweepMu sync.Mutex

	cfg     Config
	clk     clock.Clock
	log     logx.Logger
	bus     eventbus.Bus
	onError func(error)
	trace   *rate.Limiter
	// failures throttles failure logs and timer.failed publishes;
	// suppressed counts the reports dropped since the last one let through.
	failures   *rate.Limiter
	suppressed int

	events map[string]*Event
	order  []string
	plan   []time.Time

	stopped bool
	hook    clock.Timer
	// gen identifies the armed wake-up; callbacks from replaced or stopped
	// wake-ups carry an older value and are ignored.
	gen uint64

	iterations uint64
	startedAt  time.Time
	sinceStart time.Duration
	lastDelay  time.Duration
}

// New creates a scheduler. It starts immediately when cfg.AutoStart is set.
func New(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg.withDefaults(),
		clk:     clock.System,
		log:     logx.Nop(),
		events:  map[string]*Event{},
		stopped: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.trace = newTraceLimiter(s.cfg.TraceRate)
	s.failures = rate.NewLimiter(rate.Every(failureReportEvery), 1)
	s.startedAt = s.clk.Now()
	if cfg.AutoStart {
		s.Start()
	}
	return s
}

// failureReportEvery bounds how often a handler that keeps failing is
// logged and published.
const failureReportEvery = time.Second

func newTraceLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

// Apply hot-swaps intervals, naming policy and trace rate. AutoStart is
// only honoured by New. A running scheduler re-arms with the new values.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.trace = newTraceLimiter(cfg.TraceRate)
	s.log.Debug("config applied",
		logx.Duration("minimum_interval", cfg.MinimumInterval),
		logx.Duration("heartbeat", cfg.heartbeat()),
	)
	if !s.stopped {
		s.setTimerLocked()
	}
}

// Start arms the next wake-up. Starting a running scheduler re-arms it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasStopped := s.stopped
	s.stopped = false
	s.setTimerLocked()
	if wasStopped {
		s.log.Info("scheduler started", logx.Int("events", len(s.order)))
	}
}

// Stop cancels the pending wake-up. Registered events are kept and resume
// on the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hook != nil {
		s.hook.Stop()
		s.hook = nil
	}
	s.gen++
	if !s.stopped {
		s.log.Info("scheduler stopped", logx.Uint64("iterations", s.iterations))
	}
	s.stopped = true
}

// Pause is an alias for Stop.
func (s *Scheduler) Pause() { s.Stop() }

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// setTimerLocked replaces the pending wake-up. Call with s.mu held.
func (s *Scheduler) setTimerLocked() {
	if s.hook != nil {
		s.hook.Stop()
		s.hook = nil
	}
	s.gen++
	gen := s.gen
	d := s.nextDelayLocked(s.clk.Now())
	s.lastDelay = d
	s.hook = s.clk.AfterFunc(d, func() { s.onTimer(gen) })
}

// nextDelayLocked halves the distance to the nearest planned fire, bounded
// below by the minimum interval. Without events it returns the heartbeat.
func (s *Scheduler) nextDelayLocked(now time.Time) time.Duration {
	if len(s.order) == 0 || len(s.plan) == 0 {
		return s.cfg.heartbeat()
	}
	next := s.plan[0]
	for _, t := range s.plan[1:] {
		if t.Before(next) {
			next = t
		}
	}
	d := next.Sub(now) / 2
	if d < s.cfg.MinimumInterval {
		d = s.cfg.MinimumInterval
	}
	return d
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.hook = nil
	s.iterations++
	now := s.clk.Now()
	s.sinceStart = now.Sub(s.startedAt)
	iter := s.iterations
	tr := s.trace
	s.mu.Unlock()

	if tr != nil && tr.Allow() {
		s.log.Trace("wake-up", logx.Uint64("iteration", iter), logx.Duration("since_start", now.Sub(s.startedAt)))
	}

	if err := s.fireEvents(); err != nil {
		s.reportError(err)
	}

	s.mu.Lock()
	if !s.stopped {
		s.setTimerLocked()
	}
	s.mu.Unlock()
}

// fireEvents runs one sweep: every due event fires in registration order.
// The first handler error aborts the rest of the sweep and is returned.
func (s *Scheduler) fireEvents() error {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	s.mu.Lock()
	now := s.clk.Now()
	due := make([]*Event, 0, len(s.order))
	for _, name := range s.order {
		if ev := s.events[name]; ev.due(now) {
			due = append(due, ev)
		}
	}
	s.mu.Unlock()

	var sweepErr error
	for _, ev := range due {
		// skip events removed or replaced by an earlier handler in this sweep
		s.mu.Lock()
		live := s.events[ev.name] == ev
		s.mu.Unlock()
		if !live {
			continue
		}
		out, err := ev.fire()
		if err != nil {
			sweepErr = err
			break
		}
		if out.fired {
			s.afterFire(ev.name, out)
		}
	}

	s.mu.Lock()
	// plans may also move outside a fire (Event.SetSpan), so refresh always
	s.pruneLocked()
	s.updatePlanLocked()
	s.mu.Unlock()
	return sweepErr
}

func (s *Scheduler) afterFire(name string, out fireOutcome) {
	fe := FireEvent{
		Name:       name,
		PlannedAt:  out.plannedAt,
		FiredAt:    out.firedAt,
		TimesFired: out.timesFired,
		Next:       out.next,
		Done:       out.done,
	}
	s.log.Debug("event fired",
		logx.String("name", name),
		logx.Int("times_fired", out.timesFired),
		logx.Duration("late", out.firedAt.Sub(out.plannedAt)),
	)
	s.publish(EventFired, out.firedAt, fe)
	if out.done {
		s.publish(EventDone, out.firedAt, fe)
	}
}

func (s *Scheduler) reportError(err error) {
	fe := FireEvent{Error: err.Error()}
	if he, ok := err.(*HandlerError); ok {
		fe.Name = he.Name
		fe.TimesFired = he.TimesFired
	}
	fe.FiredAt = s.clk.Now()
	if s.onError != nil {
		s.onError(err)
	}

	s.mu.Lock()
	if !s.failures.AllowN(fe.FiredAt, 1) {
		s.suppressed++
		s.mu.Unlock()
		return
	}
	suppressed := s.suppressed
	s.suppressed = 0
	s.mu.Unlock()

	s.log.Error("sweep aborted", logx.String("name", fe.Name), logx.Int("suppressed", suppressed), logx.Err(err))
	s.publish(EventFailed, fe.FiredAt, fe)
}

func (s *Scheduler) publish(typ string, at time.Time, fe FireEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: fe})
}

// pruneLocked drops finished events. Call with s.mu held.
func (s *Scheduler) pruneLocked() {
	n := 0
	for _, name := range s.order {
		if s.events[name].Done() {
			delete(s.events, name)
			continue
		}
		s.order[n] = name
		n++
	}
	s.order = s.order[:n]
}

// updatePlanLocked rebuilds the plan cache from live events. Call with s.mu held.
func (s *Scheduler) updatePlanLocked() {
	plan := s.plan[:0]
	for _, name := range s.order {
		if t := s.events[name].PlannedAt(); !t.IsZero() {
			plan = append(plan, t)
		}
	}
	s.plan = plan
}
