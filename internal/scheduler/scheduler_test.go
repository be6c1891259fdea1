package scheduler

import (
	"errors"
	"testing"
	"time"

	"eagertimer/internal/clock"
	"eagertimer/internal/eventbus"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, cfg Config, opts ...Option) (*Scheduler, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := New(cfg, append([]Option{WithClock(fc)}, opts...)...)
	t.Cleanup(s.Stop)
	return s, fc
}

func stoppedConfig() Config {
	cfg := DefaultConfig()
	cfg.AutoStart = false
	return cfg
}

func noop(Data, int) (Data, error) { return nil, nil }

func counter(n *int) Handler {
	return func(Data, int) (Data, error) {
		*n++
		return nil, nil
	}
}

func TestAddEventAtFiresOnceAndIsPruned(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	fired := 0
	ev, err := s.AddEventAt(epoch.Add(time.Second), counter(&fired), "A", nil)
	if err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}

	fc.Advance(time.Second)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if !ev.Done() || !ev.PlannedAt().IsZero() {
		t.Fatalf("event should be done with no plan, done=%v planned=%v", ev.Done(), ev.PlannedAt())
	}
	if got := s.GetEvents(); len(got) != 0 {
		t.Fatalf("event list should be empty, got %+v", got)
	}

	fc.Advance(5 * time.Second)
	if fired != 1 {
		t.Fatalf("one-shot fired again: %d", fired)
	}
}

func TestOneShotFiresFromWakeUps(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	at := epoch.Add(time.Second)
	var firedAt time.Time
	_, err := s.AddEventAt(at, func(Data, int) (Data, error) {
		firedAt = fc.Now()
		return nil, nil
	}, "A", nil)
	if err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}

	fc.Advance(1100 * time.Millisecond)
	if firedAt.IsZero() {
		t.Fatal("event did not fire")
	}
	if firedAt.Before(at) {
		t.Fatalf("fired early at %v", firedAt.Sub(epoch))
	}
	if late := firedAt.Sub(at); late > defaultMinimumInterval {
		t.Fatalf("fired %v late, want <= %v", late, defaultMinimumInterval)
	}
}

func TestRepeatEveryFiresAboutTenTimes(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	var seen []int
	_, err := s.RepeatEventEvery(100, Milliseconds, func(_ Data, n int) (Data, error) {
		seen = append(seen, n)
		return nil, nil
	}, "tick", nil)
	if err != nil {
		t.Fatalf("RepeatEventEvery: %v", err)
	}

	fc.Advance(1050 * time.Millisecond)
	if len(seen) < 9 || len(seen) > 11 {
		t.Fatalf("fired %d times, want 9..11", len(seen))
	}
	for i, n := range seen {
		if n != i {
			t.Fatalf("timesFired sequence %v is not 0,1,2,...", seen)
		}
	}
}

func TestRepeatPlannedAtAdvancesByInterval(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(64, EventFired)
	defer unsub()
	s, fc := newTestScheduler(t, DefaultConfig(), WithBus(bus))

	const every = 70 * time.Millisecond
	if _, err := s.RepeatEventEvery(70, Milliseconds, noop, "r", nil); err != nil {
		t.Fatalf("RepeatEventEvery: %v", err)
	}
	fc.Advance(2 * time.Second)
	s.Stop()

	var prev time.Time
	count := 0
	for {
		select {
		case e := <-ch:
			fe := e.Data.(FireEvent)
			if fe.Next.Sub(fe.PlannedAt) < every {
				t.Fatalf("next %v is less than one interval after %v", fe.Next, fe.PlannedAt)
			}
			if !prev.IsZero() && fe.PlannedAt.Sub(prev) < every {
				t.Fatalf("planned times %v -> %v closer than interval", prev, fe.PlannedAt)
			}
			if fe.FiredAt.Before(fe.PlannedAt) {
				t.Fatalf("fired at %v before plan %v", fe.FiredAt, fe.PlannedAt)
			}
			prev = fe.PlannedAt
			count++
		default:
			if count < 10 {
				t.Fatalf("only %d fires observed", count)
			}
			return
		}
	}
}

func TestWakeDelayHalvesRemainingDistance(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	if got := s.Snapshot().LastDelay; got != time.Second {
		t.Fatalf("idle heartbeat = %v, want 1s", got)
	}

	if _, err := s.AddEventAt(epoch.Add(10*time.Second), noop, "far", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	want := []time.Duration{5 * time.Second, 2500 * time.Millisecond, 1250 * time.Millisecond, 625 * time.Millisecond}
	for i, w := range want {
		if got := s.Snapshot().LastDelay; got != w {
			t.Fatalf("step %d: delay = %v, want %v", i, got, w)
		}
		fc.Advance(w)
	}
}

func TestNextDelayBounds(t *testing.T) {
	s, _ := newTestScheduler(t, stoppedConfig())
	floor := s.cfg.MinimumInterval
	tests := []struct {
		name string
		dist time.Duration
		want time.Duration
	}{
		{name: "far", dist: 4 * time.Second, want: 2 * time.Second},
		{name: "just above floor", dist: 66 * time.Millisecond, want: 33 * time.Millisecond},
		{name: "below floor", dist: 40 * time.Millisecond, want: floor},
		{name: "due now", dist: 0, want: floor},
		{name: "overdue", dist: -time.Second, want: floor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.mu.Lock()
			s.order = []string{"x"}
			s.plan = []time.Time{epoch.Add(time.Hour), epoch.Add(tt.dist)}
			got := s.nextDelayLocked(epoch)
			s.order, s.plan = nil, nil
			s.mu.Unlock()
			if got != tt.want {
				t.Fatalf("delay = %v, want %v", got, tt.want)
			}
			if got < floor {
				t.Fatalf("delay %v below minimum %v", got, floor)
			}
		})
	}
}

func TestIdleHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseInterval = 500
	cfg.TimeUnit = Milliseconds
	s, fc := newTestScheduler(t, cfg)

	fc.Advance(1750 * time.Millisecond)
	snap := s.Snapshot()
	if snap.Iterations != 3 {
		t.Fatalf("iterations = %d, want 3", snap.Iterations)
	}
	if snap.SinceStart != 1500*time.Millisecond {
		t.Fatalf("since start = %v, want 1.5s", snap.SinceStart)
	}
}

func TestStopPauseAndStart(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	fired := 0
	if _, err := s.AddEventAt(epoch.Add(100*time.Millisecond), counter(&fired), "a", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}

	s.Pause()
	if s.Running() {
		t.Fatal("paused scheduler reports running")
	}
	if fc.Pending() != 0 {
		t.Fatalf("pending wake-ups after pause = %d", fc.Pending())
	}
	fc.Advance(time.Second)
	if fired != 0 {
		t.Fatal("event fired while paused")
	}

	// registering while stopped must not arm a wake-up
	if _, err := s.AddEventAt(epoch.Add(2*time.Second), counter(&fired), "b", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	if fc.Pending() != 0 {
		t.Fatalf("registration armed a wake-up while stopped")
	}

	s.Start()
	if !s.Running() || fc.Pending() != 1 {
		t.Fatalf("running=%v pending=%d", s.Running(), fc.Pending())
	}
	fc.Advance(50 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("overdue event should fire on the first wake-up after start, fired=%d", fired)
	}
	s.Start()
	if fc.Pending() != 1 {
		t.Fatalf("double start stacked wake-ups: %d", fc.Pending())
	}
	s.Stop()
	s.Stop()
}

func TestInsertionOrderAndReplacementKeepsSlot(t *testing.T) {
	s, fc := newTestScheduler(t, stoppedConfig())
	var order []string
	rec := func(name string) Handler {
		return func(Data, int) (Data, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	at := epoch.Add(time.Second)
	for _, n := range []string{"c", "a", "b"} {
		if _, err := s.AddEventAt(at, rec(n), n, nil); err != nil {
			t.Fatalf("AddEventAt(%s): %v", n, err)
		}
	}
	old, _ := s.Lookup("c")
	if _, err := s.AddEventAt(at, rec("c2"), "c", nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !old.Done() {
		t.Fatal("replaced event should be cancelled")
	}

	fc.Set(at)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	want := []string{"c2", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandlerErrorAbortsSweep(t *testing.T) {
	var hooked []error
	bus := eventbus.New()
	failed, unsub := bus.Subscribe(8, EventFailed)
	defer unsub()
	s, fc := newTestScheduler(t, stoppedConfig(), WithBus(bus), WithErrorHandler(func(err error) { hooked = append(hooked, err) }))

	boom := errors.New("boom")
	fail := true
	bFired := 0
	at := epoch.Add(100 * time.Millisecond)
	a, _ := s.AddEventAt(at, func(Data, int) (Data, error) {
		if fail {
			return nil, boom
		}
		return nil, nil
	}, "a", nil)
	if _, err := s.AddEventAt(at, counter(&bFired), "b", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}

	fc.Set(at)
	err := s.fireEvents()
	if !errors.Is(err, ErrHandlerFailure) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want handler failure wrapping boom", err)
	}
	var he *HandlerError
	if !errors.As(err, &he) || he.Name != "a" || he.TimesFired != 0 {
		t.Fatalf("unexpected handler error %#v", err)
	}
	if bFired != 0 {
		t.Fatal("sweep continued after a handler error")
	}
	if a.Done() || !a.PlannedAt().Equal(at) || a.TimesFired() != 0 {
		t.Fatalf("failing event state changed: done=%v planned=%v n=%d", a.Done(), a.PlannedAt(), a.TimesFired())
	}

	// timer-driven sweep reports through the hook and the bus, then re-arms
	s.Start()
	fc.Advance(defaultMinimumInterval)
	if len(hooked) != 1 || !errors.Is(hooked[0], boom) {
		t.Fatalf("error hook got %v", hooked)
	}
	select {
	case e := <-failed:
		if fe := e.Data.(FireEvent); fe.Name != "a" || fe.Error == "" {
			t.Fatalf("unexpected failure event %+v", fe)
		}
	default:
		t.Fatal("no timer.failed event published")
	}
	if fc.Pending() != 1 {
		t.Fatalf("scheduler did not re-arm after failure, pending=%d", fc.Pending())
	}

	fail = false
	fc.Advance(defaultMinimumInterval)
	if bFired != 1 || !a.Done() {
		t.Fatalf("retry sweep: bFired=%d aDone=%v", bFired, a.Done())
	}
}

func TestRepeatedFailuresAreThrottled(t *testing.T) {
	hooked := 0
	bus := eventbus.New()
	failed, unsub := bus.Subscribe(256, EventFailed)
	defer unsub()
	s, fc := newTestScheduler(t, DefaultConfig(), WithBus(bus), WithErrorHandler(func(error) { hooked++ }))

	if _, err := s.AddEventAt(epoch, func(Data, int) (Data, error) {
		return nil, errors.New("still broken")
	}, "broken", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	fc.Advance(2 * time.Second)

	if hooked < 50 {
		t.Fatalf("error hook called %d times, want one per wake-up", hooked)
	}
	published := len(failed)
	if published < 1 || published > 2 {
		t.Fatalf("timer.failed published %d times in 2s, want at most one per second", published)
	}
}

func TestHandlerCanRemoveLaterEventInSameSweep(t *testing.T) {
	s, fc := newTestScheduler(t, stoppedConfig())
	at := epoch.Add(time.Second)
	bFired := 0
	if _, err := s.AddEventAt(at, func(Data, int) (Data, error) {
		if !s.RemoveEvent("b") {
			t.Error("RemoveEvent(b) reported nothing removed")
		}
		return nil, nil
	}, "a", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	b, _ := s.AddEventAt(at, counter(&bFired), "b", nil)

	fc.Set(at)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	if bFired != 0 || !b.Done() {
		t.Fatalf("removed event fired=%d done=%v", bFired, b.Done())
	}
}

func TestCancelWhileHandlerRuns(t *testing.T) {
	s, fc := newTestScheduler(t, stoppedConfig())
	var ev *Event
	ev, err := s.RepeatEventEvery(1, Seconds, func(Data, int) (Data, error) {
		ev.Cancel()
		return Data{"ran": true}, nil
	}, "self", nil)
	if err != nil {
		t.Fatalf("RepeatEventEvery: %v", err)
	}
	fc.Advance(time.Second)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	if !ev.Done() || !ev.PlannedAt().IsZero() || ev.TimesFired() != 1 {
		t.Fatalf("done=%v planned=%v n=%d", ev.Done(), ev.PlannedAt(), ev.TimesFired())
	}
	if ev.Data()["ran"] != true {
		t.Fatal("update returned by a cancelled handler was not merged")
	}
	if len(s.GetEvents()) != 0 {
		t.Fatal("cancelled event not pruned")
	}
}

func TestCancelledEventIsPrunedWithoutFiring(t *testing.T) {
	s, fc := newTestScheduler(t, stoppedConfig())
	ev, _ := s.AddEventAt(epoch.Add(time.Hour), noop, "later", nil)
	ev.Cancel()
	fc.Advance(time.Second)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	if len(s.GetEvents()) != 0 {
		t.Fatal("cancelled event still registered")
	}
}

func TestPlanTracksLiveEvents(t *testing.T) {
	s, fc := newTestScheduler(t, stoppedConfig())
	check := func(step string) {
		t.Helper()
		snap := s.Snapshot()
		want := map[time.Time]int{}
		for _, e := range snap.Events {
			if !e.Done {
				want[e.PlannedAt]++
			}
		}
		got := map[time.Time]int{}
		for _, p := range snap.Plan {
			got[p]++
		}
		if len(got) != len(want) {
			t.Fatalf("%s: plan %v, events %v", step, snap.Plan, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Fatalf("%s: plan %v, events %v", step, snap.Plan, want)
			}
		}
	}

	_, _ = s.AddEventAt(epoch.Add(time.Second), noop, "one", nil)
	_, _ = s.RepeatEventEvery(2, Seconds, noop, "rep", nil)
	_, _ = s.AddEventAt(epoch.Add(3*time.Second), noop, "three", nil)
	check("after add")
	s.RemoveEvent("three")
	check("after remove")
	fc.Advance(2 * time.Second)
	if err := s.fireEvents(); err != nil {
		t.Fatalf("fireEvents: %v", err)
	}
	check("after sweep")
	if n := len(s.Snapshot().Plan); n != 1 {
		t.Fatalf("plan size = %d, want 1", n)
	}
}

func TestApplyReArmsWithNewFloor(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())
	if _, err := s.AddEventAt(epoch.Add(100*time.Millisecond), noop, "a", nil); err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	if got := s.Snapshot().LastDelay; got != 50*time.Millisecond {
		t.Fatalf("delay = %v, want 50ms", got)
	}
	cfg := DefaultConfig()
	cfg.MinimumInterval = 80 * time.Millisecond
	s.Apply(cfg)
	if got := s.Snapshot().LastDelay; got != 80*time.Millisecond {
		t.Fatalf("delay after apply = %v, want 80ms", got)
	}
}

func TestHandlerRegistersEvent(t *testing.T) {
	s, fc := newTestScheduler(t, DefaultConfig())
	childFired := 0
	_, err := s.AddEventAt(epoch.Add(100*time.Millisecond), func(Data, int) (Data, error) {
		_, err := s.AddEventAt(fc.Now().Add(100*time.Millisecond), counter(&childFired), "child", nil)
		return nil, err
	}, "parent", nil)
	if err != nil {
		t.Fatalf("AddEventAt: %v", err)
	}
	fc.Advance(time.Second)
	if childFired != 1 {
		t.Fatalf("child fired %d times", childFired)
	}
	if fc.Pending() != 1 {
		t.Fatalf("pending wake-ups = %d, want exactly 1", fc.Pending())
	}
}
