package scheduler

import "time"

// Snapshot returns a point-in-time view of the scheduler for inspection.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]EventInfo, 0, len(s.order))
	for _, name := range s.order {
		events = append(events, s.events[name].Info())
	}
	return Snapshot{
		Running:         !s.stopped,
		Events:          events,
		Plan:            append([]time.Time(nil), s.plan...),
		Iterations:      s.iterations,
		SinceStart:      s.sinceStart,
		LastDelay:       s.lastDelay,
		MinimumInterval: s.cfg.MinimumInterval,
		Heartbeat:       s.cfg.heartbeat(),
	}
}
