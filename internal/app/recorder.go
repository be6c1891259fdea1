package app

import (
	"context"
	"time"

	"eagertimer/internal/eventbus"
	"eagertimer/internal/scheduler"
	"eagertimer/internal/storage"
	logx "eagertimer/pkg/logx"
)

const (
	recorderBuffer     = 256
	recorderFlushGrace = 2 * time.Second
)

var recordedTypes = []string{
	scheduler.EventFired,
	scheduler.EventDone,
	scheduler.EventFailed,
	scheduler.EventRemoved,
}

var kindOf = map[string]string{
	scheduler.EventFired:   storage.KindFired,
	scheduler.EventDone:    storage.KindDone,
	scheduler.EventFailed:  storage.KindFailed,
	scheduler.EventRemoved: storage.KindRemoved,
}

func toRecord(e eventbus.Event) (storage.FireRecord, bool) {
	fe, ok := e.Data.(scheduler.FireEvent)
	if !ok {
		return storage.FireRecord{}, false
	}
	at := fe.FiredAt
	if at.IsZero() {
		at = e.Time
	}
	return storage.FireRecord{
		At:         at,
		Name:       fe.Name,
		Kind:       kindOf[e.Type],
		PlannedAt:  fe.PlannedAt,
		TimesFired: fe.TimesFired,
		Next:       fe.Next,
		Error:      fe.Error,
	}, true
}

// record appends scheduler events to storage until ctx ends, then flushes
// whatever is still buffered.
func (a *App) record(ctx context.Context, events <-chan eventbus.Event, unsub func()) {
	log := a.log.With(logx.String("comp", "recorder"))
	write := func(c context.Context, e eventbus.Event) {
		r, ok := toRecord(e)
		if !ok {
			return
		}
		if err := a.store.AppendFire(c, r); err != nil {
			log.Warn("history append failed", logx.String("name", r.Name), logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			unsub()
			fctx, cancel := context.WithTimeout(context.Background(), recorderFlushGrace)
			defer cancel()
			for e := range events {
				write(fctx, e)
			}
			if n := a.bus.Dropped(); n > 0 {
				log.Warn("history missed events (recorder slow)", logx.Uint64("dropped", n))
			}
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			write(ctx, e)
		}
	}
}
