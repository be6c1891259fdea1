// Package scheduler provides an in-process, eager event scheduler.
//
// # Overview
//
// Callers register one-shot or repeating handlers tied to wall-clock times.
// Events are registered under a name; registering a second event under the
// same name replaces the first one in place (it keeps its sweep position).
//
// # Wake-up algorithm
//
// The scheduler does not sleep until the nearest event. It keeps a single
// wake-up armed on its Clock and, on every wake-up, sleeps again for half the
// remaining distance to the nearest planned fire, never less than
// Config.MinimumInterval (32ms by default). Close to the due time the
// scheduler therefore checks several times, which compensates for coarse or
// late timer delivery. With no events registered it only wakes up once per
// base interval (the idle heartbeat).
//
// # Fire sweep
//
// On every wake-up each registered event whose planned time is not after the
// current time fires, in registration order. After a sweep finished events
// are pruned and the plan is recomputed.
//
// A handler receives a copy of the event's data and the number of previous
// fires, and returns a partial update merged key by key into the data.
// Setting "done" to true in the update retires a repeating event.
//
// A handler error stops the sweep: events that already fired keep their new
// state, the failing event keeps its plan and is retried on the next
// wake-up. Every error is passed to the error handler installed with
// WithErrorHandler. Logging and the "timer.failed" bus event are throttled to
// one report per second; the next report carries the number suppressed.
// Panics are not recovered.
//
// A handler that keeps failing is retried on every wake-up, that is every
// Config.MinimumInterval since its plan stays in the past, and events after
// it in registration order do not fire until it succeeds, is removed or is
// cancelled.
//
// # Unnamed events
//
// With AnonymousUnique (the default) each unnamed registration gets a
// synthetic "anonymous-<uuid>" name. AnonymousShared keeps the historical
// behaviour where all unnamed registrations share the "anonymous" slot and
// the last one wins.
//
// # Concurrency
//
// All methods are safe for concurrent use. Sweeps are serialized and
// handlers run without scheduler locks held, so a handler may register or
// remove events.
package scheduler
