package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eagertimer/internal/clock"
	"eagertimer/internal/config"
	"eagertimer/internal/eventbus"
	"eagertimer/internal/runtime/supervisor"
	"eagertimer/internal/scheduler"
	"eagertimer/internal/storage"
	logx "eagertimer/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	clk  clock.Clock

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sched *scheduler.Scheduler

	autoStart bool

	// declared tracks events registered from the config, by name.
	mu       sync.Mutex
	declared map[string]config.EventConfig
}

type Option func(*App)

// WithClock replaces the system clock for the scheduler and declared "in" events.
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clk = c
		}
	}
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validator)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &App{
		cfgm:     cfgm,
		clk:      clock.System,
		bus:      eventbus.New(),
		declared: map[string]config.EventConfig{},
	}
	for _, o := range opts {
		o(a)
	}

	logSvc, log := logx.NewService(cfg.Logging.ToLogx())
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))

	sc, err := cfg.Storage.ToStorage()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if st != nil {
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	schedCfg, err := cfg.Scheduler.ToScheduler()
	if err != nil {
		a.closeResources()
		return nil, err
	}
	// The app decides when the loop starts.
	a.autoStart = schedCfg.AutoStart
	schedCfg.AutoStart = false

	schedLog := log.With(logx.String("comp", "scheduler"))
	a.sched = scheduler.New(schedCfg,
		scheduler.WithClock(a.clk),
		scheduler.WithLogger(schedLog),
		scheduler.WithBus(a.bus),
	)
	return a, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error reported by an app goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start registers the declared events, launches the history recorder and
// the config watcher, and starts the scheduler unless auto_start is false.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.syncEvents(a.cfgm.Get())

	if a.store != nil {
		events, unsub := a.bus.Subscribe(recorderBuffer, recordedTypes...)
		a.sup.Go0("history.recorder", func(c context.Context) {
			a.record(c, events, unsub)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if a.autoStart {
		a.sched.Start()
	}
	a.log.Info("app started",
		logx.Bool("scheduler_running", a.sched.Running()),
		logx.Int("events", len(a.sched.GetEvents())),
	)
	return nil
}

// Stop halts the scheduler, waits for app goroutines within ctx and closes
// storage and log sinks. Goroutines still running when ctx ends are left
// to finish on their own.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sched.Stop()

	var err error
	if a.sup != nil {
		start := time.Now()
		err = a.sup.Stop(ctx)
		if err != nil {
			a.log.Warn("app goroutines did not stop cleanly", logx.Err(err), logx.Duration("waited", time.Since(start)))
		}
	}
	a.log.Info("stopped", logx.String("reason", string(reason)))
	a.closeResources()
	return err
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
