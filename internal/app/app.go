// Package app assembles the daemon: config manager, logging, storage,
// API clients, the sync service and its schedule, plus the optional
// observability services.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"firstsync/internal/config"
	"firstsync/internal/eventbus"
	"firstsync/internal/first"
	"firstsync/internal/hubspot"
	"firstsync/internal/observability/pprof"
	"firstsync/internal/observability/sdnotify"
	"firstsync/internal/runtime/supervisor"
	"firstsync/internal/scheduler"
	"firstsync/internal/storage"
	"firstsync/internal/syncer"
	logx "firstsync/pkg/logx"
)

// SyncJobName is the scheduler job that runs the FIRST -> HubSpot sync.
const SyncJobName = "hubspot.sync"

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sync  *syncer.Service
	sched *scheduler.Service
	pprof *pprof.Service
	sd    *sdnotify.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	seasonsCfg, err := mapSeasonsConfig(cfg)
	if err != nil {
		return nil, err
	}
	seasons := first.NewSeasonsClient(seasonsCfg, log.With(logx.String("comp", "seasons")))

	eventsCfg, err := mapEventsConfig(cfg)
	if err != nil {
		return nil, err
	}
	events := first.NewEventsClient(eventsCfg, log.With(logx.String("comp", "events")))

	hubCfg, err := mapHubSpotConfig(cfg)
	if err != nil {
		return nil, err
	}
	hub, err := hubspot.New(hubCfg, log.With(logx.String("comp", "hubspot")))
	if err != nil {
		return nil, err
	}

	syncSvc := syncer.New(mapSyncConfig(cfg), seasons, events, hub,
		store, bus, log.With(logx.String("comp", "sync")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), bus)
	if err := sched.Add(scheduler.Job{
		Name:    SyncJobName,
		Spec:    cfg.Scheduler.Schedule,
		Overlap: scheduler.OverlapSkip,
		Run:     func(c context.Context) error { return syncSvc.Run(c) },
	}); err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))
	sd := sdnotify.New(bus, log.With(logx.String("comp", "sdnotify")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sync:    syncSvc,
		sched:   sched,
		pprof:   pprofSvc,
		sd:      sd,
	}, nil
}

// Done is closed when the app run context ends (Stop or parent cancel).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// RunOnce performs a single sync pass and returns its error. It does not
// start the scheduler or the config watcher, but the pass runs under the
// same default timeout that scheduled runs get.
func (a *App) RunOnce(ctx context.Context) error {
	schedCfg, err := mapSchedulerConfig(a.cfgm.Get())
	if err != nil {
		return err
	}
	if schedCfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, schedCfg.DefaultTimeout)
		defer cancel()
	}
	return a.sync.Run(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(false))

	// Transactional config reload: reject bad files before publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		config.ApplyDefaults(cfg)
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := scheduler.ParseSchedule(cfg.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSeasonsConfig(cfg); err != nil {
			return err
		}
		if _, err := mapEventsConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHubSpotConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	cfg := a.cfgm.Get()

	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}
	a.sd.Start(a.sup.Context())

	if cfg.Scheduler.Enabled && cfg.Scheduler.RunOnStart {
		if err := a.sched.RunNow(SyncJobName); err != nil {
			a.log.Warn("initial sync not queued", logx.Err(err))
		}
	}

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Debug("config change summary", fields...)
			lastApplied = newCfg

			a.applyReload(ctx, newCfg, sections)

			a.log.Info("config reloaded", fields...)
			a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: sections})
		}
	}
}

// applyReload pushes a validated config into the running services.
// Sections backed by constructed HTTP clients (seasons/events/hubspot)
// and storage need a restart; everything else applies live.
func (a *App) applyReload(ctx context.Context, newCfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "storage", "first", "hubspot":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	a.sync.Apply(mapSyncConfig(newCfg))

	prevEnabled := a.sched.Enabled()
	schedCfg, err := mapSchedulerConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(schedCfg)
		// Re-register the sync job so a schedule change takes effect.
		a.sched.Remove(SyncJobName)
		if err := a.sched.Add(scheduler.Job{
			Name:    SyncJobName,
			Spec:    newCfg.Scheduler.Schedule,
			Overlap: scheduler.OverlapSkip,
			Run:     func(c context.Context) error { return a.sync.Run(c) },
		}); err != nil {
			a.log.Warn("sync job not re-registered", logx.Err(err))
		}

		if prevEnabled && !schedCfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && schedCfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	a.pprof.Reconfigure(ctx, mapPprofConfig(newCfg))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("sdnotify", 1*time.Second, func(c context.Context) error { a.sd.Stop(c); return nil })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Stop(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
