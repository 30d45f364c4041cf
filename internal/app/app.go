package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mdbot/internal/audit"
	"mdbot/internal/config"
	"mdbot/internal/dispatch"
	"mdbot/internal/handlers"
	"mdbot/internal/runtime/supervisor"
	"mdbot/internal/services/broadcast"
	"mdbot/internal/services/scheduler"
	"mdbot/internal/settings"
	"mdbot/internal/store"
	kit "mdbot/internal/transport"
	telegram "mdbot/internal/transport/telegram/adapter"
	"mdbot/internal/tts"
	logx "mdbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    store.Store
	registry *settings.Registry

	audit     audit.Store
	auditKeep time.Duration
	pruneSpec string

	adapter kit.Adapter

	sched        *scheduler.Service
	schedEnabled bool
	bcast        *broadcast.Service

	disp *dispatch.Dispatcher

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Reject a broken config before anything touches the network.
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Store (optional). Open decides once; a missing or unreachable database
	// means this process runs degraded until restart.
	storeCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st := store.Open(context.Background(), storeCfg, log)

	registry := settings.NewRegistry(st, log)

	auditCfg, err := mapAuditConfig(cfg)
	if err != nil {
		return nil, err
	}
	auditStore, err := audit.Open(auditCfg, log.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	bcastCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcast := broadcast.New(bcastCfg, ad, log.With(logx.String("comp", "broadcast")))

	ttsTimeout, err := config.ParseDurationOrDefault("tts.timeout", cfg.TTS.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	speech := tts.New(cfg.TTS.Endpoint, cfg.TTS.Lang, ttsTimeout)

	antispamCfg, err := mapAntispamConfig(cfg)
	if err != nil {
		return nil, err
	}

	h := handlers.New(handlers.Deps{
		Log:       log,
		Store:     st,
		Settings:  registry,
		Broadcast: bcast,
		Scheduler: sched,
		TTS:       speech,
		Audit:     auditStore,
		Antispam:  antispamCfg,
	})

	disp := dispatch.New(dispatch.Deps{
		Log:      log,
		Adapter:  ad,
		Store:    st,
		Settings: registry,
		Admins:   cfg.Admins,
	})
	disp.SetRegistry(h.Commands(), h.Passives(), h.Memberships())

	return &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		store:        st,
		registry:     registry,
		audit:        auditStore,
		auditKeep:    auditCfg.Retention,
		pruneSpec:    auditPruneSpec(cfg),
		adapter:      ad,
		sched:        sched,
		schedEnabled: cfg.Scheduler.SchedulerEnabled(),
		bcast:        bcast,
		disp:         disp,
		updates:      make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	// The settings document exists from here on; later readers only race an
	// admin toggling a field, never document creation.
	a.registry.Current(a.sup.Context())

	if a.audit != nil {
		a.bcast.SetOnDone(a.auditBroadcastDone)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.bcast.Start(a.sup.Context())
	if a.schedEnabled {
		a.sched.Start(a.sup.Context())
		a.scheduleAuditPrune()
	} else if a.audit != nil && a.auditKeep > 0 {
		a.log.Warn("audit retention configured but scheduler disabled; pruning will not run")
	}

	// Publish the visible command list to the platform menu. Best-effort: a
	// failure here costs nothing but menu freshness.
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, a.disp.MenuCommands()); err != nil {
			a.log.Warn("menu command update failed", logx.Err(err))
		}
		cancel()
	}

	a.sup.Go("dispatch", func(c context.Context) error {
		return a.disp.Run(c, a.updates)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
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
				sections := changedSections(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}

				for _, s := range sections {
					switch s {
					case "logging", "admins", "broadcast", "scheduler":
						// applied live below
					default:
						a.log.Warn("config section changed; restart required to take effect",
							logx.String("section", s))
					}
				}

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.ConsoleEnabled(),
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				a.disp.SetAdmins(newCfg.Admins)

				if bc, err := mapBroadcastConfig(newCfg); err != nil {
					a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
				} else {
					a.bcast.Apply(bc)
				}

				if sc, err := mapSchedulerConfig(newCfg); err != nil {
					a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
				} else {
					a.sched.Apply(sc)
				}

				a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

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
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Intake stops first so no new updates arrive, then the supervisor waits
	// for the dispatcher to drain in-flight handlers. Persistence closes
	// last because every earlier step may still write a final record.
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("broadcast", 3*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	step("audit", 1*time.Second, func(c context.Context) error {
		if a.audit == nil {
			return nil
		}
		return a.audit.Close()
	})
	step("store", 2*time.Second, func(c context.Context) error { return a.store.Close(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// auditBroadcastDone records the outcome of one finished broadcast pass. It
// runs on the broadcast worker goroutine, so it keeps its own deadline.
func (a *App) auditBroadcastDone(job broadcast.Job, rep broadcast.Report, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e := audit.Entry{
		At:     time.Now(),
		ChatID: job.Requester.ChatID,
		Action: "broadcast_done",
		Target: "job " + job.ID,
		OK:     rep.Sent,
		Fail:   rep.Failed,
		TookMS: took.Milliseconds(),
	}
	if err := a.audit.Append(ctx, e); err != nil {
		a.log.Debug("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

// scheduleAuditPrune registers the nightly retention job. Without a
// retention window the trail keeps everything and no job runs.
func (a *App) scheduleAuditPrune() {
	if a.audit == nil || a.auditKeep <= 0 {
		return
	}
	keep := a.auditKeep
	_, err := a.sched.Cron("audit prune", a.pruneSpec, time.Minute, func(ctx context.Context) error {
		n, err := a.audit.PruneBefore(ctx, time.Now().Add(-keep))
		if err != nil {
			return err
		}
		if n > 0 {
			a.log.Info("audit entries pruned", logx.Int64("count", n))
		}
		return nil
	})
	if err != nil {
		a.log.Warn("audit prune schedule failed", logx.Err(err))
	}
}
