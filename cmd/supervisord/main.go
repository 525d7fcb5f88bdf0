// Command supervisord is the composition root: it wires the Config,
// logger, optional telemetry, AX driver, Locator Store, Session Log,
// Preferences, Classifier, Executor, Lifecycle Manager, Scheduler and
// operator-command Controller together and runs the tick loop until
// interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeloop/supervisor/ax"
	"github.com/codeloop/supervisor/core"
	"github.com/codeloop/supervisor/executor"
	"github.com/codeloop/supervisor/feedback"
	"github.com/codeloop/supervisor/lifecycle"
	"github.com/codeloop/supervisor/locatorstore"
	"github.com/codeloop/supervisor/prefs"
	"github.com/codeloop/supervisor/scheduler"
	"github.com/codeloop/supervisor/sessionlog"
	"github.com/codeloop/supervisor/supervisor"
	"github.com/codeloop/supervisor/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, "supervisor")

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(cfg.Telemetry.ServiceName)
		if err != nil {
			log.Fatalf("telemetry init: %v", err)
		}
		defer func() {
			if shutdownErr := provider.Shutdown(context.Background()); shutdownErr != nil {
				logger.Error("telemetry shutdown failed", map[string]interface{}{"error": shutdownErr.Error()})
			}
		}()
	}

	preferences, err := buildPreferences(cfg, logger)
	if err != nil {
		log.Fatalf("preferences: %v", err)
	}

	// The real accessibility-driver implementation is OS-specific and out of
	// scope for this module (spec.md §1); FakeDriver stands in so the core
	// runs end to end against an empty accessibility tree until a concrete
	// driver is linked in.
	rawDriver := ax.NewFakeDriver()
	guardedDriver, err := ax.NewGuardedDriver(rawDriver, "global", cfg.ActionTimeout, logger)
	if err != nil {
		log.Fatalf("ax driver: %v", err)
	}

	store := locatorstore.New(guardedDriver, preferences, logger)
	sessLog := sessionlog.New(cfg.SessionLogCapacity)
	feedbackChannels := feedback.NoOpChannels()

	exec := executor.New(store, guardedDriver, sessLog, feedbackChannels, cfg.NudgeText, logger)

	lm := lifecycle.New(cfg.BundleIdentifier, core.SystemClock{}, logger)

	sched := scheduler.New(scheduler.Deps{
		Instances:  lm,
		Resolver:   store,
		Driver:     guardedDriver,
		Executor:   exec,
		Config:     cfg,
		Clock:      core.SystemClock{},
		Logger:     logger,
		Feedback:   feedbackChannels,
		SessionLog: sessLog,
	})
	lm.SetEmptySetListener(sched)

	ctrl := supervisor.New(sched, lm, sessLog)
	_ = ctrl // held by the (out-of-scope) UI layer; referenced here so it's wired, not dead

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventSource := lifecycle.NewManualEventSource(16)
	go func() {
		if err := lm.Run(ctx, eventSource); err != nil {
			logger.Error("lifecycle manager stopped with error", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info("supervisor starting", map[string]interface{}{"bundle_identifier": cfg.BundleIdentifier})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	logger.Info("supervisor stopped", nil)
}

func buildPreferences(cfg *core.Config, logger core.Logger) (prefs.Preferences, error) {
	if cfg.PreferencesPath == "" {
		return prefs.NewFake(), nil
	}
	return prefs.NewFileStore(cfg.PreferencesPath, logger)
}
