package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stepgate/stepgate/internal/api"
	"github.com/stepgate/stepgate/internal/app/accrual"
	"github.com/stepgate/stepgate/internal/app/boundary"
	"github.com/stepgate/stepgate/internal/app/gate"
	"github.com/stepgate/stepgate/internal/app/ledger"
	"github.com/stepgate/stepgate/internal/app/refresh"
	"github.com/stepgate/stepgate/internal/app/token"
	"github.com/stepgate/stepgate/internal/domain"
	"github.com/stepgate/stepgate/internal/infra/observability"
	"github.com/stepgate/stepgate/internal/infra/sqlite"
)

// NewLogger builds the process-wide JSON logger.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Run starts the daemon and blocks until ctx is cancelled or a component
// fails. configPath enables hot reload of the tariff, day window, and
// gate pricing; pass "" to disable watching.
func Run(ctx context.Context, cfg Config, configPath string) error {
	log := NewLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(filepath.Join(cfg.DataDir, "stepgate.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	// the journal and gate need the economic-day label; the scheduler
	// that owns the window is created a few lines down
	var sched *boundary.Scheduler
	dayKeyAt := func(now time.Time) string {
		w := cfg.Day.Window()
		if sched != nil {
			w = sched.Window()
		}
		return boundary.DayKey(now, w)
	}

	journal := sqlite.NewJournal(db, func() string { return dayKeyAt(time.Now()) })
	led, err := ledger.New(cfg.Tariff.Resolve(), db, journal, log)
	if err != nil {
		return err
	}
	if snap, ok, err := db.LoadSnapshot(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	} else if ok {
		led.Restore(snap)
		log.Info("snapshot restored",
			"balance", snap.TotalStepsBalance(),
			"taken_at", snap.SnapshotTakenAt)
	}

	hub := api.NewBalanceHub()
	var refresher *refresh.Refresher
	sched, err = boundary.NewScheduler(cfg.Day.Window(), led, log, func(dayKey string) {
		if refresher != nil {
			refresher.ResetGrants()
		}
		observability.DayResets.Inc()
		b := led.Balance()
		observability.SetBalance(b.TotalStepsBalance, b.RemainingMinutes)
		hub.Broadcast(api.BalanceEvent{
			Type:             "reset",
			TotalSteps:       b.TotalStepsBalance,
			RemainingMinutes: b.RemainingMinutes,
			DayKey:           dayKey,
			Timestamp:        time.Now().Unix(),
		})
	})
	if err != nil {
		return err
	}

	tokens := token.New(time.Duration(cfg.Token.TTLSeconds)*time.Second, log)
	slot := &refresh.Slot{}
	grantReg := sqlite.NewGrantRegistry(db, func() string { return dayKeyAt(time.Now()) })
	refresher = refresh.New(accrual.New(domain.DefaultAccrualWeights()), led, slot, grantReg, log, func(b domain.BalanceSummary) {
		observability.SetBalance(b.TotalStepsBalance, b.RemainingMinutes)
	})
	g := gate.New(led, tokens, gate.Config{
		DayPassCostSteps:   cfg.Gate.DayPassCostSteps,
		EntryCostOverrides: cfg.Gate.EntryCostOverrides,
	}, dayKeyAt, db, log)

	server := api.NewServer(led, g, tokens, refresher, slot, sched, db, hub, log)
	if cfg.Metrics {
		server.EnableMetrics()
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info("http server listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})
	grp.Go(func() error {
		err := sched.Run(ctx, time.Minute)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		err := tokens.Run(ctx, tokens.TTL())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if configPath != "" {
		grp.Go(func() error {
			err := watchConfig(ctx, configPath, log, func(next Config) {
				applyRuntimeConfig(next, led, sched, g, log)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return grp.Wait()
}

// applyRuntimeConfig pushes the hot-reloadable sections into the running
// components. Listener, data dir, and token TTL changes need a restart.
func applyRuntimeConfig(next Config, led *ledger.Ledger, sched *boundary.Scheduler, g *gate.Gate, log *slog.Logger) {
	if err := led.SetTariff(next.Tariff.Resolve()); err != nil {
		log.Error("reload: tariff rejected", "error", err)
	}
	if err := sched.SetWindow(next.Day.Window()); err != nil {
		log.Error("reload: day window rejected", "error", err)
	}
	if err := g.SetDayPassCost(next.Gate.DayPassCostSteps); err != nil {
		log.Error("reload: day pass cost rejected", "error", err)
	}
	if err := g.ReplaceEntryCostOverrides(next.Gate.EntryCostOverrides); err != nil {
		log.Error("reload: entry cost overrides rejected", "error", err)
	}
	log.Info("config reloaded",
		"steps_per_minute", next.Tariff.Resolve().StepsPerMinute,
		"entry_cost_steps", next.Tariff.Resolve().EntryCostSteps,
		"day_end_hour", next.Day.EndHour,
		"day_end_minute", next.Day.EndMinute,
		"day_pass_cost_steps", next.Gate.DayPassCostSteps)
}
