package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chainscribe/chainscribe/pkg/analysis"
	"github.com/chainscribe/chainscribe/pkg/audit"
	cachepkg "github.com/chainscribe/chainscribe/pkg/cache/sqlite"
	"github.com/chainscribe/chainscribe/pkg/changes"
	"github.com/chainscribe/chainscribe/pkg/config"
	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/history"
	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/router"
	"github.com/chainscribe/chainscribe/pkg/scheduler"
	"github.com/chainscribe/chainscribe/pkg/storage"
	"github.com/chainscribe/chainscribe/pkg/tokenizer"
	"github.com/chainscribe/chainscribe/pkg/usage"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogger builds a text logger at the configured level. Logs go to
// stderr so stdout stays free for command output and the MCP stream.
func setupLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func auditDBPath(cfg *config.Config) string {
	if cfg.Audit.DBPath != "" {
		return cfg.Audit.DBPath
	}
	return cfg.DBPath
}

// app holds every component the serve and mcp commands wire together.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	journal  *usage.Journal
	governor *cost.Governor
	history  *history.Store
	storage  *storage.Store
	cache    *cachepkg.Cache
	auditor  *audit.Logger
	analysis *analysis.Service
	changes  *changes.Classifier
	closers  []func() error
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.journal, err = usage.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init usage journal: %w", err)
	}
	a.closers = append(a.closers, a.journal.Close)

	rates, err := cost.NewRateTable(cfg.Rates.Models, cfg.Rates.Fallback)
	if err != nil {
		return nil, fmt.Errorf("init rates: %w", err)
	}
	a.governor, err = cost.NewGovernor(cfg.Budget.DailyBudget, rates,
		cost.WithJournal(a.journal),
		cost.WithLogger(logger.With("component", "cost")),
		cost.WithWarningRatio(cfg.Budget.WarningRatio),
	)
	if err != nil {
		return nil, fmt.Errorf("init cost governor: %w", err)
	}
	if err := a.governor.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore usage: %w", err)
	}

	if a.history, err = history.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init change history: %w", err)
	}
	a.closers = append(a.closers, a.history.Close)

	if a.storage, err = storage.New(cfg.DBPath, cfg.Storage.CacheMaxBytes); err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}
	a.closers = append(a.closers, a.storage.Close)

	if cfg.Cache.Enabled {
		if a.cache, err = cachepkg.New(cfg.DBPath, cfg.Cache.TTL); err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		a.closers = append(a.closers, a.cache.Close)
	}

	if cfg.Audit.Enabled {
		auditCfg := cfg.Audit
		auditCfg.DBPath = auditDBPath(cfg)
		if a.auditor, err = audit.New(auditCfg, logger.With("component", "audit")); err != nil {
			return nil, fmt.Errorf("init audit logger: %w", err)
		}
		a.closers = append(a.closers, a.auditor.Close)
	}

	counter, err := tokenizer.New(cfg.Budget.LengthUnit, logger)
	if err != nil {
		return nil, err
	}

	client := inference.NewClient(router.New(cfg.Inference),
		inference.WithLogger(logger.With("component", "inference")))
	invoker := audit.Wrap(client, a.auditor, logger)

	analysisOpts := []analysis.Option{
		analysis.WithCounter(counter),
		analysis.WithLogger(logger.With("component", "analysis")),
	}
	if a.cache != nil {
		analysisOpts = append(analysisOpts, analysis.WithCache(a.cache, cachepkg.HashPrompt))
	}
	a.analysis = analysis.New(analysis.Config{
		DefaultModel:   cfg.Inference.DefaultModel,
		FineTunedModel: cfg.Inference.FineTunedModel,
		Timeout:        cfg.Inference.Timeout,
	}, a.governor, invoker, analysisOpts...)

	a.changes = changes.New(changes.Config{
		MinorEditThreshold: cfg.Changes.MinorEditThreshold,
		Model:              cfg.Changes.Model,
		MaxDiffLines:       cfg.Changes.MaxDiffLines,
		MaxTokens:          cfg.Changes.MaxTokens,
		Temperature:        cfg.Changes.Temperature,
		Timeout:            cfg.Inference.Timeout,
	}, a.governor, invoker,
		changes.WithCounter(counter),
		changes.WithLogger(logger.With("component", "changes")),
	)
	return a, nil
}

// schedule registers the maintenance jobs.
func (a *app) schedule(e *scheduler.Engine) error {
	if spec := a.cfg.Budget.ResetSchedule; spec != "" {
		if err := e.Add(scheduler.Job{Name: "daily-reset", Spec: spec, Run: a.governor.ResetDailyUsage}); err != nil {
			return err
		}
	}
	if a.cache != nil {
		err := e.Add(scheduler.Job{
			Name: "cache-sweep",
			Spec: "0 0 * * * *",
			Run: func(ctx context.Context) error {
				n, err := a.cache.Clear(ctx, true)
				if n > 0 {
					a.logger.Info("expired cache entries removed", "count", n)
				}
				return err
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases components in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func parseSince(s string, days int) (time.Time, error) {
	if s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
		}
		return t, nil
	}
	if days <= 0 {
		days = 1
	}
	return time.Now().AddDate(0, 0, -(days - 1)), nil
}

func stderrLogger(cfg *config.Config) *slog.Logger {
	return setupLogger(cfg.LogLevel, os.Stderr)
}
