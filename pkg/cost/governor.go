// Package cost gates and prices AI invocations against a daily spend cap.
package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// DefaultWarningRatio is the share of the budget past which the cost saving
// latch is set.
const DefaultWarningRatio = 0.9

const dayLayout = "2006-01-02"

// Journal persists admitted ledger entries so that a reset has an archival
// path and a restart can restore the current day.
type Journal interface {
	// Append stores an entry under its accounting day and returns its ID.
	Append(ctx context.Context, day string, entry models.UsageEntry) (int64, error)
	// Archive marks every pending entry with an accounting day <= day as archived.
	Archive(ctx context.Context, day string) error
	// Pending returns the unarchived entries of a day in insertion order.
	Pending(ctx context.Context, day string) ([]models.UsageEntry, error)
}

// Governor is the daily usage ledger. All ledger mutations go through a single
// mutex, so concurrent TrackRequest calls can never jointly overshoot the budget.
type Governor struct {
	budget    float64
	warnRatio float64
	rates     *RateTable
	journal   Journal
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location

	mu         sync.Mutex
	usage      float64
	entries    []models.UsageEntry
	costSaving bool
	day        string
}

// Option configures a Governor.
type Option func(*Governor)

// WithJournal writes admitted entries through to j.
func WithJournal(j Journal) Option {
	return func(g *Governor) { g.journal = j }
}

// WithLogger sets the logger used for ledger events.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithLocation sets the time zone that defines calendar day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(g *Governor) { g.loc = loc }
}

// WithWarningRatio sets the soft warning threshold as a share of the budget.
func WithWarningRatio(r float64) Option {
	return func(g *Governor) { g.warnRatio = r }
}

// NewGovernor creates a Governor with the given daily budget and rate table.
func NewGovernor(dailyBudget float64, rates *RateTable, opts ...Option) (*Governor, error) {
	if dailyBudget <= 0 || math.IsNaN(dailyBudget) || math.IsInf(dailyBudget, 0) {
		return nil, fmt.Errorf("daily budget must be positive, got %v", dailyBudget)
	}
	if rates == nil {
		return nil, errors.New("rate table is required")
	}
	g := &Governor{
		budget:    dailyBudget,
		warnRatio: DefaultWarningRatio,
		rates:     rates,
		logger:    slog.Default(),
		now:       time.Now,
		loc:       time.Local,
	}
	for _, o := range opts {
		o(g)
	}
	if g.warnRatio <= 0 || g.warnRatio > 1 {
		return nil, fmt.Errorf("warning ratio must be in (0, 1], got %v", g.warnRatio)
	}
	g.day = g.dayKey(g.now())
	return g, nil
}

// CalculateCost prices a request. Unknown model keys use the fallback rate.
// Negative lengths count as zero.
func (g *Governor) CalculateCost(modelKey string, inputLength, outputLength int) float64 {
	return g.rates.Price(modelKey, max(inputLength, 0), max(outputLength, 0))
}

// TrackRequest pre-authorizes and records a request. Crossing the warning
// threshold sets the cost saving latch; exceeding the budget fails with a
// *BudgetExceededError and leaves the ledger untouched.
func (g *Governor) TrackRequest(ctx context.Context, modelKey string, inputLength, outputLength int) (float64, error) {
	cost := g.CalculateCost(modelKey, inputLength, outputLength)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rolloverLocked(ctx, now)

	next := g.usage + cost
	if next > g.budget*g.warnRatio {
		if !g.costSaving {
			g.logger.Warn("enabling cost saving mode", "usage", g.usage, "budget", g.budget)
		}
		g.costSaving = true
		if next > g.budget {
			return 0, &BudgetExceededError{Usage: g.usage, Budget: g.budget, Cost: cost}
		}
	}

	entry := models.UsageEntry{
		ModelKey:     modelKey,
		Cost:         cost,
		InputLength:  max(inputLength, 0),
		OutputLength: max(outputLength, 0),
		CreatedAt:    now,
	}
	if g.journal != nil {
		id, err := g.journal.Append(context.WithoutCancel(ctx), g.day, entry)
		if err != nil {
			g.logger.Error("journal append failed", "model", modelKey, "error", err)
		}
		entry.ID = id
	}
	g.entries = append(g.entries, entry)
	g.usage = next

	g.logger.Info("cost tracked", "model", modelKey, "cost", cost, "usage", g.usage)
	return cost, nil
}

// DailyReport summarizes the current calendar day. It never mutates the
// ledger: a ledger whose accounting day has passed reports an empty day.
func (g *Governor) DailyReport() models.DailyReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.dayKey(g.now())
	report := models.DailyReport{
		Date:           today,
		RequestsByType: make(map[string]int),
		DailyBudget:    g.budget,
	}
	if g.day == today {
		var total float64
		for _, e := range g.entries {
			if g.dayKey(e.CreatedAt) != today {
				continue
			}
			total += e.Cost
			report.RequestCount++
			report.RequestsByType[e.ModelKey]++
		}
		report.TotalCost = round(total, 6)
		report.CostSavingMode = g.costSaving
	}
	report.BudgetRemaining = round(math.Max(0, g.budget-report.TotalCost), 6)
	return report
}

// ResetDailyUsage zeroes usage and clears the cost saving latch. The request
// log is archived to the journal and cleared, so the report stays consistent
// with usage. Calling it repeatedly is equivalent to calling it once.
func (g *Governor) ResetDailyUsage(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if g.journal != nil {
		if err = g.journal.Archive(context.WithoutCancel(ctx), g.day); err != nil {
			err = fmt.Errorf("archive usage: %w", err)
		}
	}
	g.resetLocked()
	g.day = g.dayKey(g.now())
	g.logger.Info("daily usage reset", "day", g.day)
	return err
}

// Restore loads the current day's pending journal entries into the ledger and
// archives anything left over from earlier days.
func (g *Governor) Restore(ctx context.Context) error {
	if g.journal == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	today := g.dayKey(now)
	yesterday := g.dayKey(g.startOfDay(now).AddDate(0, 0, -1))
	if err := g.journal.Archive(ctx, yesterday); err != nil {
		return fmt.Errorf("archive stale usage: %w", err)
	}
	entries, err := g.journal.Pending(ctx, today)
	if err != nil {
		return fmt.Errorf("load pending usage: %w", err)
	}

	g.resetLocked()
	g.day = today
	for _, e := range entries {
		g.usage += e.Cost
	}
	g.entries = entries
	g.costSaving = g.usage > g.budget*g.warnRatio
	g.logger.Info("usage restored", "day", today, "requests", len(entries), "usage", g.usage)
	return nil
}

// Usage returns the amount spent since the last reset.
func (g *Governor) Usage() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// CostSavingMode reports whether the warning latch is set.
func (g *Governor) CostSavingMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.costSaving
}

// Budget returns the configured daily budget.
func (g *Governor) Budget() float64 { return g.budget }

// Rates returns the rate table.
func (g *Governor) Rates() *RateTable { return g.rates }

func (g *Governor) rolloverLocked(ctx context.Context, now time.Time) {
	today := g.dayKey(now)
	if today == g.day {
		return
	}
	if g.journal != nil {
		if err := g.journal.Archive(context.WithoutCancel(ctx), g.day); err != nil {
			g.logger.Error("archive on rollover failed", "day", g.day, "error", err)
		}
	}
	g.logger.Info("accounting day rolled over", "from", g.day, "to", today, "usage", g.usage)
	g.resetLocked()
	g.day = today
}

func (g *Governor) resetLocked() {
	g.usage = 0
	g.costSaving = false
	g.entries = nil
}

func (g *Governor) dayKey(t time.Time) string {
	return t.In(g.loc).Format(dayLayout)
}

func (g *Governor) startOfDay(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
