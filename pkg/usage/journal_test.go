package usage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/history"
	"github.com/chainscribe/chainscribe/pkg/models"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndPending(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id1, err := j.Append(ctx, "2026-10-14", models.UsageEntry{ModelKey: "m", Cost: 1.5, InputLength: 150, CreatedAt: now})
	require.NoError(t, err)
	id2, err := j.Append(ctx, "2026-10-14", models.UsageEntry{ModelKey: "n", Cost: 0.5, InputLength: 50, OutputLength: 10, CreatedAt: now})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	pending, err := j.Pending(ctx, "2026-10-14")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "m", pending[0].ModelKey)
	assert.Equal(t, 1.5, pending[0].Cost)
	assert.Equal(t, 10, pending[1].OutputLength)

	other, err := j.Pending(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestArchive(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, day := range []string{"2026-10-12", "2026-10-13", "2026-10-14"} {
		_, err := j.Append(ctx, day, models.UsageEntry{ModelKey: "m", Cost: 1, CreatedAt: time.Now()})
		require.NoError(t, err)
	}

	require.NoError(t, j.Archive(ctx, "2026-10-13"))

	for day, want := range map[string]int{"2026-10-12": 0, "2026-10-13": 0, "2026-10-14": 1} {
		p, err := j.Pending(ctx, day)
		require.NoError(t, err)
		assert.Len(t, p, want, day)
	}

	days, err := j.Days(ctx, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2026-10-14", days[0].Day)
	assert.False(t, days[0].Archived)
	assert.True(t, days[2].Archived)
}

func TestGovernorRestoresFromJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }

	rates, err := cost.NewRateTable(cost.DefaultRates(), cost.DefaultFallbackModel)
	require.NoError(t, err)

	j1, err := New(dbPath)
	require.NoError(t, err)
	g1, err := cost.NewGovernor(1, rates, cost.WithJournal(j1), cost.WithClock(clock), cost.WithLocation(time.UTC))
	require.NoError(t, err)
	_, err = g1.TrackRequest(ctx, "chainscribe-docusense-v1", 2000, 0) // 0.1
	require.NoError(t, err)
	_, err = g1.TrackRequest(ctx, "chainscribe-docusense-v1", 4000, 1000) // 0.3
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2 := func() *Journal {
		j, err := New(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })
		return j
	}()
	g2, err := cost.NewGovernor(1, rates, cost.WithJournal(j2), cost.WithClock(clock), cost.WithLocation(time.UTC))
	require.NoError(t, err)
	require.NoError(t, g2.Restore(ctx))

	assert.InDelta(t, 0.4, g2.Usage(), 1e-9)
	r := g2.DailyReport()
	assert.Equal(t, 2, r.RequestCount)

	require.NoError(t, g2.ResetDailyUsage(ctx))
	p, err := j2.Pending(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestConcurrentWritersOnSharedFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chainscribe.db")
	j, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	h, err := history.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	const workers, perWorker = 4, 100

	var wg sync.WaitGroup
	var journalErrs, historyErrs atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := j.Append(ctx, "2026-10-14", models.UsageEntry{ModelKey: "m", Cost: 0.01, CreatedAt: now}); err != nil {
					journalErrs.Add(1)
				}
			}
		}()
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec := models.ChangeRecord{
					ID:         fmt.Sprintf("c-%d-%d", w, i),
					DocumentID: "doc-1",
					ChangeType: models.ChangeMinor,
					Summary:    "Minor formatting changes",
					Timestamp:  now,
				}
				if err := h.Append(ctx, rec); err != nil {
					historyErrs.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, journalErrs.Load())
	assert.Zero(t, historyErrs.Load())
	pending, err := j.Pending(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Len(t, pending, workers*perWorker)
}
