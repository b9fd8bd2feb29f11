package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chainscribe/chainscribe/pkg/models"
)

func TestDailyReport(t *testing.T) {
	out := DailyReport(models.DailyReport{
		Date:            "2026-10-14",
		TotalCost:       1.25,
		RequestCount:    3,
		RequestsByType:  map[string]int{"b-model": 1, "a-model": 2},
		BudgetRemaining: 8.75,
		CostSavingMode:  true,
		DailyBudget:     10,
	})
	assert.Contains(t, out, "Cost Report 2026-10-14")
	assert.Contains(t, out, "$1.2500")
	assert.Contains(t, out, "Cost Saving Mode: ON")
	assert.Less(t, strings.Index(out, "a-model"), strings.Index(out, "b-model"))
}

func TestUsageDays(t *testing.T) {
	assert.Equal(t, "No usage history found.\n", UsageDays(nil))

	out := UsageDays([]models.UsageDay{
		{Day: "2026-10-14", ModelKey: "m", RequestCount: 2, TotalCost: 0.5},
		{Day: "2026-10-13", ModelKey: "m", RequestCount: 1, TotalCost: 0.25, Archived: true},
	})
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "$     0.7500")
}

func TestChangeRecords(t *testing.T) {
	assert.Equal(t, "No changes recorded.\n", ChangeRecords(nil))

	ts := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	out := ChangeRecords([]models.ChangeRecord{
		{ChangeType: models.ChangeMajor, RequiresAI: true, Additions: 4, Summary: strings.Repeat("long ", 30), Timestamp: ts},
	})
	assert.Contains(t, out, "major")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "...")

	one := ChangeRecord(models.ChangeRecord{ID: "c-1", DocumentID: "d", ChangeType: models.ChangeMinor, Summary: "Added 1 lines of content", Timestamp: ts})
	assert.Contains(t, one, "Change c-1")
	assert.NotContains(t, one, "Proof:")
}

func TestAuditFormatting(t *testing.T) {
	assert.Equal(t, "No audit entries found.\n", AuditEntries(nil))

	e := models.AuditEntry{RequestID: "r-1", Model: "m", Success: false, Error: "boom", Prompt: "hi", LatencyMs: 12}
	assert.Contains(t, AuditEntries([]models.AuditEntry{e}), "failed")

	detail := AuditEntry(e)
	assert.Contains(t, detail, "Error:         boom")
	assert.Contains(t, detail, "--- Prompt ---\nhi")
	assert.NotContains(t, detail, "--- Output ---")

	assert.Contains(t, AuditStats([]models.AuditStat{{Model: "m", Day: "2026-10-14", Count: 3, Failures: 1}}), "2026-10-14")
}

func TestCacheStats(t *testing.T) {
	out := CacheStats(models.CacheStats{Entries: 42, Hits: 10, Misses: 5})
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "66.7%")
	assert.Contains(t, CacheStats(models.CacheStats{}), "0.0%")
}
