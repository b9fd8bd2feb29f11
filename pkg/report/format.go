// Package report renders ledger, history, audit and cache data as plain-text
// tables for the CLI and MCP tools.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chainscribe/chainscribe/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

// DailyReport formats the current day's cost report.
func DailyReport(r models.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cost Report %s\n", r.Date)
	fmt.Fprintf(&b, "  Total Cost:       $%.4f\n", r.TotalCost)
	fmt.Fprintf(&b, "  Daily Budget:     $%.2f\n", r.DailyBudget)
	fmt.Fprintf(&b, "  Budget Remaining: $%.4f\n", r.BudgetRemaining)
	fmt.Fprintf(&b, "  Requests:         %d\n", r.RequestCount)
	mode := "off"
	if r.CostSavingMode {
		mode = "ON"
	}
	fmt.Fprintf(&b, "  Cost Saving Mode: %s\n", mode)

	if len(r.RequestsByType) > 0 {
		keys := make([]string, 0, len(r.RequestsByType))
		for k := range r.RequestsByType {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-32s %8s\n", "MODEL", "REQUESTS")
		b.WriteString(strings.Repeat("-", 41) + "\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%-32s %8d\n", k, r.RequestsByType[k])
		}
	}
	return b.String()
}

// UsageDays formats journaled per-day usage.
func UsageDays(days []models.UsageDay) string {
	if len(days) == 0 {
		return "No usage history found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s  %-30s %8s %10s %10s %12s %-8s\n",
		"DAY", "MODEL", "REQUESTS", "INPUT", "OUTPUT", "COST", "STATE")
	b.WriteString(strings.Repeat("-", 96) + "\n")

	var total float64
	for _, d := range days {
		state := "open"
		if d.Archived {
			state = "archived"
		}
		fmt.Fprintf(&b, "%-10s  %-30s %8d %10d %10d $%11.4f %-8s\n",
			d.Day, d.ModelKey, d.RequestCount, d.InputLength, d.OutputLength, d.TotalCost, state)
		total += d.TotalCost
	}
	b.WriteString(strings.Repeat("-", 96) + "\n")
	fmt.Fprintf(&b, "%74s $%11.4f\n", "TOTAL:", total)
	return b.String()
}

// ChangeRecord formats one analyzed change.
func ChangeRecord(r models.ChangeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Change %s\n", r.ID)
	fmt.Fprintf(&b, "  Document:    %s\n", r.DocumentID)
	fmt.Fprintf(&b, "  Type:        %s\n", r.ChangeType)
	fmt.Fprintf(&b, "  Requires AI: %t\n", r.RequiresAI)
	fmt.Fprintf(&b, "  Lines:       +%d / -%d\n", r.Additions, r.Deletions)
	if r.Author != "" {
		fmt.Fprintf(&b, "  Author:      %s\n", r.Author)
	}
	if r.ModelID != "" {
		fmt.Fprintf(&b, "  Model:       %s\n", r.ModelID)
	}
	if r.Proof != "" {
		fmt.Fprintf(&b, "  Proof:       %s\n", r.Proof)
	}
	fmt.Fprintf(&b, "  Time:        %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Summary:     %s\n", r.Summary)
	return b.String()
}

// ChangeRecords formats a document's change history.
func ChangeRecords(recs []models.ChangeRecord) string {
	if len(recs) == 0 {
		return "No changes recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-6s %3s %6s %6s  %s\n", "TIME", "TYPE", "AI", "ADD", "DEL", "SUMMARY")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range recs {
		ai := "no"
		if r.RequiresAI {
			ai = "yes"
		}
		fmt.Fprintf(&b, "%-20s %-6s %3s %6d %6d  %s\n",
			r.Timestamp.Local().Format(timeLayout), r.ChangeType, ai, r.Additions, r.Deletions,
			truncate(r.Summary, 60))
	}
	return b.String()
}

// AuditEntries formats audited invocations.
func AuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-30s %-12s %-7s %8s %8s %8s\n",
		"TIME", "MODEL", "PROVIDER", "STATUS", "PROMPT", "OUTPUT", "LATENCY")
	b.WriteString(strings.Repeat("-", 99) + "\n")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "%-20s %-30s %-12s %-7s %8d %8d %6dms\n",
			e.CreatedAt.Local().Format(timeLayout), e.Model, defaultStr(e.Provider, "-"), status,
			e.PromptLen, e.OutputLen, e.LatencyMs)
	}
	return b.String()
}

// AuditEntry formats a single audited invocation including its bodies.
func AuditEntry(e models.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID:    %s\n", e.RequestID)
	fmt.Fprintf(&b, "Model:         %s\n", e.Model)
	fmt.Fprintf(&b, "Provider:      %s\n", defaultStr(e.Provider, "-"))
	fmt.Fprintf(&b, "Success:       %t\n", e.Success)
	if e.Error != "" {
		fmt.Fprintf(&b, "Error:         %s\n", e.Error)
	}
	if e.Proof != "" {
		fmt.Fprintf(&b, "Proof:         %s\n", e.Proof)
	}
	fmt.Fprintf(&b, "Latency:       %dms\n", e.LatencyMs)
	fmt.Fprintf(&b, "Lengths:       %d prompt / %d output\n", e.PromptLen, e.OutputLen)
	fmt.Fprintf(&b, "Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.Prompt != "" {
		fmt.Fprintf(&b, "\n--- Prompt ---\n%s\n", e.Prompt)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, "\n--- Output ---\n%s\n", e.Output)
	}
	return b.String()
}

// AuditStats formats per-model, per-day audit counts.
func AuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-30s %8s %8s\n", "DAY", "MODEL", "COUNT", "FAILED")
	b.WriteString(strings.Repeat("-", 61) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-30s %8d %8d\n", s.Day, s.Model, s.Count, s.Failures)
	}
	return b.String()
}

// CacheStats formats response cache metrics.
func CacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
