package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chainscribe/chainscribe/pkg/changes"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/report"
)

const dateLayout = "2006-01-02"

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"chainscribe_cost_report":     handleCostReport,
	"chainscribe_usage_history":   handleUsageHistory,
	"chainscribe_analyze_changes": handleAnalyzeChanges,
	"chainscribe_change_history":  handleChangeHistory,
	"chainscribe_audit_search":    handleAuditSearch,
	"chainscribe_cache_stats":     handleCacheStats,
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "chainscribe_cost_report",
		Description: "Show today's AI spend against the daily budget, per-model request counts and cost saving mode.",
		InputSchema: object(nil, map[string]any{}),
	},
	{
		Name:        "chainscribe_usage_history",
		Description: "Show journaled AI spend per day and model.",
		InputSchema: object(nil, map[string]any{
			"days": prop("integer", "Number of days to include, today counted (optional, default 7)"),
		}),
	},
	{
		Name:        "chainscribe_analyze_changes",
		Description: "Classify an edit between two document snapshots as minor or major and summarize it. The record is added to the document's change history.",
		InputSchema: object([]string{"previous_content", "current_content"}, map[string]any{
			"previous_content": prop("string", "Document text before the edit"),
			"current_content":  prop("string", "Document text after the edit"),
			"document_id":      prop("string", "Document identifier (optional)"),
			"author":           prop("string", "Author of the edit (optional)"),
		}),
	},
	{
		Name:        "chainscribe_change_history",
		Description: "List recorded changes for a document, newest first.",
		InputSchema: object([]string{"document_id"}, map[string]any{
			"document_id": prop("string", "Document identifier"),
			"limit":       prop("integer", "Maximum records to return (optional, default 50)"),
		}),
	},
	{
		Name:        "chainscribe_audit_search",
		Description: "Search the AI invocation audit log with optional filters.",
		InputSchema: object(nil, map[string]any{
			"model":       prop("string", "Filter by model (optional)"),
			"since":       prop("string", "Start date in YYYY-MM-DD format (optional)"),
			"request_id":  prop("string", "Show a single invocation by request ID (optional)"),
			"failed_only": prop("boolean", "Only failed invocations (optional)"),
		}),
	},
	{
		Name:        "chainscribe_cache_stats",
		Description: "Show analysis response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: object(nil, map[string]any{}),
	},
}

func handleCostReport(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Ledger == nil {
		return textResult("Cost ledger is not configured.")
	}
	return textResult(report.DailyReport(s.deps.Ledger.DailyReport()))
}

type usageHistoryArgs struct {
	Days int `json:"days"`
}

func handleUsageHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Usage == nil {
		return textResult("Usage journal is not configured.")
	}
	var args usageHistoryArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Days <= 0 {
		args.Days = 7
	}
	days, err := s.deps.Usage.Days(ctx, time.Now().AddDate(0, 0, -(args.Days-1)))
	if err != nil {
		return errorResult("Error fetching usage history: " + err.Error())
	}
	return textResult(report.UsageDays(days))
}

type analyzeChangesArgs struct {
	Previous   *string `json:"previous_content"`
	Current    *string `json:"current_content"`
	DocumentID string  `json:"document_id"`
	Author     string  `json:"author"`
}

func handleAnalyzeChanges(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Changes == nil {
		return textResult("Change analysis is not configured.")
	}
	var args analyzeChangesArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	rec, err := s.deps.Changes.Analyze(ctx, models.ChangeRequest{
		Previous:   args.Previous,
		Current:    args.Current,
		DocumentID: args.DocumentID,
		Author:     args.Author,
	})
	if errors.Is(err, changes.ErrInvalidInput) {
		return errorResult("previous_content and current_content are required")
	}
	if err != nil {
		return errorResult("Error analyzing changes: " + err.Error())
	}
	if s.deps.History != nil {
		if err := s.deps.History.Append(ctx, rec); err != nil {
			s.logger.Error("change history append failed", "document", rec.DocumentID, "error", err)
		}
	}
	return textResult(report.ChangeRecord(rec))
}

type changeHistoryArgs struct {
	DocumentID string `json:"document_id"`
	Limit      int    `json:"limit"`
}

func handleChangeHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.History == nil {
		return textResult("Change history is not configured.")
	}
	var args changeHistoryArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.DocumentID == "" {
		return errorResult("document_id is required")
	}
	recs, err := s.deps.History.List(ctx, args.DocumentID, args.Limit)
	if err != nil {
		return errorResult("Error fetching change history: " + err.Error())
	}
	return textResult(report.ChangeRecords(recs))
}

type auditSearchArgs struct {
	Model      string `json:"model"`
	Since      string `json:"since"`
	RequestID  string `json:"request_id"`
	FailedOnly bool   `json:"failed_only"`
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Model:      args.Model,
		RequestID:  args.RequestID,
		FailedOnly: args.FailedOnly,
		Limit:      50,
	}
	if args.Since != "" {
		t, err := time.ParseInLocation(dateLayout, args.Since, time.Local)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.deps.Audit.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	if args.RequestID != "" && len(entries) == 1 {
		return textResult(report.AuditEntry(entries[0]))
	}
	return textResult(report.AuditEntries(entries))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(report.CacheStats(stats))
}
