package audit

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/requestid"
)

type auditedInvoker struct {
	next    inference.Invoker
	auditor *Logger
	logger  *slog.Logger
}

// Wrap returns an Invoker that audits every call made through next.
// Entries are written from a goroutine so auditing never delays a caller.
// A nil auditor returns next unchanged.
func Wrap(next inference.Invoker, auditor *Logger, logger *slog.Logger) inference.Invoker {
	if auditor == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &auditedInvoker{next: next, auditor: auditor, logger: logger}
}

func (a *auditedInvoker) Invoke(ctx context.Context, req models.InvocationRequest) (models.InvocationResult, error) {
	start := time.Now()
	res, err := a.next.Invoke(ctx, req)

	id := requestid.From(ctx)
	if id == "" {
		id = requestid.New()
	} else {
		// One HTTP request can issue several invocations.
		id = id + ":" + requestid.New()[:8]
	}
	entry := models.AuditEntry{
		RequestID: id,
		Model:     req.ModelID,
		Provider:  res.Provider,
		Prompt:    req.Prompt,
		Output:    res.Output,
		Proof:     res.Proof,
		Success:   err == nil,
		PromptLen: utf8.RuneCountInString(req.Prompt),
		OutputLen: utf8.RuneCountInString(res.Output),
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	a.auditor.pending.Add(1)
	go func() {
		defer a.auditor.pending.Done()
		if err := a.auditor.Log(context.Background(), entry); err != nil {
			a.logger.Error("audit log error", "error", err)
		}
	}()

	return res, err
}
