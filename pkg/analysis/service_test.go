package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachepkg "github.com/chainscribe/chainscribe/pkg/cache/sqlite"
	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/models"
)

func newGovernor(t *testing.T, budget float64) *cost.Governor {
	t.Helper()
	rates, err := cost.NewRateTable([]models.ModelRate{
		{Model: "doc", InputRate: 0.001, OutputRate: 0.002},
		{Model: "expert", InputRate: 0.01, OutputRate: 0.02},
	}, "doc")
	require.NoError(t, err)
	g, err := cost.NewGovernor(budget, rates)
	require.NoError(t, err)
	return g
}

type countingInvoker struct {
	calls  []models.InvocationRequest
	output string
	err    error
}

func (c *countingInvoker) Invoke(_ context.Context, req models.InvocationRequest) (models.InvocationResult, error) {
	c.calls = append(c.calls, req)
	if c.err != nil {
		return models.InvocationResult{}, c.err
	}
	return models.InvocationResult{
		Output:    c.output,
		Proof:     "chat-7",
		ModelID:   req.ModelID,
		Timestamp: time.Date(2026, 10, 14, 11, 0, 0, 0, time.UTC),
	}, nil
}

func TestBuildPrompt(t *testing.T) {
	cases := map[models.AnalysisType]int{
		models.AnalysisSummary:     300,
		models.AnalysisExplanation: 400,
		models.AnalysisRelated:     400,
		models.AnalysisGraph:       1000,
		models.AnalysisChange:      150,
		models.AnalysisGeneral:     500,
		"":                         500,
		"unknown":                  500,
	}
	for typ, want := range cases {
		prompt, maxTokens := BuildPrompt(typ, "BODY")
		assert.Equal(t, want, maxTokens, typ)
		assert.True(t, strings.HasSuffix(prompt, "BODY"), typ)
	}
	p, _ := BuildPrompt(models.AnalysisSummary, "x")
	assert.Equal(t, "Provide a concise summary of the following text:\n\nx", p)
}

func TestAnalyzeRejectsEmptyContent(t *testing.T) {
	inv := &countingInvoker{}
	s := New(Config{DefaultModel: "doc"}, newGovernor(t, 10), inv)
	_, err := s.Analyze(context.Background(), models.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, inv.calls)
}

func TestAnalyze(t *testing.T) {
	g := newGovernor(t, 10)
	inv := &countingInvoker{output: "A short summary."}
	s := New(Config{DefaultModel: "doc", FineTunedModel: "expert"}, g, inv)

	res, err := s.Analyze(context.Background(), models.AnalysisRequest{
		Content: "Some document text", DocumentID: "d-1", AnalysisType: models.AnalysisSummary,
	})
	require.NoError(t, err)

	prompt, _ := BuildPrompt(models.AnalysisSummary, "Some document text")
	require.Len(t, inv.calls, 1)
	assert.Equal(t, "doc", inv.calls[0].ModelID)
	assert.Equal(t, 300, inv.calls[0].MaxTokens)
	assert.Equal(t, 0.3, inv.calls[0].Temperature)

	assert.Equal(t, "A short summary.", res.Analysis)
	assert.Equal(t, "chat-7", res.Proof)
	assert.Equal(t, "doc", res.ModelID)
	assert.InDelta(t, float64(len(prompt))*0.001+16*0.002, res.Cost, 1e-9)
	assert.InDelta(t, float64(len(prompt))*0.001, g.Usage(), 1e-9, "only the pre-authorization is recorded")
}

func TestAnalyzeFineTunedModel(t *testing.T) {
	inv := &countingInvoker{output: "ok"}
	s := New(Config{DefaultModel: "doc", FineTunedModel: "expert"}, newGovernor(t, 10), inv)
	_, err := s.Analyze(context.Background(), models.AnalysisRequest{Content: "x", UseFineTunedModel: true})
	require.NoError(t, err)
	assert.Equal(t, "expert", inv.calls[0].ModelID)
}

func TestAnalyzeBudgetExceeded(t *testing.T) {
	inv := &countingInvoker{output: "ok"}
	s := New(Config{DefaultModel: "doc"}, newGovernor(t, 0.01), inv)

	_, err := s.Analyze(context.Background(), models.AnalysisRequest{Content: strings.Repeat("x", 100)})
	require.Error(t, err)
	assert.ErrorIs(t, err, cost.ErrBudgetExceeded)

	var be *cost.BudgetExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 0.01, be.Budget)
	assert.Empty(t, inv.calls)
}

func TestAnalyzeInvocationFailure(t *testing.T) {
	inv := &countingInvoker{err: &inference.InvocationError{Provider: "p", Model: "doc", Err: errors.New("down")}}
	s := New(Config{DefaultModel: "doc"}, newGovernor(t, 10), inv)

	_, err := s.Analyze(context.Background(), models.AnalysisRequest{Content: "x"})
	assert.ErrorIs(t, err, inference.ErrInvocationFailed)
}

func TestAnalyzeCacheHitSkipsSpend(t *testing.T) {
	c, err := cachepkg.New(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	g := newGovernor(t, 10)
	inv := &countingInvoker{output: "cached answer"}
	s := New(Config{DefaultModel: "doc"}, g, inv, WithCache(c, cachepkg.HashPrompt))
	ctx := context.Background()
	req := models.AnalysisRequest{Content: "repeat me", AnalysisType: models.AnalysisExplanation}

	first, err := s.Analyze(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	spent := g.Usage()

	second, err := s.Analyze(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.Analysis)
	assert.Zero(t, second.Cost)
	assert.Equal(t, spent, g.Usage())
	assert.Len(t, inv.calls, 1)
}
