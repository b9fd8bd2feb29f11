// Package analysis runs direct, cost-governed document analysis requests.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/tokenizer"
)

// ErrInvalidInput is returned when a request has no content.
var ErrInvalidInput = errors.New("content is required")

// Ledger admits and prices AI requests.
type Ledger interface {
	TrackRequest(ctx context.Context, modelKey string, inputLength, outputLength int) (float64, error)
	CalculateCost(modelKey string, inputLength, outputLength int) float64
}

// Cache stores analysis results keyed by prompt hash and model.
type Cache interface {
	Get(ctx context.Context, promptHash, model string) ([]byte, bool)
	Put(ctx context.Context, promptHash, model string, response []byte) error
}

// HashFunc derives a cache key from a model and prompt.
type HashFunc func(model, prompt string) string

// Config selects models and sampling for direct analysis.
type Config struct {
	DefaultModel   string
	FineTunedModel string
	Temperature    float64
	Timeout        time.Duration
}

// Service analyzes documents through the AI invoker under the ledger's budget.
type Service struct {
	cfg     Config
	ledger  Ledger
	invoker inference.Invoker
	cache   Cache
	hash    HashFunc
	counter tokenizer.Counter
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching. hash must be deterministic.
func WithCache(c Cache, hash HashFunc) Option {
	return func(s *Service) {
		s.cache = c
		s.hash = hash
	}
}

// WithCounter sets how prompt and output lengths are measured.
func WithCounter(c tokenizer.Counter) Option {
	return func(s *Service) { s.counter = c }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(cfg Config, ledger Ledger, invoker inference.Invoker, opts ...Option) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "chainscribe-docusense-v1"
	}
	if cfg.FineTunedModel == "" {
		cfg.FineTunedModel = cfg.DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Service{
		cfg:     cfg,
		ledger:  ledger,
		invoker: invoker,
		counter: tokenizer.CharCounter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs one analysis. The request is pre-authorized at its prompt
// length; the returned cost is priced from the actual output.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if req.Content == "" {
		return models.AnalysisResult{}, ErrInvalidInput
	}

	model := s.cfg.DefaultModel
	if req.UseFineTunedModel {
		model = s.cfg.FineTunedModel
	}
	prompt, maxTokens := BuildPrompt(req.AnalysisType, req.Content)

	var key string
	if s.cache != nil {
		key = s.hash(model, prompt)
		if data, ok := s.cache.Get(ctx, key, model); ok {
			var cached models.AnalysisResult
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.Cached = true
				cached.Cost = 0
				s.logger.Debug("analysis cache hit", "document", req.DocumentID, "model", model)
				return cached, nil
			}
		}
	}

	promptLen := s.counter.Count(prompt, model)
	if _, err := s.ledger.TrackRequest(ctx, model, promptLen, 0); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("track analysis: %w", err)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	res, err := s.invoker.Invoke(invokeCtx, models.InvocationRequest{
		ModelID:     model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("invoke analysis: %w", err)
	}

	modelID := res.ModelID
	if modelID == "" {
		modelID = model
	}
	out := models.AnalysisResult{
		Analysis:  res.Output,
		Proof:     res.Proof,
		ModelID:   modelID,
		Timestamp: res.Timestamp,
		Cost:      s.ledger.CalculateCost(modelID, promptLen, s.counter.Count(res.Output, modelID)),
	}
	s.logger.Info("analysis complete",
		"document", req.DocumentID, "type", req.AnalysisType, "model", modelID, "cost", out.Cost)

	if s.cache != nil && res.Output != "" {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Put(ctx, key, model, data); err != nil {
				s.logger.Warn("analysis cache put failed", "error", err)
			}
		}
	}
	return out, nil
}
