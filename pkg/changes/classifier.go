// Package changes classifies document edits and summarizes them, calling
// the AI only for major edits.
package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/tokenizer"
)

// ErrInvalidInput is returned when a snapshot is missing.
var ErrInvalidInput = errors.New("previous and current content are required")

// errEmptyOutput marks a successful invocation that produced no text.
var errEmptyOutput = errors.New("empty ai output")

// Config controls classification and the AI summary call.
type Config struct {
	MinorEditThreshold int
	Model              string
	MaxDiffLines       int
	MaxTokens          int
	Temperature        float64
	Timeout            time.Duration
}

// DefaultConfig returns the standard classifier settings.
func DefaultConfig() Config {
	return Config{
		MinorEditThreshold: 50,
		Model:              "chainscribe-change-analyzer",
		MaxDiffLines:       10,
		MaxTokens:          150,
		Temperature:        0.2,
		Timeout:            30 * time.Second,
	}
}

// Tracker admits and records the cost of an AI request.
type Tracker interface {
	TrackRequest(ctx context.Context, modelKey string, inputLength, outputLength int) (float64, error)
}

// Classifier turns a pair of snapshots into a ChangeRecord.
type Classifier struct {
	cfg     Config
	tracker Tracker
	invoker inference.Invoker
	counter tokenizer.Counter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCounter sets how the prompt length is measured for pricing.
func WithCounter(c tokenizer.Counter) Option {
	return func(cl *Classifier) { cl.counter = c }
}

// WithLogger sets the classifier logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Classifier) { cl.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(cl *Classifier) { cl.now = now }
}

// New creates a Classifier. Zero-valued config fields take their defaults.
func New(cfg Config, tracker Tracker, invoker inference.Invoker, opts ...Option) *Classifier {
	def := DefaultConfig()
	if cfg.MinorEditThreshold <= 0 {
		cfg.MinorEditThreshold = def.MinorEditThreshold
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxDiffLines <= 0 {
		cfg.MaxDiffLines = def.MaxDiffLines
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	c := &Classifier{
		cfg:     cfg,
		tracker: tracker,
		invoker: invoker,
		counter: tokenizer.CharCounter{},
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsMinorEdit reports whether the snapshots differ in length by fewer than
// threshold characters.
func IsMinorEdit(previous, current string, threshold int) bool {
	delta := utf8.RuneCountInString(previous) - utf8.RuneCountInString(current)
	if delta < 0 {
		delta = -delta
	}
	return delta < threshold
}

// Analyze classifies an edit. AI failures never surface as errors; the
// record falls back to a count-based summary.
func (c *Classifier) Analyze(ctx context.Context, req models.ChangeRequest) (models.ChangeRecord, error) {
	if req.Previous == nil || req.Current == nil {
		return models.ChangeRecord{}, ErrInvalidInput
	}
	previous, current := *req.Previous, *req.Current

	diff, err := ComputeDiff(previous, current)
	if err != nil {
		return models.ChangeRecord{}, err
	}

	rec := models.ChangeRecord{
		ID:         c.newID(),
		DocumentID: req.DocumentID,
		Author:     req.Author,
		Additions:  diff.Additions,
		Deletions:  diff.Deletions,
		Timestamp:  c.now().UTC(),
	}

	if IsMinorEdit(previous, current, c.cfg.MinorEditThreshold) {
		rec.ChangeType = models.ChangeMinor
		rec.Summary = SimpleSummary(diff.Additions, diff.Deletions)
		c.logger.Debug("minor change", "document", req.DocumentID, "additions", diff.Additions, "deletions", diff.Deletions)
		return rec, nil
	}

	rec.ChangeType = models.ChangeMajor
	res, err := c.summarize(ctx, diff)
	if err != nil {
		c.logger.Warn("ai change summary failed, using simple summary", "document", req.DocumentID, "error", err)
		rec.Summary = SimpleSummary(diff.Additions, diff.Deletions)
		return rec, nil
	}

	rec.RequiresAI = true
	rec.Summary = res.Output
	rec.Proof = res.Proof
	rec.ModelID = res.ModelID
	if !res.Timestamp.IsZero() {
		rec.Timestamp = res.Timestamp.UTC()
	}
	c.logger.Info("major change summarized", "document", req.DocumentID, "model", res.ModelID)
	return rec, nil
}

func (c *Classifier) summarize(ctx context.Context, diff Diff) (models.InvocationResult, error) {
	prompt := BuildPrompt(diff.Excerpt(c.cfg.MaxDiffLines))

	if _, err := c.tracker.TrackRequest(ctx, c.cfg.Model, c.counter.Count(prompt, c.cfg.Model), 0); err != nil {
		return models.InvocationResult{}, fmt.Errorf("track request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := c.invoker.Invoke(ctx, models.InvocationRequest{
		ModelID:     c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return models.InvocationResult{}, err
	}
	res.Output = strings.TrimSpace(res.Output)
	if res.Output == "" {
		return models.InvocationResult{}, errEmptyOutput
	}
	if res.ModelID == "" {
		res.ModelID = c.cfg.Model
	}
	return res, nil
}
