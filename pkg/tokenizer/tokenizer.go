// Package tokenizer measures prompt and output length in the unit the rate
// table is authored in.
package tokenizer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Length units accepted in configuration.
const (
	UnitChars  = "chars"
	UnitTokens = "tokens"
)

// Counter measures text length for pricing.
type Counter interface {
	Count(text, model string) int
}

// New returns the Counter for a configured unit.
func New(unit string, logger *slog.Logger) (Counter, error) {
	switch unit {
	case "", UnitChars:
		return CharCounter{}, nil
	case UnitTokens:
		return NewTiktoken(logger), nil
	default:
		return nil, fmt.Errorf("unknown length unit %q", unit)
	}
}

// CharCounter counts Unicode code points.
type CharCounter struct{}

// Count implements Counter.
func (CharCounter) Count(text, _ string) int {
	return utf8.RuneCountInString(text)
}

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base"
	EncodingO200kBase  = "o200k_base"
)

// modelEncodings lists model prefixes and their encodings, longest prefix first.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", EncodingO200kBase},
	{"gpt-3.5", EncodingCL100kBase},
	{"gpt-4", EncodingCL100kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
}

// TiktokenCounter counts BPE tokens. If an encoding cannot be loaded it
// falls back to counting characters, so pricing never fails.
type TiktokenCounter struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
	failed    map[string]bool
}

// NewTiktoken creates a TiktokenCounter.
func NewTiktoken(logger *slog.Logger) *TiktokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TiktokenCounter{
		logger:    logger,
		encodings: make(map[string]*tiktoken.Tiktoken),
		failed:    make(map[string]bool),
	}
}

// Count implements Counter.
func (t *TiktokenCounter) Count(text, model string) int {
	enc := t.encoding(resolveEncoding(model))
	if enc == nil {
		return utf8.RuneCountInString(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) encoding(name string) *tiktoken.Tiktoken {
	t.mu.RLock()
	enc, ok := t.encodings[name]
	failed := t.failed[name]
	t.mu.RUnlock()
	if ok || failed {
		return enc
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if enc, ok = t.encodings[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		t.logger.Warn("tiktoken encoding unavailable, counting characters", "encoding", name, "error", err)
		t.failed[name] = true
		return nil
	}
	t.encodings[name] = enc
	return enc
}

func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return EncodingCL100kBase
}
