package cost

import (
	"fmt"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// DefaultFallbackModel is the rate table entry used for unknown model keys.
const DefaultFallbackModel = "chainscribe-balanced-3b"

// DefaultRates returns the built-in per-character rate table.
func DefaultRates() []models.ModelRate {
	return []models.ModelRate{
		{Model: "chainscribe-fast-1b", InputRate: 0.00001, OutputRate: 0.00002},
		{Model: "chainscribe-balanced-3b", InputRate: 0.00003, OutputRate: 0.00006},
		{Model: "chainscribe-docusense-v1", InputRate: 0.00005, OutputRate: 0.00010},
		{Model: "chainscribe-change-analyzer", InputRate: 0.00002, OutputRate: 0.00004},
	}
}

// RateTable maps model keys to rates. It is immutable once built and safe
// for concurrent reads.
type RateTable struct {
	rates    map[string]models.ModelRate
	fallback models.ModelRate
}

// NewRateTable builds a RateTable. The fallback key must be present in rates.
func NewRateTable(rates []models.ModelRate, fallback string) (*RateTable, error) {
	m := make(map[string]models.ModelRate, len(rates))
	for _, r := range rates {
		if r.InputRate < 0 || r.OutputRate < 0 {
			return nil, fmt.Errorf("rate for %q: negative rate", r.Model)
		}
		m[r.Model] = r
	}
	fb, ok := m[fallback]
	if !ok {
		return nil, fmt.Errorf("fallback model %q not in rate table", fallback)
	}
	return &RateTable{rates: m, fallback: fb}, nil
}

// Lookup returns the rate for model, or the fallback rate if model is unknown.
// The second result reports whether model had its own entry.
func (t *RateTable) Lookup(model string) (models.ModelRate, bool) {
	if r, ok := t.rates[model]; ok {
		return r, true
	}
	return t.fallback, false
}

// Fallback returns the fallback rate.
func (t *RateTable) Fallback() models.ModelRate {
	return t.fallback
}

// Price computes inputLength*input + outputLength*output for model.
func (t *RateTable) Price(model string, inputLength, outputLength int) float64 {
	r, _ := t.Lookup(model)
	return float64(inputLength)*r.InputRate + float64(outputLength)*r.OutputRate
}
