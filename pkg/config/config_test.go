package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chainscribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3001", cfg.Listen)
	assert.Equal(t, 100.0, cfg.Budget.DailyBudget)
	assert.Equal(t, 50, cfg.Changes.MinorEditThreshold)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-test-123")
	t.Setenv("DAILY_BUDGET", "25.5")

	path := writeConfig(t, `
listen: ":9090"
db_path: "test.db"
budget:
  daily_budget: ${DAILY_BUDGET}
  reset_schedule: "0 0 0 * * *"
rates:
  fallback: base
  models:
    - model: base
      input_rate: 0.001
      output_rate: 0.002
    - model: fast
      input_rate: 0.0001
      output_rate: 0.0002
changes:
  minor_edit_threshold: 80
inference:
  timeout: 5s
  providers:
    - name: zerog
      url: https://compute.example
      api_key: ${TEST_PROVIDER_KEY}
cache:
  ttl: 30m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 25.5, cfg.Budget.DailyBudget)
	assert.Equal(t, "0 0 0 * * *", cfg.Budget.ResetSchedule)
	assert.Equal(t, 0.9, cfg.Budget.WarningRatio, "defaults survive partial sections")
	assert.Equal(t, "base", cfg.Rates.Fallback)
	assert.Len(t, cfg.Rates.Models, 2)
	assert.Equal(t, 80, cfg.Changes.MinorEditThreshold)
	assert.Equal(t, "chainscribe-change-analyzer", cfg.Changes.Model)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout)
	require.Len(t, cfg.Inference.Providers, 1)
	assert.Equal(t, "sk-test-123", cfg.Inference.Providers[0].APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, `
budget:
  daily_budget: 0
  length_unit: bytes
rates:
  fallback: nope
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily_budget")
	assert.Contains(t, err.Error(), "length_unit")
	assert.Contains(t, err.Error(), "fallback")
}
