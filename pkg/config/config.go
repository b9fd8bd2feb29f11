package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/tokenizer"
)

// Config holds all ChainScribe configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	DBPath    string             `yaml:"db_path"`
	LogLevel  string             `yaml:"log_level"`
	Budget    BudgetConfig       `yaml:"budget"`
	Rates     RatesConfig        `yaml:"rates"`
	Changes   ChangesConfig      `yaml:"changes"`
	Inference InferenceConfig    `yaml:"inference"`
	Cache     CacheConfig        `yaml:"cache"`
	Storage   StorageConfig      `yaml:"storage"`
	Audit     models.AuditConfig `yaml:"audit"`
	Admin     AdminConfig        `yaml:"admin"`
}

// BudgetConfig controls the daily cost governor.
type BudgetConfig struct {
	DailyBudget  float64 `yaml:"daily_budget"`
	WarningRatio float64 `yaml:"warning_ratio"`
	// LengthUnit is "chars" or "tokens" and must match how rates are authored.
	LengthUnit string `yaml:"length_unit"`
	// ResetSchedule is an optional cron expression (with seconds) for an
	// explicit reset in addition to the lazy midnight rollover.
	ResetSchedule string `yaml:"reset_schedule"`
}

// RatesConfig is the per-model rate table.
type RatesConfig struct {
	Fallback string             `yaml:"fallback"`
	Models   []models.ModelRate `yaml:"models"`
}

// ChangesConfig controls change classification.
type ChangesConfig struct {
	MinorEditThreshold int     `yaml:"minor_edit_threshold"`
	Model              string  `yaml:"model"`
	MaxDiffLines       int     `yaml:"max_diff_lines"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
}

// InferenceConfig defines upstream compute providers and model routing.
type InferenceConfig struct {
	Timeout        time.Duration    `yaml:"timeout"`
	DefaultModel   string           `yaml:"default_model"`
	FineTunedModel string           `yaml:"fine_tuned_model"`
	Providers      []ProviderConfig `yaml:"providers"`
	Routes         []RouteConfig    `yaml:"routes"`
}

// ProviderConfig defines an upstream inference provider.
// Type is "openai" (default) or "anthropic".
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Type   string `yaml:"type"`
}

// RouteConfig maps a model key to an ordered list of targets.
type RouteConfig struct {
	Model   string        `yaml:"model"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// CacheConfig controls the analysis response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// StorageConfig controls the content store.
type StorageConfig struct {
	// CacheMaxBytes bounds the in-memory read cache.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
	// MaxUploadBytes bounds a single upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// AdminConfig protects administrative endpoints.
type AdminConfig struct {
	// TokenHash is an argon2id hash of the admin token; empty disables
	// admin endpoints.
	TokenHash string `yaml:"token_hash"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":3001",
		DBPath:   "chainscribe.db",
		LogLevel: "info",
		Budget: BudgetConfig{
			DailyBudget:  100,
			WarningRatio: cost.DefaultWarningRatio,
			LengthUnit:   tokenizer.UnitChars,
		},
		Rates: RatesConfig{
			Fallback: cost.DefaultFallbackModel,
			Models:   cost.DefaultRates(),
		},
		Changes: ChangesConfig{
			MinorEditThreshold: 50,
			Model:              "chainscribe-change-analyzer",
			MaxDiffLines:       10,
			MaxTokens:          150,
			Temperature:        0.2,
		},
		Inference: InferenceConfig{
			Timeout:      30 * time.Second,
			DefaultModel: "chainscribe-docusense-v1",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Storage: StorageConfig{
			CacheMaxBytes:  64 << 20,
			MaxUploadBytes: 10 << 20,
		},
		Audit: models.AuditConfig{
			RetentionDays: 30,
			Include:       []string{"prompts", "responses"},
			MaxBodySize:   8192,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Budget.DailyBudget <= 0 {
		errs = append(errs, fmt.Errorf("budget.daily_budget must be positive, got %v", c.Budget.DailyBudget))
	}
	if c.Budget.WarningRatio <= 0 || c.Budget.WarningRatio > 1 {
		errs = append(errs, fmt.Errorf("budget.warning_ratio must be in (0, 1], got %v", c.Budget.WarningRatio))
	}
	switch c.Budget.LengthUnit {
	case tokenizer.UnitChars, tokenizer.UnitTokens:
	default:
		errs = append(errs, fmt.Errorf("budget.length_unit must be %q or %q, got %q",
			tokenizer.UnitChars, tokenizer.UnitTokens, c.Budget.LengthUnit))
	}
	if _, err := cost.NewRateTable(c.Rates.Models, c.Rates.Fallback); err != nil {
		errs = append(errs, fmt.Errorf("rates: %w", err))
	}
	if c.Changes.MinorEditThreshold <= 0 {
		errs = append(errs, fmt.Errorf("changes.minor_edit_threshold must be positive, got %d", c.Changes.MinorEditThreshold))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("inference.timeout must be positive, got %v", c.Inference.Timeout))
	}
	return errors.Join(errs...)
}
