package models

import "time"

// AuditEntry represents a single audited AI invocation.
type AuditEntry struct {
	RequestID string    `json:"request_id"`
	Model     string    `json:"model"`
	Provider  string    `json:"provider,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Output    string    `json:"output,omitempty"`
	Proof     string    `json:"proof,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	PromptLen int       `json:"prompt_length"`
	OutputLen int       `json:"output_length"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "prompts", "responses"
	ExcludeModels []string `yaml:"exclude_models"`
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model      string
	Since      time.Time
	FailedOnly bool
	RequestID  string
	Limit      int
}

// AuditStat is an aggregate count of audited invocations for one model and day.
type AuditStat struct {
	Model    string `json:"model"`
	Day      string `json:"day"`
	Count    int64  `json:"count"`
	Failures int64  `json:"failures"`
}
