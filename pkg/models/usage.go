package models

import "time"

// UsageEntry is a single admitted request in the daily cost ledger.
type UsageEntry struct {
	ID           int64     `json:"id,omitempty"`
	ModelKey     string    `json:"model_key"`
	Cost         float64   `json:"cost"`
	InputLength  int       `json:"input_length"`
	OutputLength int       `json:"output_length"`
	CreatedAt    time.Time `json:"timestamp"`
}

// DailyReport summarizes ledger activity for the current calendar day.
type DailyReport struct {
	Date            string         `json:"date"`
	TotalCost       float64        `json:"totalCost"`
	RequestCount    int            `json:"requestCount"`
	RequestsByType  map[string]int `json:"requestsByType"`
	BudgetRemaining float64        `json:"budgetRemaining"`
	CostSavingMode  bool           `json:"costSavingMode"`
	DailyBudget     float64        `json:"dailyBudget"`
}

// UsageDay aggregates journaled ledger entries for one day and model.
type UsageDay struct {
	Day          string  `json:"day"`
	ModelKey     string  `json:"model_key"`
	RequestCount int     `json:"request_count"`
	InputLength  int64   `json:"input_length"`
	OutputLength int64   `json:"output_length"`
	TotalCost    float64 `json:"total_cost"`
	Archived     bool    `json:"archived"`
}
