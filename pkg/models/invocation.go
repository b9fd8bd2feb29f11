package models

import "time"

// InvocationRequest asks the compute network to run a prompt against a model.
type InvocationRequest struct {
	ModelID     string  `json:"model_id"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// InvocationResult is the output of a completed invocation. Proof is an
// opaque provenance identifier issued by the provider.
type InvocationResult struct {
	Output    string    `json:"output"`
	Proof     string    `json:"proof,omitempty"`
	ModelID   string    `json:"model_id"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisType selects the prompt template used for document analysis.
type AnalysisType string

const (
	AnalysisGeneral     AnalysisType = "general"
	AnalysisSummary     AnalysisType = "summary"
	AnalysisExplanation AnalysisType = "explanation"
	AnalysisRelated     AnalysisType = "related"
	AnalysisGraph       AnalysisType = "extract_graph_entities"
	AnalysisChange      AnalysisType = "change"
)

// AnalysisRequest is a direct document analysis request.
type AnalysisRequest struct {
	Content           string       `json:"content"`
	DocumentID        string       `json:"documentId"`
	AnalysisType      AnalysisType `json:"analysisType"`
	UseFineTunedModel bool         `json:"useFineTunedModel"`
}

// AnalysisResult is returned to the caller of a direct analysis.
type AnalysisResult struct {
	Analysis  string    `json:"analysis"`
	Proof     string    `json:"proof,omitempty"`
	ModelID   string    `json:"modelId"`
	Timestamp time.Time `json:"timestamp"`
	Cost      float64   `json:"cost"`
	Cached    bool      `json:"cached,omitempty"`
}
