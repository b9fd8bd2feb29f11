package models

// ModelRate defines the cost per unit of input and output length for a model.
type ModelRate struct {
	Model      string  `json:"model" yaml:"model"`
	InputRate  float64 `json:"input_rate" yaml:"input_rate"`
	OutputRate float64 `json:"output_rate" yaml:"output_rate"`
}
