package models

import "time"

// ChangeType classifies an edit by size.
type ChangeType string

const (
	ChangeMinor ChangeType = "minor"
	ChangeMajor ChangeType = "major"
)

// ChangeRequest is the input to change analysis. Previous and Current are
// pointers so that an absent snapshot can be told apart from an empty one.
type ChangeRequest struct {
	Previous   *string `json:"previousContent"`
	Current    *string `json:"currentContent"`
	DocumentID string  `json:"documentId"`
	Author     string  `json:"author,omitempty"`
}

// ChangeRecord describes one analyzed edit of a document.
type ChangeRecord struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	ChangeType ChangeType `json:"changeType"`
	Summary    string     `json:"summary"`
	RequiresAI bool       `json:"requiresAI"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`
	Author     string     `json:"author,omitempty"`
	Proof      string     `json:"proof,omitempty"`
	ModelID    string     `json:"modelId,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
