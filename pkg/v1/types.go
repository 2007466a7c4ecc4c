package v1

import "time"

// Memory is a stored memory entry.
type Memory struct {
	ID        string    `json:"id"`
	Commit    string    `json:"commit"`
	Namespace string    `json:"namespace"`
	Spec      string    `json:"spec,omitempty"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchResult is a semantic search hit. Lower distance is closer.
type SearchResult struct {
	Memory   Memory  `json:"memory"`
	Distance float64 `json:"distance"`
}
