// Package models contains shared data models used across the ReviewLens codebase.
package models

import "time"

// RedactedAuthor is the fixed placeholder written in place of any author
// identity field. Author identity is never persisted or forwarded downstream.
const RedactedAuthor = "anonymous"

// Tiers are the star-rating buckets collected and cached independently.
var Tiers = []int{1, 2, 3}

// Review is one normalized, redacted review sample. Only text, score,
// date, and engagement count survive normalization.
type Review struct {
	Text     string    `json:"text"`
	Score    int       `json:"score"`
	Date     time.Time `json:"date"`
	ThumbsUp int       `json:"thumbs_up"`
	Author   string    `json:"author"`
}
