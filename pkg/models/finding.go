package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxQuotesPerFinding caps how many verbatim review quotes a finding carries.
const MaxQuotesPerFinding = 2

// Finding categories (closed set).
const (
	CategoryUX          = "ux"
	CategoryPerformance = "performance"
	CategoryStability   = "stability"
	CategoryFeatures    = "features"
	CategoryPricing     = "pricing"
	CategorySupport     = "support"
	CategoryContent     = "content"
	CategoryOther       = "other"
)

// Severities, ordered high > medium > low.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Improvement plan phases.
const (
	PhaseImmediate = "immediate"
	PhaseShortTerm = "short_term"
	PhaseLongTerm  = "long_term"
)

var validCategories = map[string]bool{
	CategoryUX: true, CategoryPerformance: true, CategoryStability: true,
	CategoryFeatures: true, CategoryPricing: true, CategorySupport: true,
	CategoryContent: true, CategoryOther: true,
}

var validSeverities = map[string]bool{
	SeverityHigh: true, SeverityMedium: true, SeverityLow: true,
}

var validPhases = map[string]bool{
	PhaseImmediate: true, PhaseShortTerm: true, PhaseLongTerm: true,
}

var validLevels = map[string]bool{
	"low": true, "medium": true, "high": true,
}

// Improvement is the recommendation attached to a finding.
type Improvement struct {
	Action string `json:"action"`
	Phase  string `json:"phase"`
	Effort string `json:"effort"`
	Impact string `json:"impact"`
}

// Finding is one structured insight extracted from review samples.
// Findings are immutable once written: inserted as a batch tied to one
// job, never updated, and cascade-deleted with the job.
type Finding struct {
	ID          uuid.UUID   `db:"id"          json:"id"`
	JobID       uuid.UUID   `db:"job_id"      json:"job_id"`
	Category    string      `db:"category"    json:"category"`
	Severity    string      `db:"severity"    json:"severity"`
	Frequency   int         `db:"frequency"   json:"frequency"`
	Description string      `db:"description" json:"description"`
	Quotes      []string    `db:"quotes"      json:"quotes"`
	Improvement Improvement `db:"improvement" json:"improvement"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
}

// Validate checks the finding against the closed enums and required fields.
func (f *Finding) Validate() error {
	if !validCategories[f.Category] {
		return &ValidationError{Field: "category", Value: f.Category}
	}
	if !validSeverities[f.Severity] {
		return &ValidationError{Field: "severity", Value: f.Severity}
	}
	if f.Frequency < 0 {
		return &ValidationError{Field: "frequency", Value: "negative"}
	}
	if f.Description == "" {
		return &ValidationError{Field: "description", Value: "empty"}
	}
	if f.Improvement.Action == "" {
		return &ValidationError{Field: "improvement.action", Value: "empty"}
	}
	if !validPhases[f.Improvement.Phase] {
		return &ValidationError{Field: "improvement.phase", Value: f.Improvement.Phase}
	}
	if !validLevels[f.Improvement.Effort] {
		return &ValidationError{Field: "improvement.effort", Value: f.Improvement.Effort}
	}
	if !validLevels[f.Improvement.Impact] {
		return &ValidationError{Field: "improvement.impact", Value: f.Improvement.Impact}
	}
	return nil
}

// ValidationError describes a finding field that failed enum or
// required-field validation.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return "invalid finding field " + e.Field + ": " + e.Value
}
