// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by specforge.
package domain

import (
	"strconv"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCatalogueEntry identifies an analysis catalogue record.
	EntityCatalogueEntry EntityType = "catalogue_entry"
	// EntityManualOverride identifies a raw-name to catalogue mapping record.
	EntityManualOverride EntityType = "manual_override"
	// EntityProduct identifies a product specification record.
	EntityProduct EntityType = "product"
	// EntityAuditEvent identifies an audit trail event record.
	EntityAuditEvent EntityType = "audit_event"
)

// ResultType distinguishes numeric tests from free-text tests.
type ResultType string

// Canonical result types carried on catalogue entries and specification rows.
const (
	ResultNumeric ResultType = "N"
	ResultText    ResultType = "T"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base provides common persistence metadata embedded by stored entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CatalogueEntry describes one orderable analysis/component pair in the
// laboratory catalogue.
type CatalogueEntry struct {
	Base
	TestCode      string     `json:"test_code"`
	AnalysisName  string     `json:"analysis_name"`
	ComponentName string     `json:"component_name"`
	Units         string     `json:"units"`
	Category      string     `json:"category"`
	ResultType    ResultType `json:"result_type"`
	DefaultGrade  string     `json:"default_grade"`
	DecimalPlaces int        `json:"decimal_places"`
	SpecRule      string     `json:"spec_rule"`
	// Position preserves catalogue import order. Listings sort on it so
	// ranking ties resolve the same way on every backend.
	Position int `json:"position"`
}

// ManualOverride pins an exact extracted name to a catalogue entry. The key
// is the raw string as extracted, case and whitespace sensitive. At most one
// override exists per ExtractedName.
type ManualOverride struct {
	Base
	ExtractedName string `json:"extracted_name"`
	CatalogueID   string `json:"catalogue_id"`
}

// ExtractedTest is one test parsed out of a supplier document.
type ExtractedTest struct {
	Name         string   `json:"name"`
	Text         *string  `json:"text"`
	Min          *float64 `json:"min"`
	Max          *float64 `json:"max"`
	Unit         *string  `json:"unit"`
	OriginalName string   `json:"original_name,omitempty"`
}

// ExtractedData is the full parse result for one document.
type ExtractedData struct {
	ProductName    *string         `json:"product_name"`
	ProductCode    *string         `json:"product_code"`
	EffectiveDate  *string         `json:"effective_date"`
	ExtractedTests []ExtractedTest `json:"extracted_tests"`
}

// SpecificationRow is one line of a product specification. Numeric bounds
// are stored as strings so an absent limit stays an empty cell rather than
// a zero.
type SpecificationRow struct {
	ID                    string     `json:"id"`
	Order                 int        `json:"order"`
	CatalogueID           *string    `json:"catalogue_id"`
	Analysis              string     `json:"analysis"`
	Component             string     `json:"component"`
	TestCode              string     `json:"test_code"`
	Description           string     `json:"description"`
	ResultType            ResultType `json:"result_type"`
	Rule                  string     `json:"rule"`
	Min                   string     `json:"min"`
	Max                   string     `json:"max"`
	TextSpec              string     `json:"text_spec"`
	OverrideMin           string     `json:"override_min"`
	OverrideMax           string     `json:"override_max"`
	OverrideText          string     `json:"override_text"`
	Units                 string     `json:"units"`
	Category              string     `json:"category"`
	Grade                 string     `json:"grade"`
	LitRef                string     `json:"lit_ref"`
	IsUnresolved          bool       `json:"is_unresolved"`
	OriginalExtractedName string     `json:"original_extracted_name,omitempty"`
}

// Product is a saved product specification with its ordered rows.
type Product struct {
	Base
	Name          string             `json:"name"`
	Code          string             `json:"code"`
	EffectiveDate string             `json:"effective_date"`
	Specs         []SpecificationRow `json:"specs"`
}

// AuditEvent records one operator-visible action, newest first in listings.
type AuditEvent struct {
	Base
	Occurred time.Time `json:"occurred"`
	Action   string    `json:"action"`
	Detail   string    `json:"detail"`
}

// MatchReasonKind enumerates how a candidate earned its score.
type MatchReasonKind string

// Candidate reason tiers, from strongest to weakest.
const (
	ReasonManualOverride MatchReasonKind = "manual_override"
	ReasonExactMatch     MatchReasonKind = "exact_match"
	ReasonSubstringMatch MatchReasonKind = "substring_match"
	ReasonFuzzy          MatchReasonKind = "fuzzy"
)

// MatchReason tags a candidate with its tier. Percent is only meaningful
// for ReasonFuzzy, where it carries the similarity rounded to a whole
// percent.
type MatchReason struct {
	Kind    MatchReasonKind `json:"kind"`
	Percent int             `json:"percent,omitempty"`
}

// String renders the reason the way operators see it in candidate lists.
func (r MatchReason) String() string {
	switch r.Kind {
	case ReasonManualOverride:
		return "Manual Override"
	case ReasonExactMatch:
		return "Exact Match"
	case ReasonSubstringMatch:
		return "Substring Match"
	case ReasonFuzzy:
		return "Fuzzy (" + strconv.Itoa(r.Percent) + "%)"
	default:
		return string(r.Kind)
	}
}

// MatchCandidate pairs a catalogue entry with its score against a raw name.
type MatchCandidate struct {
	Entry  CatalogueEntry `json:"entry"`
	Score  float64        `json:"score"`
	Reason MatchReason    `json:"reason"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured for rules.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
