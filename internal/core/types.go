// Package core exposes the transactional catalogue, override, product and
// audit operations behind the resolution workflow.
package core

import "specforge/pkg/domain"

type (
	EntityType         = domain.EntityType
	ResultType         = domain.ResultType
	Severity           = domain.Severity
	Base               = domain.Base
	CatalogueEntry     = domain.CatalogueEntry
	ManualOverride     = domain.ManualOverride
	ExtractedTest      = domain.ExtractedTest
	ExtractedData      = domain.ExtractedData
	SpecificationRow   = domain.SpecificationRow
	Product            = domain.Product
	AuditEvent         = domain.AuditEvent
	MatchCandidate     = domain.MatchCandidate
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityCatalogueEntry = domain.EntityCatalogueEntry
	EntityManualOverride = domain.EntityManualOverride
	EntityProduct        = domain.EntityProduct
	EntityAuditEvent     = domain.EntityAuditEvent
)

const (
	ResultNumeric = domain.ResultNumeric
	ResultText    = domain.ResultText
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
