package core

import (
	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Kitty              = domain.Kitty
	KittyID            = domain.KittyID
	AccountID          = domain.AccountID
	Balance            = domain.Balance
	Genome             = domain.Genome
	Listing            = domain.Listing
	Event              = domain.Event
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Proof              = pow.Proof
	Difficulty         = pow.Difficulty
)

const (
	EntityKitty     = domain.EntityKitty
	EntityListing   = domain.EntityListing
	EntityAdmission = domain.EntityAdmission
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
