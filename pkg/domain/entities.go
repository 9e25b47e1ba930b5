// Package domain defines the persistent kitty entities, value types, and
// rule evaluation primitives used by kittycore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityKitty identifies a kitty record.
	EntityKitty EntityType = "kitty"
	// EntityListing identifies a sale listing.
	EntityListing EntityType = "listing"
	// EntityAdmission identifies the proof admission state.
	EntityAdmission EntityType = "admission"
)

// KittyID is a registry scoped identifier assigned sequentially from zero.
type KittyID uint32

// AccountID identifies an owner.
type AccountID string

// Balance is an amount moved by the external ledger.
type Balance uint64

// Kitty is a registered creature and its DNA.
type Kitty struct {
	ID        KittyID   `json:"id"`
	Owner     AccountID `json:"owner"`
	DNA       Genome    `json:"dna"`
	Parents   []KittyID `json:"parents,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Gender returns the gender encoded in the kitty's DNA.
func (k Kitty) Gender() Gender { return k.DNA.Gender() }

// Listing offers a kitty for sale at a fixed price.
type Listing struct {
	KittyID KittyID `json:"kitty_id"`
	Price   Balance `json:"price"`
}

// BreedingPair references two kitties considered for breeding.
type BreedingPair struct {
	First  KittyID
	Second KittyID
}

// Eligible reports whether the two genomes may breed.
func (BreedingPair) Eligible(first, second Genome) bool {
	return first.Gender() != second.Gender()
}

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

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
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
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
