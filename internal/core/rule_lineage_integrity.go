package core

import (
	"context"
	"fmt"

	"kittycore/pkg/domain"
)

// LineageIntegrityRule enforces that bred kitties reference two distinct,
// existing parents other than themselves.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityKitty || change.Action != domain.ActionCreate {
			continue
		}
		child, ok := change.After.(domain.Kitty)
		if !ok || len(child.Parents) == 0 {
			continue
		}
		if len(child.Parents) != 2 {
			res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("kitty %d lists %d parents, want 2", child.ID, len(child.Parents))))
			continue
		}
		if child.Parents[0] == child.Parents[1] {
			res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("kitty %d lists parent %d twice", child.ID, child.Parents[0])))
			continue
		}
		for _, parentID := range child.Parents {
			if parentID == child.ID {
				res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("kitty %d references itself as a parent", child.ID)))
				continue
			}
			if _, ok := view.FindKitty(parentID); !ok {
				res.Violations = append(res.Violations, lineageViolation(child.ID, fmt.Sprintf("kitty %d references missing parent %d", child.ID, parentID)))
			}
		}
	}
	return res, nil
}

func lineageViolation(id domain.KittyID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityKitty,
		EntityID: kittyRef(id),
	}
}
