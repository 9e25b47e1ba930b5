package core

import (
	"context"
	"fmt"

	"kittycore/pkg/domain"
)

// PopulationCapRule blocks transactions that grow the registry past limit
// kitties. Zero means unlimited.
func PopulationCapRule(limit uint32) domain.Rule {
	return populationCapRule{limit: limit}
}

type populationCapRule struct {
	limit uint32
}

func (populationCapRule) Name() string { return "population_cap" }

func (r populationCapRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	if r.limit == 0 {
		return domain.Result{}, nil
	}
	created := 0
	for _, change := range changes {
		if change.Entity == domain.EntityKitty && change.Action == domain.ActionCreate {
			created++
		}
	}
	if created == 0 || view.PopulationSize() <= r.limit {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "population_cap",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("population %d exceeds cap %d", view.PopulationSize(), r.limit),
		Entity:   domain.EntityKitty,
	}}}, nil
}
