package core

import (
	"context"
	"testing"

	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"
)

func TestDefaultRulesEngineRegistersPolicies(t *testing.T) {
	names := NewDefaultRulesEngine(10).Rules()
	want := map[string]bool{"lineage_integrity": false, "population_cap": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected rule %s registered, got %v", name, names)
		}
	}
}

func TestLineageIntegrityRule(t *testing.T) {
	store := memory.NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for range 2 {
			if _, err := tx.CreateKitty(domain.Kitty{Owner: "alice"}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name    string
		child   domain.Kitty
		blocked bool
	}{
		{"founder", domain.Kitty{ID: 2}, false},
		{"valid parents", domain.Kitty{ID: 2, Parents: []domain.KittyID{0, 1}}, false},
		{"single parent", domain.Kitty{ID: 2, Parents: []domain.KittyID{0}}, true},
		{"duplicate parent", domain.Kitty{ID: 2, Parents: []domain.KittyID{1, 1}}, true},
		{"self parent", domain.Kitty{ID: 2, Parents: []domain.KittyID{0, 2}}, true},
		{"missing parent", domain.Kitty{ID: 2, Parents: []domain.KittyID{0, 9}}, true},
	}
	rule := LineageIntegrityRule()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res domain.Result
			err := store.View(context.Background(), func(view domain.TransactionView) error {
				var err error
				res, err = rule.Evaluate(context.Background(), view, []domain.Change{{
					Entity: domain.EntityKitty, Action: domain.ActionCreate, After: tc.child,
				}})
				return err
			})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if res.HasBlocking() != tc.blocked {
				t.Fatalf("expected blocked=%v, got %+v", tc.blocked, res.Violations)
			}
		})
	}
}

func TestPopulationCapRuleIgnoresNonCreates(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for range 3 {
			if _, err := tx.CreateKitty(domain.Kitty{Owner: "alice"}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rule := PopulationCapRule(2)
	_ = store.View(ctx, func(view domain.TransactionView) error {
		res, _ := rule.Evaluate(ctx, view, []domain.Change{{Entity: domain.EntityKitty, Action: domain.ActionUpdate}})
		if res.HasBlocking() {
			t.Fatalf("updates must not trip the cap")
		}
		res, _ = rule.Evaluate(ctx, view, []domain.Change{{Entity: domain.EntityKitty, Action: domain.ActionCreate}})
		if !res.HasBlocking() {
			t.Fatalf("expected cap violation above limit")
		}
		res, _ = PopulationCapRule(0).Evaluate(ctx, view, []domain.Change{{Entity: domain.EntityKitty, Action: domain.ActionCreate}})
		if res.HasBlocking() {
			t.Fatalf("zero cap must be unlimited")
		}
		return nil
	})
}
