package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"kittycore/pkg/domain"
)

func genome(first byte) domain.Genome {
	var g domain.Genome
	g[0] = first
	return g
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindKitty(0); ok {
			t.Fatalf("expected missing kitty lookup")
		}
		first, err := tx.CreateKitty(domain.Kitty{Owner: "alice", DNA: genome(2)})
		if err != nil {
			return err
		}
		second, err := tx.CreateKitty(domain.Kitty{Owner: "alice", DNA: genome(3)})
		if err != nil {
			return err
		}
		if first.ID != 0 || second.ID != 1 {
			t.Fatalf("expected sequential ids, got %d and %d", first.ID, second.ID)
		}
		view := tx.Snapshot()
		if len(view.ListKitties()) != 2 || view.PopulationSize() != 2 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if store.PopulationSize() != 2 {
		t.Fatalf("expected persisted kitties")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListKitties()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListKitties()) != 2 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreErrorLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateKitty(domain.Kitty{Owner: "alice"}); err != nil {
			return err
		}
		tx.Admission().Nonce = 7
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if store.PopulationSize() != 0 {
		t.Fatalf("expected no kitties after failed transaction")
	}
	if store.AdmissionNonce() != 0 {
		t.Fatalf("expected nonce rollback, got %d", store.AdmissionNonce())
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateKitty(domain.Kitty{Owner: "alice"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if store.PopulationSize() != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.TransactionView, []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}})
	return res, nil
}

func TestUpdateKittyKeepsImmutableFields(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateKitty(9, func(*domain.Kitty) error { return nil }); !errors.Is(err, domain.ErrInvalidKittyID) {
			t.Fatalf("expected invalid id error, got %v", err)
		}
		k, err := tx.CreateKitty(domain.Kitty{Owner: "alice", DNA: genome(4)})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateKitty(k.ID, func(*domain.Kitty) error { return errors.New("boom") }); err == nil {
			t.Fatalf("expected mutator error")
		}
		updated, err := tx.UpdateKitty(k.ID, func(k *domain.Kitty) error {
			k.Owner = "bob"
			k.DNA = genome(5)
			k.ID = 42
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Owner != "bob" || updated.DNA != genome(4) || updated.ID != k.ID {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if !updated.CreatedAt.Equal(fixed) {
			t.Fatalf("expected creation time %v, got %v", fixed, updated.CreatedAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestListingLifecycle(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutListing(domain.Listing{KittyID: 3, Price: 1}); !errors.Is(err, domain.ErrInvalidKittyID) {
			t.Fatalf("expected listing on missing kitty to fail, got %v", err)
		}
		k, err := tx.CreateKitty(domain.Kitty{Owner: "alice"})
		if err != nil {
			return err
		}
		if err := tx.PutListing(domain.Listing{KittyID: k.ID, Price: 10}); err != nil {
			return err
		}
		if err := tx.PutListing(domain.Listing{KittyID: k.ID, Price: 12}); err != nil {
			return err
		}
		l, ok := tx.FindListing(k.ID)
		if !ok || l.Price != 12 {
			t.Fatalf("expected replaced listing, got %+v", l)
		}
		if !tx.DeleteListing(k.ID) {
			t.Fatalf("expected listing removal")
		}
		if tx.DeleteListing(k.ID) {
			t.Fatalf("second removal should report false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestCreateKittyExhaustedIDs(t *testing.T) {
	store := NewStore(nil)
	store.ImportState(Snapshot{NextID: math.MaxUint32 + 1})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateKitty(domain.Kitty{Owner: "alice"})
		return err
	})
	if !errors.Is(err, domain.ErrNoAvailableKittyID) {
		t.Fatalf("expected id exhaustion, got %v", err)
	}
}

func TestBucketsRoundTrip(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		k, err := tx.CreateKitty(domain.Kitty{Owner: "alice", DNA: genome(1)})
		if err != nil {
			return err
		}
		tx.Admission().Nonce = 3
		return tx.PutListing(domain.Listing{KittyID: k.ID, Price: 9})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	payloads, err := EncodeBuckets(store.ExportState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payloads) != len(Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(Buckets), len(payloads))
	}
	payloads["unknown"] = []byte("ignored")
	snapshot, err := DecodeBuckets(payloads)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if restored.AdmissionNonce() != 3 || restored.PopulationSize() != 1 {
		t.Fatalf("unexpected restored state nonce=%d population=%d", restored.AdmissionNonce(), restored.PopulationSize())
	}
	if _, err := DecodeBuckets(map[string][]byte{"kitties": []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestImportStateMigratesSequence(t *testing.T) {
	store := NewStore(nil)
	store.ImportState(Snapshot{
		Kitties:  map[KittyID]Kitty{4: {ID: 4, Owner: "alice"}},
		Listings: map[KittyID]Listing{9: {KittyID: 9, Price: 1}},
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, ok := tx.FindListing(9); ok {
			t.Fatalf("expected orphan listing to be dropped")
		}
		k, err := tx.CreateKitty(domain.Kitty{Owner: "bob"})
		if err != nil {
			return err
		}
		if k.ID != 5 {
			t.Fatalf("expected id 5 after migration, got %d", k.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestViewIsolatedFromMutation(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateKitty(domain.Kitty{Owner: "alice", Parents: []domain.KittyID{}})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	err := store.View(ctx, func(view domain.TransactionView) error {
		k, ok := view.FindKitty(0)
		if !ok {
			t.Fatalf("expected kitty in view")
		}
		k.Parents = append(k.Parents, 99)
		if view.AdmissionNonce() != 0 {
			t.Fatalf("unexpected nonce")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	k, _ := store.GetKitty(0)
	if len(k.Parents) != 0 {
		t.Fatalf("view mutation leaked into store: %+v", k.Parents)
	}
}
