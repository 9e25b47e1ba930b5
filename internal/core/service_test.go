package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kittycore/pkg/domain"
)

func TestCreateKittyAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	seed := FixedEntropy{9, 9, 9}
	events := &captureEvents{}
	svc := NewInMemoryService(NewRulesEngine(), WithEntropy(seed), WithEventSink(events))

	first, _, err := svc.CreateKitty(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, _, err := svc.CreateKitty(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID != 0 || second.ID != 1 {
		t.Fatalf("expected ids 0 and 1, got %d and %d", first.ID, second.ID)
	}
	if first.DNA != Genome(deriveValue(seed, "alice", 0)) {
		t.Fatalf("unexpected dna %s", first.DNA)
	}
	if first.DNA == second.DNA {
		t.Fatalf("consecutive draws must differ")
	}
	if got := svc.PopulationSize(); got != 2 {
		t.Fatalf("expected population 2, got %d", got)
	}
	if diff := cmp.Diff([]string{"kitty_created", "kitty_created"}, events.kinds()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateStoresSuppliedDNA(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine())
	id, err := svc.Create(context.Background(), "bob", femaleDNA)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	k, ok := svc.Lookup(id)
	if !ok || k.DNA != femaleDNA || k.Owner != "bob" {
		t.Fatalf("unexpected kitty %+v", k)
	}
	if k.Gender() != domain.GenderFemale {
		t.Fatalf("expected female, got %s", k.Gender())
	}
}

func TestBreedMixesParentDNA(t *testing.T) {
	ctx := context.Background()
	seed := FixedEntropy{1, 2, 3}
	svc := NewInMemoryService(NewDefaultRulesEngine(0), WithEntropy(seed))
	male, female := newPair(t, svc, "alice")

	child, _, err := svc.Breed(ctx, "alice", male, female)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	want := domain.Crossover(maleDNA, femaleDNA, deriveValue(seed, "alice", 0))
	if child.DNA != want {
		t.Fatalf("expected dna %s, got %s", want, child.DNA)
	}
	if diff := cmp.Diff([]KittyID{male, female}, child.Parents); diff != "" {
		t.Fatalf("parents mismatch (-want +got):\n%s", diff)
	}
	if child.ID != 2 || child.Owner != "alice" {
		t.Fatalf("unexpected child %+v", child)
	}
}

func TestBreedRejections(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(0))
	male, female := newPair(t, svc, "alice")
	secondMale, err := svc.Create(ctx, "alice", Genome{0x04})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bobs, err := svc.Create(ctx, "bob", Genome{0x03})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name          string
		owner         AccountID
		first, second KittyID
		want          error
	}{
		{"unknown first", "alice", 42, female, domain.ErrInvalidKittyID},
		{"unknown second", "alice", male, 42, domain.ErrInvalidKittyID},
		{"foreign kitty", "alice", male, bobs, domain.ErrInvalidKittyID},
		{"same gender", "alice", male, secondMale, domain.ErrSameGender},
		{"same kitty", "alice", male, male, domain.ErrSameGender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := svc.PopulationSize()
			if _, _, err := svc.Breed(ctx, tc.owner, tc.first, tc.second); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if svc.PopulationSize() != before {
				t.Fatalf("population changed on rejected breed")
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	events := &captureEvents{}
	svc := NewInMemoryService(NewRulesEngine(), WithEventSink(events))
	id, err := svc.Create(ctx, "alice", maleDNA)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	price := Balance(10)
	if err := svc.SetPrice(ctx, "alice", id, &price); err != nil {
		t.Fatalf("set price: %v", err)
	}

	if err := svc.Transfer(ctx, "alice", "alice", 7); !errors.Is(err, domain.ErrInvalidKittyID) {
		t.Fatalf("expected invalid id for unknown self transfer, got %v", err)
	}
	if err := svc.Transfer(ctx, "bob", "carol", id); !errors.Is(err, domain.ErrNoPermission) {
		t.Fatalf("expected no permission, got %v", err)
	}
	if err := svc.Transfer(ctx, "alice", "alice", id); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if _, listed, _ := svc.Listing(ctx, id); !listed {
		t.Fatalf("self transfer must keep the listing")
	}
	if err := svc.Transfer(ctx, "alice", "bob", id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	k, _ := svc.Lookup(id)
	if k.Owner != "bob" {
		t.Fatalf("expected bob to own kitty, got %s", k.Owner)
	}
	if _, listed, _ := svc.Listing(ctx, id); listed {
		t.Fatalf("transfer must clear the listing")
	}
	if len(svc.KittiesOf("alice")) != 0 || len(svc.KittiesOf("bob")) != 1 {
		t.Fatalf("unexpected ownership index")
	}
	want := []string{"kitty_created", "kitty_price_updated", "kitty_transferred"}
	if diff := cmp.Diff(want, events.kinds()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSetPrice(t *testing.T) {
	ctx := context.Background()
	events := &captureEvents{}
	svc := NewInMemoryService(NewRulesEngine(), WithEventSink(events))
	id, err := svc.Create(ctx, "alice", maleDNA)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	price := Balance(25)
	if err := svc.SetPrice(ctx, "bob", id, &price); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := svc.SetPrice(ctx, "alice", 99, &price); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected not owner for unknown id, got %v", err)
	}
	if err := svc.SetPrice(ctx, "alice", id, &price); err != nil {
		t.Fatalf("set price: %v", err)
	}
	listing, ok, err := svc.Listing(ctx, id)
	if err != nil || !ok || listing.Price != 25 {
		t.Fatalf("unexpected listing %+v ok=%v err=%v", listing, ok, err)
	}
	if err := svc.SetPrice(ctx, "alice", id, nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, ok, _ := svc.Listing(ctx, id); ok {
		t.Fatalf("expected listing withdrawn")
	}
	last := events.events[len(events.events)-1]
	if last.Kind != domain.EventKittyPriceUpdated || last.Price != nil {
		t.Fatalf("expected price cleared event, got %+v", last)
	}
}

func TestBuy(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, buyerFunds Balance) (*Service, *MemoryLedger, KittyID) {
		t.Helper()
		ledger := NewMemoryLedger(map[AccountID]Balance{"bob": buyerFunds})
		svc := NewInMemoryService(NewRulesEngine(), WithLedger(ledger))
		id, err := svc.Create(ctx, "alice", maleDNA)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		price := Balance(50)
		if err := svc.SetPrice(ctx, "alice", id, &price); err != nil {
			t.Fatalf("set price: %v", err)
		}
		return svc, ledger, id
	}

	t.Run("success charges listed price", func(t *testing.T) {
		svc, ledger, id := setup(t, 100)
		if err := svc.Buy(ctx, "bob", "alice", id, 80); err != nil {
			t.Fatalf("buy: %v", err)
		}
		k, _ := svc.Lookup(id)
		if k.Owner != "bob" {
			t.Fatalf("expected bob to own kitty, got %s", k.Owner)
		}
		if ledger.Balance("bob") != 50 || ledger.Balance("alice") != 50 {
			t.Fatalf("unexpected balances bob=%d alice=%d", ledger.Balance("bob"), ledger.Balance("alice"))
		}
		if _, listed, _ := svc.Listing(ctx, id); listed {
			t.Fatalf("sale must clear listing")
		}
	})

	cases := []struct {
		name   string
		buyer  AccountID
		seller AccountID
		id     KittyID
		max    Balance
		funds  Balance
		want   error
	}{
		{"buy from self", "alice", "alice", 0, 100, 100, domain.ErrBuyFromSelf},
		{"unknown kitty", "bob", "alice", 9, 100, 100, domain.ErrNotForSale},
		{"wrong seller", "bob", "carol", 0, 100, 100, domain.ErrNotForSale},
		{"price too low", "bob", "alice", 0, 49, 100, domain.ErrPriceTooLow},
		{"insufficient balance", "bob", "alice", 0, 100, 10, domain.ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, ledger, _ := setup(t, tc.funds)
			if err := svc.Buy(ctx, tc.buyer, tc.seller, tc.id, tc.max); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if k, _ := svc.Lookup(0); k.Owner != "alice" {
				t.Fatalf("ownership changed on failed buy")
			}
			if ledger.Balance("bob") != tc.funds {
				t.Fatalf("buyer balance changed on failed buy")
			}
		})
	}

	t.Run("unlisted kitty", func(t *testing.T) {
		svc, _, id := setup(t, 100)
		if err := svc.SetPrice(ctx, "alice", id, nil); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if err := svc.Buy(ctx, "bob", "alice", id, 100); !errors.Is(err, domain.ErrNotForSale) {
			t.Fatalf("expected not for sale, got %v", err)
		}
	})
}

type failingStore struct {
	PersistentStore
	err error
}

func (f failingStore) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	res, err := f.PersistentStore.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, f.err
}

func TestBuyRefundsWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(map[AccountID]Balance{"bob": 100})
	seedSvc := NewInMemoryService(NewRulesEngine())
	id, err := seedSvc.Create(ctx, "alice", maleDNA)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	price := Balance(40)
	if err := seedSvc.SetPrice(ctx, "alice", id, &price); err != nil {
		t.Fatalf("set price: %v", err)
	}
	boom := errors.New("disk full")
	svc := NewService(failingStore{PersistentStore: seedSvc.Store(), err: boom}, WithLedger(ledger))
	if err := svc.Buy(ctx, "bob", "alice", id, 40); !errors.Is(err, boom) {
		t.Fatalf("expected commit failure, got %v", err)
	}
	if ledger.Balance("bob") != 100 || ledger.Balance("alice") != 0 {
		t.Fatalf("expected refund, got bob=%d alice=%d", ledger.Balance("bob"), ledger.Balance("alice"))
	}
}

func TestPopulationCapBlocksMint(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(1))
	if _, err := svc.Create(ctx, "alice", maleDNA); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, "alice", femaleDNA)
	var rv RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if svc.PopulationSize() != 1 {
		t.Fatalf("blocked mint must not change population")
	}
}

func TestListKittiesOrdered(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewRulesEngine())
	for _, owner := range []AccountID{"c", "a", "b"} {
		if _, err := svc.Create(ctx, owner, maleDNA); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	var owners []AccountID
	for _, k := range svc.ListKitties() {
		owners = append(owners, k.Owner)
	}
	if diff := cmp.Diff([]AccountID{"c", "a", "b"}, owners); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
