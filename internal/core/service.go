package core

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// Registry is the narrow registry surface used by background workers.
type Registry interface {
	Create(ctx context.Context, owner AccountID, dna Genome) (KittyID, error)
	Transfer(ctx context.Context, from, to AccountID, id KittyID) error
	Lookup(id KittyID) (Kitty, bool)
	PopulationSize() uint32
}

var _ Registry = (*Service)(nil)

// Service exposes the transactional kitty registry, the marketplace and
// proof admission.
type Service struct {
	store      PersistentStore
	logger     Logger
	clock      Clock
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	events     EventSink
	entropy    EntropySource
	ledger     Ledger
	difficulty pow.Difficulty
	receipts   *receiptArchive
	calls      atomic.Uint32
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		audit:      noopAuditRecorder{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		events:     noopEventSink{},
		entropy:    CryptoEntropy(),
		ledger:     NewMemoryLedger(nil),
		difficulty: 1,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Difficulty returns the configured proof-of-work difficulty.
func (s *Service) Difficulty() pow.Difficulty { return s.difficulty }

type operationMeta struct {
	entity EntityType
	action Action
}

var operationMetadata = map[string]operationMeta{
	"create_kitty":   {entity: EntityKitty, action: ActionCreate},
	"breed_kitty":    {entity: EntityKitty, action: ActionCreate},
	"admit_proof":    {entity: EntityAdmission, action: ActionCreate},
	"transfer_kitty": {entity: EntityKitty, action: ActionUpdate},
	"set_price":      {entity: EntityListing, action: ActionUpdate},
	"buy_kitty":      {entity: EntityKitty, action: ActionUpdate},
}

// run executes fn in a store transaction wrapped with tracing, metrics,
// logging and auditing. fn returns the id of the entity it touched.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "op", op, "entity_id", entityID, "error", err)
		s.recordAudit(ctx, op, entityID, duration, err)
		return res, err
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule warning", "op", op, "rule", v.Rule, "message", v.Message)
		}
	}
	s.logger.Debug("operation committed", "op", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operationMetadata[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) publish(ctx context.Context, event Event) {
	event.OccurredAt = s.clock.Now()
	s.events.Publish(ctx, event)
}

func kittyRef(id KittyID) string { return strconv.FormatUint(uint64(id), 10) }

func genomePtr(g Genome) *Genome { return &g }

// CreateKitty mints a kitty with random DNA for owner.
func (s *Service) CreateKitty(ctx context.Context, owner AccountID) (Kitty, Result, error) {
	return s.mint(ctx, owner, Genome(s.randomValue(owner)))
}

// Create mints a kitty with the supplied DNA.
func (s *Service) Create(ctx context.Context, owner AccountID, dna Genome) (KittyID, error) {
	k, _, err := s.mint(ctx, owner, dna)
	return k.ID, err
}

func (s *Service) mint(ctx context.Context, owner AccountID, dna Genome) (Kitty, Result, error) {
	var created Kitty
	res, err := s.run(ctx, "create_kitty", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateKitty(Kitty{Owner: owner, DNA: dna})
		if err != nil {
			return "", err
		}
		return kittyRef(created.ID), nil
	})
	if err != nil {
		return Kitty{}, res, err
	}
	s.publish(ctx, Event{Kind: domain.EventKittyCreated, Owner: owner, KittyID: created.ID, DNA: genomePtr(created.DNA)})
	return created, res, nil
}

// Breed crosses two kitties owned by owner into a new kitty owned by owner.
func (s *Service) Breed(ctx context.Context, owner AccountID, first, second KittyID) (Kitty, Result, error) {
	var child Kitty
	res, err := s.run(ctx, "breed_kitty", func(tx Transaction) (string, error) {
		a, okA := tx.FindKitty(first)
		b, okB := tx.FindKitty(second)
		if !okA || !okB || a.Owner != owner || b.Owner != owner {
			return "", fmt.Errorf("breed %d x %d for %s: %w", first, second, owner, domain.ErrInvalidKittyID)
		}
		if !(domain.BreedingPair{First: first, Second: second}).Eligible(a.DNA, b.DNA) {
			return "", fmt.Errorf("breed %d x %d: %w", first, second, domain.ErrSameGender)
		}
		dna := domain.Crossover(a.DNA, b.DNA, s.randomValue(owner))
		var err error
		child, err = tx.CreateKitty(Kitty{Owner: owner, DNA: dna, Parents: []KittyID{first, second}})
		if err != nil {
			return "", err
		}
		return kittyRef(child.ID), nil
	})
	if err != nil {
		return Kitty{}, res, err
	}
	s.publish(ctx, Event{Kind: domain.EventKittyBred, Owner: owner, KittyID: child.ID, DNA: genomePtr(child.DNA)})
	return child, res, nil
}

// Transfer moves a kitty from one owner to another and clears any listing.
// Transferring to the current owner is a no-op that emits no event.
func (s *Service) Transfer(ctx context.Context, from, to AccountID, id KittyID) error {
	moved := false
	_, err := s.run(ctx, "transfer_kitty", func(tx Transaction) (string, error) {
		k, ok := tx.FindKitty(id)
		if !ok {
			return kittyRef(id), fmt.Errorf("transfer %d: %w", id, domain.ErrInvalidKittyID)
		}
		if k.Owner != from {
			return kittyRef(id), fmt.Errorf("transfer %d by %s: %w", id, from, domain.ErrNoPermission)
		}
		if from == to {
			return kittyRef(id), nil
		}
		if _, err := tx.UpdateKitty(id, func(k *Kitty) error {
			k.Owner = to
			return nil
		}); err != nil {
			return kittyRef(id), err
		}
		tx.DeleteListing(id)
		moved = true
		return kittyRef(id), nil
	})
	if err != nil {
		return err
	}
	if moved {
		s.publish(ctx, Event{Kind: domain.EventKittyTransferred, Owner: from, Counterparty: to, KittyID: id})
	}
	return nil
}

// SetPrice lists a kitty for sale, or withdraws it when price is nil.
func (s *Service) SetPrice(ctx context.Context, owner AccountID, id KittyID, price *Balance) error {
	_, err := s.run(ctx, "set_price", func(tx Transaction) (string, error) {
		k, ok := tx.FindKitty(id)
		if !ok || k.Owner != owner {
			return kittyRef(id), fmt.Errorf("set price %d by %s: %w", id, owner, domain.ErrNotOwner)
		}
		if price == nil {
			tx.DeleteListing(id)
			return kittyRef(id), nil
		}
		return kittyRef(id), tx.PutListing(Listing{KittyID: id, Price: *price})
	})
	if err != nil {
		return err
	}
	event := Event{Kind: domain.EventKittyPriceUpdated, Owner: owner, KittyID: id}
	if price != nil {
		p := *price
		event.Price = &p
	}
	s.publish(ctx, event)
	return nil
}

// Buy purchases a listed kitty from seller at its listed price, provided the
// price does not exceed maxPrice. The ledger payment is refunded when the
// transaction does not commit.
func (s *Service) Buy(ctx context.Context, buyer, seller AccountID, id KittyID, maxPrice Balance) error {
	var (
		price Balance
		paid  bool
	)
	_, err := s.run(ctx, "buy_kitty", func(tx Transaction) (string, error) {
		if buyer == seller {
			return kittyRef(id), fmt.Errorf("buy %d: %w", id, domain.ErrBuyFromSelf)
		}
		k, ok := tx.FindKitty(id)
		if !ok || k.Owner != seller {
			return kittyRef(id), fmt.Errorf("buy %d from %s: %w", id, seller, domain.ErrNotForSale)
		}
		listing, ok := tx.FindListing(id)
		if !ok {
			return kittyRef(id), fmt.Errorf("buy %d: %w", id, domain.ErrNotForSale)
		}
		if listing.Price > maxPrice {
			return kittyRef(id), fmt.Errorf("buy %d at %d, listed %d: %w", id, maxPrice, listing.Price, domain.ErrPriceTooLow)
		}
		if err := s.ledger.Transfer(ctx, buyer, seller, listing.Price); err != nil {
			return kittyRef(id), fmt.Errorf("buy %d: %w", id, err)
		}
		price, paid = listing.Price, true
		if _, err := tx.UpdateKitty(id, func(k *Kitty) error {
			k.Owner = buyer
			return nil
		}); err != nil {
			return kittyRef(id), err
		}
		tx.DeleteListing(id)
		return kittyRef(id), nil
	})
	if err != nil {
		if paid {
			if rErr := s.ledger.Transfer(ctx, seller, buyer, price); rErr != nil {
				s.logger.Error("refund failed", "kitty_id", id, "buyer", buyer, "seller", seller, "price", price, "error", rErr)
			}
		}
		return err
	}
	s.publish(ctx, Event{Kind: domain.EventKittySold, Owner: seller, Counterparty: buyer, KittyID: id, Price: &price})
	return nil
}

// Refresher is implemented by stores shared with other processes; Refresh
// reloads the committed state into the store's read cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Refresh pulls writes committed by other processes into the service's reads.
// It is a no-op for stores that are not shared.
func (s *Service) Refresh(ctx context.Context) error {
	r, ok := s.store.(Refresher)
	if !ok {
		return nil
	}
	if err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}
	return nil
}

// Lookup returns a kitty by id.
func (s *Service) Lookup(id KittyID) (Kitty, bool) { return s.store.GetKitty(id) }

// KittiesOf returns the kitties owned by owner ordered by id.
func (s *Service) KittiesOf(owner AccountID) []Kitty {
	var out []Kitty
	for _, k := range s.store.ListKitties() {
		if k.Owner == owner {
			out = append(out, k)
		}
	}
	return out
}

// ListKitties returns every kitty ordered by id.
func (s *Service) ListKitties() []Kitty { return s.store.ListKitties() }

// PopulationSize returns the number of registered kitties.
func (s *Service) PopulationSize() uint32 { return s.store.PopulationSize() }

// CurrentNonce returns the nonce epoch a new proof must target.
func (s *Service) CurrentNonce() uint32 { return s.store.AdmissionNonce() }

// Listing returns the sale listing of a kitty, if any.
func (s *Service) Listing(ctx context.Context, id KittyID) (Listing, bool, error) {
	var (
		listing Listing
		ok      bool
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		listing, ok = view.FindListing(id)
		return nil
	})
	return listing, ok, err
}
