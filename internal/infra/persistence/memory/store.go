// Package memory provides an in-memory implementation of the kitty registry
// store used for tests, ephemeral environments and as the transactional core
// of the snapshotting backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Kitty aliases domain.Kitty for in-memory persistence operations.
	Kitty = domain.Kitty
	// Listing aliases domain.Listing.
	Listing = domain.Listing
	// KittyID aliases domain.KittyID.
	KittyID = domain.KittyID
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	kitties   map[KittyID]Kitty
	listings  map[KittyID]Listing
	nextID    uint64
	admission pow.AdmissionState
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Kitties   map[KittyID]Kitty   `json:"kitties"`
	Listings  map[KittyID]Listing `json:"listings"`
	NextID    uint64              `json:"next_id"`
	Admission pow.AdmissionState  `json:"admission"`
}

// Buckets lists the persistence buckets in write order. Durable backends
// store one JSON payload per bucket.
var Buckets = []string{"kitties", "listings", "sequence", "admission"}

// EncodeBuckets serializes the snapshot into one JSON payload per bucket.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case "kitties":
			data, err = json.Marshal(s.Kitties)
		case "listings":
			data, err = json.Marshal(s.Listings)
		case "sequence":
			data, err = json.Marshal(s.NextID)
		case "admission":
			data, err = json.Marshal(s.Admission)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets and
// empty payloads are ignored.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var s Snapshot
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		var target any
		switch bucket {
		case "kitties":
			target = &s.Kitties
		case "listings":
			target = &s.Listings
		case "sequence":
			target = &s.NextID
		case "admission":
			target = &s.Admission
		default:
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return s, nil
}

func newMemoryState() memoryState {
	return memoryState{
		kitties:  make(map[KittyID]Kitty),
		listings: make(map[KittyID]Listing),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Kitties:   make(map[KittyID]Kitty, len(state.kitties)),
		Listings:  make(map[KittyID]Listing, len(state.listings)),
		NextID:    state.nextID,
		Admission: state.admission,
	}
	for k, v := range state.kitties {
		s.Kitties[k] = cloneKitty(v)
	}
	for k, v := range state.listings {
		s.Listings[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Kitties {
		state.kitties[k] = cloneKitty(v)
	}
	for k, v := range s.Listings {
		state.listings[k] = v
	}
	state.nextID = s.NextID
	state.admission = s.Admission
	return state
}

// migrateSnapshot repairs snapshots written before the sequence bucket
// existed by deriving the next id from the highest stored kitty.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Kitties == nil {
		snapshot.Kitties = map[KittyID]Kitty{}
	}
	if snapshot.Listings == nil {
		snapshot.Listings = map[KittyID]Listing{}
	}
	for id := range snapshot.Kitties {
		if uint64(id) >= snapshot.NextID {
			snapshot.NextID = uint64(id) + 1
		}
	}
	for id := range snapshot.Listings {
		if _, ok := snapshot.Kitties[id]; !ok {
			delete(snapshot.Listings, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.kitties {
		cloned.kitties[k] = cloneKitty(v)
	}
	for k, v := range s.listings {
		cloned.listings[k] = v
	}
	cloned.nextID = s.nextID
	cloned.admission = s.admission
	return cloned
}

func cloneKitty(k Kitty) Kitty {
	cp := k
	cp.Parents = slices.Clone(k.Parents)
	return cp
}

// Store provides an in-memory transactional store for the registry.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider stamped on created kitties.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListKitties returns all kitties ordered by id.
func (v transactionView) ListKitties() []Kitty {
	return listKitties(v.state)
}

// FindKitty retrieves a kitty by id from the snapshot.
func (v transactionView) FindKitty(id KittyID) (Kitty, bool) {
	k, ok := v.state.kitties[id]
	if !ok {
		return Kitty{}, false
	}
	return cloneKitty(k), true
}

// FindListing retrieves a listing by kitty id.
func (v transactionView) FindListing(id KittyID) (Listing, bool) {
	l, ok := v.state.listings[id]
	return l, ok
}

// PopulationSize returns the number of registered kitties.
func (v transactionView) PopulationSize() uint32 {
	return uint32(len(v.state.kitties))
}

// AdmissionNonce returns the current nonce epoch.
func (v transactionView) AdmissionNonce() uint32 {
	return v.state.admission.Nonce
}

func listKitties(state *memoryState) []Kitty {
	out := make([]Kitty, 0, len(state.kitties))
	for _, k := range state.kitties {
		out = append(out, cloneKitty(k))
	}
	slices.SortFunc(out, func(a, b Kitty) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the live state only when fn and every blocking
// rule succeed. Copying makes each transaction O(population).
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View runs fn against the committed state under the read lock, without
// copying it. fn must not retain the view or call back into the store.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

// GetKitty returns a kitty by id.
func (s *Store) GetKitty(id KittyID) (Kitty, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.state.kitties[id]
	if !ok {
		return Kitty{}, false
	}
	return cloneKitty(k), true
}

// ListKitties returns every kitty ordered by id.
func (s *Store) ListKitties() []Kitty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listKitties(&s.state)
}

// PopulationSize returns the number of registered kitties.
func (s *Store) PopulationSize() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint32(len(s.state.kitties))
}

// AdmissionNonce returns the committed nonce epoch.
func (s *Store) AdmissionNonce() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.admission.Nonce
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateKitty stores a new kitty under the next sequential id.
func (tx *transaction) CreateKitty(k Kitty) (Kitty, error) {
	if tx.state.nextID > math.MaxUint32 {
		return Kitty{}, domain.ErrNoAvailableKittyID
	}
	k.ID = KittyID(tx.state.nextID)
	if _, exists := tx.state.kitties[k.ID]; exists {
		return Kitty{}, fmt.Errorf("kitty %d already exists", k.ID)
	}
	tx.state.nextID++
	k.CreatedAt = tx.now
	tx.state.kitties[k.ID] = cloneKitty(k)
	tx.recordChange(Change{Entity: domain.EntityKitty, Action: domain.ActionCreate, After: cloneKitty(k)})
	return cloneKitty(k), nil
}

// UpdateKitty mutates a kitty using the provided mutator. ID, DNA, parents
// and creation time are immutable.
func (tx *transaction) UpdateKitty(id KittyID, mutator func(*Kitty) error) (Kitty, error) {
	current, ok := tx.state.kitties[id]
	if !ok {
		return Kitty{}, fmt.Errorf("kitty %d: %w", id, domain.ErrInvalidKittyID)
	}
	before := cloneKitty(current)
	if err := mutator(&current); err != nil {
		return Kitty{}, err
	}
	current.ID = id
	current.DNA = before.DNA
	current.Parents = before.Parents
	current.CreatedAt = before.CreatedAt
	tx.state.kitties[id] = cloneKitty(current)
	tx.recordChange(Change{Entity: domain.EntityKitty, Action: domain.ActionUpdate, Before: before, After: cloneKitty(current)})
	return cloneKitty(current), nil
}

// FindKitty exposes kitty lookup within the transaction scope.
func (tx *transaction) FindKitty(id KittyID) (Kitty, bool) {
	k, ok := tx.state.kitties[id]
	if !ok {
		return Kitty{}, false
	}
	return cloneKitty(k), true
}

// PutListing creates or replaces the listing for an existing kitty.
func (tx *transaction) PutListing(l Listing) error {
	if _, ok := tx.state.kitties[l.KittyID]; !ok {
		return fmt.Errorf("kitty %d: %w", l.KittyID, domain.ErrInvalidKittyID)
	}
	before, existed := tx.state.listings[l.KittyID]
	tx.state.listings[l.KittyID] = l
	change := Change{Entity: domain.EntityListing, Action: domain.ActionCreate, After: l}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = before
	}
	tx.recordChange(change)
	return nil
}

// DeleteListing removes a listing, reporting whether one existed.
func (tx *transaction) DeleteListing(id KittyID) bool {
	before, ok := tx.state.listings[id]
	if !ok {
		return false
	}
	delete(tx.state.listings, id)
	tx.recordChange(Change{Entity: domain.EntityListing, Action: domain.ActionDelete, Before: before})
	return true
}

// FindListing exposes listing lookup within the transaction scope.
func (tx *transaction) FindListing(id KittyID) (Listing, bool) {
	l, ok := tx.state.listings[id]
	return l, ok
}

// Admission returns the transactional nonce epoch.
func (tx *transaction) Admission() *pow.AdmissionState {
	return &tx.state.admission
}

// PopulationSize returns the number of kitties in the transactional state.
func (tx *transaction) PopulationSize() uint32 {
	return uint32(len(tx.state.kitties))
}
