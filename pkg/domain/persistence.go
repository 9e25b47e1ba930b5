package domain

import (
	"context"

	"kittycore/pkg/pow"
)

// Transaction exposes the registry operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	// CreateKitty assigns the next sequential id and records the kitty.
	CreateKitty(Kitty) (Kitty, error)
	UpdateKitty(id KittyID, mutator func(*Kitty) error) (Kitty, error)
	FindKitty(id KittyID) (Kitty, bool)
	PutListing(Listing) error
	DeleteListing(id KittyID) bool
	FindListing(id KittyID) (Listing, bool)
	// Admission returns the nonce epoch; mutations commit with the transaction.
	Admission() *pow.AdmissionState
	PopulationSize() uint32
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListKitties() []Kitty
	FindKitty(id KittyID) (Kitty, bool)
	FindListing(id KittyID) (Listing, bool)
	PopulationSize() uint32
	AdmissionNonce() uint32
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetKitty(id KittyID) (Kitty, bool)
	ListKitties() []Kitty
	PopulationSize() uint32
	AdmissionNonce() uint32
	Close() error
}
