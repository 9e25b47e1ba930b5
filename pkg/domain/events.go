package domain

import "time"

// EventKind names a registry event.
type EventKind string

// Registry events published after a successful commit.
const (
	EventKittyCreated      EventKind = "kitty_created"
	EventKittyBred         EventKind = "kitty_bred"
	EventKittyTransferred  EventKind = "kitty_transferred"
	EventKittyPriceUpdated EventKind = "kitty_price_updated"
	EventKittySold         EventKind = "kitty_sold"
)

// Event is emitted once per committed registry mutation. Counterparty is the
// receiver of a transfer or the buyer of a sale.
type Event struct {
	Kind         EventKind `json:"kind"`
	Owner        AccountID `json:"owner"`
	Counterparty AccountID `json:"counterparty,omitempty"`
	KittyID      KittyID   `json:"kitty_id"`
	DNA          *Genome   `json:"dna,omitempty"`
	Price        *Balance  `json:"price,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
