package core

import (
	"context"
	"fmt"
	"sync"

	"kittycore/pkg/domain"
)

// Ledger moves balances between accounts for marketplace sales.
type Ledger interface {
	Transfer(ctx context.Context, from, to AccountID, amount Balance) error
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[AccountID]Balance
}

// NewMemoryLedger returns a ledger seeded with the given balances.
func NewMemoryLedger(initial map[AccountID]Balance) *MemoryLedger {
	l := &MemoryLedger{balances: make(map[AccountID]Balance, len(initial))}
	for acct, bal := range initial {
		l.balances[acct] = bal
	}
	return l
}

// Balance returns the free balance of acct.
func (l *MemoryLedger) Balance(acct AccountID) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[acct]
}

// Deposit credits acct.
func (l *MemoryLedger) Deposit(acct AccountID, amount Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[acct] += amount
}

// Transfer debits from and credits to, failing with ErrInsufficientBalance
// when from cannot cover amount.
func (l *MemoryLedger) Transfer(_ context.Context, from, to AccountID, amount Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("%s has %d, needs %d: %w", from, l.balances[from], amount, domain.ErrInsufficientBalance)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
