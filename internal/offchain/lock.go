// Package offchain runs the node-local proof search and the pending pool that
// feeds found proofs into admission.
package offchain

import "sync"

// AdvisoryLock is a cooperative, deadline-bounded mutual exclusion table
// keyed by name. Locks are never released; they expire once the current step
// reaches their deadline, so a crashed holder blocks for at most one window.
type AdvisoryLock struct {
	mu        sync.Mutex
	deadlines map[string]uint64
}

// NewAdvisoryLock returns an empty lock table.
func NewAdvisoryLock() *AdvisoryLock {
	return &AdvisoryLock{deadlines: make(map[string]uint64)}
}

// TryAcquire takes name until deadline when no unexpired holder exists. It
// never waits.
func (l *AdvisoryLock) TryAcquire(name string, now, deadline uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.deadlines[name]; ok && now < held {
		return false
	}
	l.deadlines[name] = deadline
	return true
}

// Deadline reports the deadline of the last acquisition of name.
func (l *AdvisoryLock) Deadline(name string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.deadlines[name]
	return d, ok
}
