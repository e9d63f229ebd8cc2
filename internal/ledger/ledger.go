// Package ledger implements the append-only monotonic status map described
// in spec section 3 ("Ledger entry") and section 4.1: a persistent
// idempotency record keyed by mailbox-relative path, whose status rank
// (history < job_done < done) never decreases (invariant P1).
package ledger

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/shogun/internal/fsstore"
)

// Status is one of the three monotonic ranks a ledger entry can hold.
type Status string

const (
	StatusHistory Status = "history"
	StatusJobDone Status = "job_done"
	StatusDone    Status = "done"
)

var rank = map[Status]int{
	StatusHistory: 1,
	StatusJobDone: 2,
	StatusDone:    3,
}

// Rank returns the numeric rank of a status, for ordering comparisons.
func Rank(s Status) int { return rank[s] }

// Entry is one ledger record.
type Entry struct {
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ledger is a persistent, monotonic key->Entry map. One Ledger instance per
// queue family (mailbox, restart), per spec section 3.
type Ledger struct {
	store *fsstore.Store

	mu      sync.RWMutex
	entries map[string]Entry
}

// Open loads (or creates) a ledger backed by the JSON file at path.
func Open(path string) (*Ledger, error) {
	store, err := fsstore.New(path)
	if err != nil {
		return nil, err
	}
	l := &Ledger{store: store, entries: make(map[string]Entry)}
	if err := store.Load(&l.entries); err != nil {
		return nil, err
	}
	if l.entries == nil {
		l.entries = make(map[string]Entry)
	}
	return l, nil
}

// Get returns the current entry for key, and whether it exists.
func (l *Ledger) Get(key string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

// RankOf returns the numeric rank for key, or 0 if the key has no entry
// (rank 0 sorts below StatusHistory, so "< history" comparisons work
// uniformly for never-seen keys).
func (l *Ledger) RankOf(key string) int {
	e, ok := l.Get(key)
	if !ok {
		return 0
	}
	return Rank(e.Status)
}

// Mark raises key's status to at least the given status. If the key's
// current rank is already >= the requested status's rank, Mark is a no-op
// that still returns nil (monotonicity, invariant P1). now is injected so
// callers control time sourcing (tests, restart replay).
func (l *Ledger) Mark(key string, status Status, now time.Time) error {
	l.mu.Lock()
	current, ok := l.entries[key]
	if ok && Rank(current.Status) >= Rank(status) {
		l.mu.Unlock()
		return nil
	}
	l.entries[key] = Entry{Status: status, UpdatedAt: now}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	return l.store.Save(snapshot)
}

func (l *Ledger) snapshotLocked() map[string]Entry {
	snap := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		snap[k] = v
	}
	return snap
}

// Len returns the number of tracked keys, used by the healthz endpoint.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
