// Package wait implements the durable wait store (component F): per
// (thread, agent) suspension records for a resumable waitForMessage (spec
// sections 3, 4.4, property P7).
package wait

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/shogun/internal/fsstore"
	"github.com/codeready-toolchain/shogun/internal/history"
)

// Status is the lifecycle state of a wait record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReceived Status = "received"
	StatusTimeout  Status = "timeout"
)

// Record is a durable suspension state for a waitForMessage call, per spec
// section 3.
type Record struct {
	Status           Status           `json:"status"`
	ThreadID         string           `json:"threadId"`
	AgentID          string           `json:"agentId"`
	ProviderThreadID string           `json:"providerThreadId"`
	TimeoutMs        int64            `json:"timeoutMs"`
	MessageID        string           `json:"messageId"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	Title            string           `json:"title"`
	OriginalCreated  time.Time        `json:"createdAtOriginal"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	ReceivedAt       *time.Time       `json:"receivedAt,omitempty"`
	ReceivedMessage  *history.Message `json:"receivedMessage,omitempty"`
}

// Key formats the wait store key for a (threadID, agentID) pair, per spec
// section 3: `{threadId}__{agentId}`.
func Key(threadID, agentID string) string {
	return threadID + "__" + agentID
}

// Store is the atomic, single-writer wait-record store.
type Store struct {
	fs *fsstore.Store

	mu      sync.Mutex
	records map[string]Record
}

// Open loads (or creates) a wait store backed by the JSON file at path.
func Open(path string) (*Store, error) {
	fs, err := fsstore.New(path)
	if err != nil {
		return nil, err
	}
	s := &Store{fs: fs, records: make(map[string]Record)}
	if err := fs.Load(&s.records); err != nil {
		return nil, err
	}
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	return s, nil
}

// Put creates or replaces the wait record for (threadID, agentID).
func (s *Store) Put(threadID, agentID string, r Record) error {
	s.mu.Lock()
	s.records[Key(threadID, agentID)] = r
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.fs.Save(snapshot)
}

// Get returns the current wait record for (threadID, agentID).
func (s *Store) Get(threadID, agentID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[Key(threadID, agentID)]
	return r, ok
}

// MarkReceived transitions a pending record to received with the message
// that resolved it.
func (s *Store) MarkReceived(threadID, agentID string, msg history.Message, now time.Time) error {
	s.mu.Lock()
	key := Key(threadID, agentID)
	r, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("wait: no record for %s", key)
	}
	r.Status = StatusReceived
	r.ReceivedMessage = &msg
	r.ReceivedAt = &now
	r.UpdatedAt = now
	s.records[key] = r
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.fs.Save(snapshot)
}

// MarkTimeout transitions a pending record to timeout.
func (s *Store) MarkTimeout(threadID, agentID string, now time.Time) error {
	s.mu.Lock()
	key := Key(threadID, agentID)
	r, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("wait: no record for %s", key)
	}
	r.Status = StatusTimeout
	r.UpdatedAt = now
	s.records[key] = r
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.fs.Save(snapshot)
}

// Clear removes the wait record for (threadID, agentID). The agent runtime
// calls it when a turn that resumed the record completes successfully, and
// for a live waitForMessage call as soon as the wait resolves (reply or
// timeout), before the rest of that turn runs.
func (s *Store) Clear(threadID, agentID string) error {
	s.mu.Lock()
	delete(s.records, Key(threadID, agentID))
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.fs.Save(snapshot)
}

// AllForAgent returns every record belonging to agentID, used by
// resumePendingWaits on boot (spec section 4.4).
func (s *Store) AllForAgent(agentID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) snapshotLocked() map[string]Record {
	snap := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		snap[k] = v
	}
	return snap
}
