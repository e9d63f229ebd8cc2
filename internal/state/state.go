// Package state implements the state store (component B): threads and the
// per-(thread, agent) provider session bindings described in spec section
// 3, persisted as a single atomic JSON snapshot.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/shogun/internal/fsstore"
)

// Session binds an agent, within one thread, to a provider-side thread id.
type Session struct {
	Provider         string `json:"provider"`
	ProviderThreadID string `json:"providerThreadId"`
	Initialized      bool   `json:"initialized"`
}

// Thread is a king-level conversation, per spec section 3.
type Thread struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Sessions  map[string]Session `json:"sessions"`
}

// ThreadInfo is the externally-facing projection of a Thread (no sessions),
// matching the `threads` transport event contract in spec section 6.
type ThreadInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Thread) Info() ThreadInfo {
	return ThreadInfo{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

type document struct {
	Threads        map[string]*Thread `json:"threads"`
	LastActiveID   string             `json:"lastActiveId"`
}

// Store is the atomic, single-writer thread/session state store.
type Store struct {
	store *fsstore.Store

	mu  sync.RWMutex
	doc document
}

// Open loads (or creates) a state store backed by the JSON file at path.
func Open(path string) (*Store, error) {
	fs, err := fsstore.New(path)
	if err != nil {
		return nil, err
	}
	s := &Store{store: fs, doc: document{Threads: make(map[string]*Thread)}}
	if err := fs.Load(&s.doc); err != nil {
		return nil, err
	}
	if s.doc.Threads == nil {
		s.doc.Threads = make(map[string]*Thread)
	}
	return s, nil
}

// CreateThread allocates a new thread with a fresh UUID id (spec section 3:
// id "must not contain the delimiter __" -- UUIDs never do) and persists it.
func (s *Store) CreateThread(title string, now time.Time) (*Thread, error) {
	s.mu.Lock()
	th := &Thread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Sessions:  make(map[string]Session),
	}
	s.doc.Threads[th.ID] = th
	s.doc.LastActiveID = th.ID
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(snapshot); err != nil {
		return nil, err
	}
	return th, nil
}

// DeleteThread removes a thread from the store.
func (s *Store) DeleteThread(id string) error {
	s.mu.Lock()
	delete(s.doc.Threads, id)
	if s.doc.LastActiveID == id {
		s.doc.LastActiveID = ""
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(snapshot)
}

// GetThread returns a thread by id.
func (s *Store) GetThread(id string) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.doc.Threads[id]
	return th, ok
}

// ListThreads returns all threads' public projections, for the `threads`
// transport event (spec section 6).
func (s *Store) ListThreads() []ThreadInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThreadInfo, 0, len(s.doc.Threads))
	for _, th := range s.doc.Threads {
		out = append(out, th.Info())
	}
	return out
}

// SelectThread marks id as the last-active thread (used to resolve a
// mailbox filename that omits a threadId, per spec section 4.1 step 3).
func (s *Store) SelectThread(id string) error {
	s.mu.Lock()
	if _, ok := s.doc.Threads[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("state: unknown thread %q", id)
	}
	s.doc.LastActiveID = id
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(snapshot)
}

// LastActiveThreadID returns the last-active thread id, or "" if none.
func (s *Store) LastActiveThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.LastActiveID
}

// TouchThread bumps the thread's updatedAt and marks it last-active. The
// king-message submission endpoint calls it; mailbox delivery does not, so
// updatedAt does not move when the watcher delivers a message.
func (s *Store) TouchThread(id string, now time.Time) error {
	s.mu.Lock()
	th, ok := s.doc.Threads[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("state: unknown thread %q", id)
	}
	th.UpdatedAt = now
	s.doc.LastActiveID = id
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(snapshot)
}

// GetSession returns the provider session bound to (threadID, agentID).
func (s *Store) GetSession(threadID, agentID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.doc.Threads[threadID]
	if !ok {
		return Session{}, false
	}
	sess, ok := th.Sessions[agentID]
	return sess, ok
}

// SetSession persists the provider session for (threadID, agentID),
// populated lazily by each agent runtime on first use (spec section 3).
func (s *Store) SetSession(threadID, agentID string, sess Session) error {
	s.mu.Lock()
	th, ok := s.doc.Threads[threadID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("state: unknown thread %q", threadID)
	}
	if th.Sessions == nil {
		th.Sessions = make(map[string]Session)
	}
	th.Sessions[agentID] = sess
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.store.Save(snapshot)
}

func (s *Store) snapshotLocked() document {
	threads := make(map[string]*Thread, len(s.doc.Threads))
	for k, v := range s.doc.Threads {
		cp := *v
		sessions := make(map[string]Session, len(v.Sessions))
		for sk, sv := range v.Sessions {
			sessions[sk] = sv
		}
		cp.Sessions = sessions
		threads[k] = &cp
	}
	return document{Threads: threads, LastActiveID: s.doc.LastActiveID}
}
