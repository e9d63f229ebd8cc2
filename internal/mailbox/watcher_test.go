package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/shogun/internal/fsqueue"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/ledger"
	"github.com/codeready-toolchain/shogun/internal/state"
)

func setupWatcher(t *testing.T, handler Handler) (*Watcher, string, *state.Store) {
	t.Helper()
	base := t.TempDir()
	l, err := ledger.Open(filepath.Join(base, "message_ledger.json"))
	require.NoError(t, err)
	h, err := history.Open(base)
	require.NoError(t, err)
	s, err := state.Open(filepath.Join(base, "state.json"))
	require.NoError(t, err)

	w := New(Config{
		BaseDir: base,
		Ledger:  l,
		History: h,
		State:   s,
		Handler: handler,
		Mode:    fsqueue.ModePoll,
	})
	w.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w.pendingDir,
		ProcessingDir: w.procDir,
		Mode:          fsqueue.ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     w,
	})
	return w, base, s
}

func TestWatcherHappyPathArchivesAndInvokesHandler(t *testing.T) {
	var mu sync.Mutex
	var got []history.Message
	handler := func(_ context.Context, msg history.Message) error {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	}

	w, base, s := setupWatcher(t, handler)
	_, err := s.CreateThread("t", time.Now().UTC())
	require.NoError(t, err)

	writer := NewWriter(w.pendingDir)
	id, err := writer.Write("t1", "shogun", "king", "task", "調査して")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "調査して", got[0].Body)
	require.Equal(t, id, got[0].ID)
	mu.Unlock()

	// Archived under history/t1/message_to/shogun/from/king/{id}.md
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(base, "history", "t1", "message_to", "shogun", "from", "king", id+".md"))
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	// Removed from both pending and processing.
	_, err = os.Stat(filepath.Join(base, "message_to", "shogun", "from", "king", id+".md"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(base, "message_processing", "shogun", "from", "king", id+".md"))
	require.True(t, os.IsNotExist(err))

	// History JSONL has exactly one entry (P3).
	msgs, err := history.Open(base)
	require.NoError(t, err)
	list, err := msgs.List("t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestWatcherHandlerFailureLeavesFileForRetry(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	handler := func(_ context.Context, msg history.Message) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	w, base, _ := setupWatcher(t, handler)
	writer := NewWriter(w.pendingDir)
	id, err := writer.Write("t1", "shogun", "king", "task", "body")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	// File must still be sitting in message_processing/, not archived.
	_, err = os.Stat(filepath.Join(base, "message_processing", "shogun", "from", "king", id+".md"))
	require.NoError(t, err)

	// Simulate restart: recovery pass re-processes it and this time
	// succeeds.
	w2, _, _ := setupWatcher(t, handler)
	w2.baseDir = base
	w2.pendingDir = filepath.Join(base, "message_to")
	w2.procDir = filepath.Join(base, "message_processing")
	l, err := ledger.Open(filepath.Join(base, "message_ledger.json"))
	require.NoError(t, err)
	h, err := history.Open(base)
	require.NoError(t, err)
	w2.ledger = l
	w2.history = h
	w2.handler = handler
	w2.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w2.pendingDir,
		ProcessingDir: w2.procDir,
		Mode:          fsqueue.ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     w2,
	})

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	go w2.Run(ctx2)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(base, "history", "t1", "message_to", "shogun", "from", "king", id+".md"))
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, 2, calls)
	mu.Unlock()
}

func TestWatcherMissingThreadIDFallsBackToLastActive(t *testing.T) {
	var mu sync.Mutex
	var got []history.Message
	handler := func(_ context.Context, msg history.Message) error {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	}
	w, _, s := setupWatcher(t, handler)
	th, err := s.CreateThread("t", time.Now().UTC())
	require.NoError(t, err)

	// Write directly with no threadId segment (1-token stem), which the
	// Writer never produces but an external producer could.
	dir := filepath.Join(w.pendingDir, "shogun", "from", "king")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "standalone-title.md"), []byte("hi"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, th.ID, got[0].ThreadID)
	mu.Unlock()
}
