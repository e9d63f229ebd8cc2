package restart

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/shogun/internal/fsqueue"
)

func TestRestartRequestInvokesHandlerAndArchives(t *testing.T) {
	base := t.TempDir()
	var mu sync.Mutex
	var got []Request
	handler := func(_ context.Context, req Request) error {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		return nil
	}

	w, err := New(Config{BaseDir: base, Handler: handler, Mode: fsqueue.ModePoll})
	require.NoError(t, err)
	w.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w.pendingDir,
		ProcessingDir: w.procDir,
		Mode:          fsqueue.ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     w,
	})

	require.NoError(t, os.MkdirAll(w.pendingDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.pendingDir, "r1.json"), []byte(`{"reason":"config changed"}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "config changed", got[0].Reason)
	mu.Unlock()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(w.historyDir, "r1.json"))
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRestartFallsBackToFilenameAndMtimeWhenBodyAbsent(t *testing.T) {
	base := t.TempDir()
	var mu sync.Mutex
	var got []Request
	handler := func(_ context.Context, req Request) error {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		return nil
	}
	w, err := New(Config{BaseDir: base, Handler: handler, Mode: fsqueue.ModePoll})
	require.NoError(t, err)
	w.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w.pendingDir,
		ProcessingDir: w.procDir,
		Mode:          fsqueue.ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     w,
	})
	require.NoError(t, os.MkdirAll(w.pendingDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.pendingDir, "r2.json"), []byte(``), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "r2", got[0].ID)
	require.Empty(t, got[0].Reason)
	mu.Unlock()
}
