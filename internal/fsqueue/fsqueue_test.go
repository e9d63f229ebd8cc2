package fsqueue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
}

func (p *recordingProcessor) Process(_ context.Context, absPath, relPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, relPath)
	return nil
}

func (p *recordingProcessor) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.processed))
	copy(out, p.processed)
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestPollModeClaimsAndProcesses(t *testing.T) {
	base := t.TempDir()
	pending := filepath.Join(base, "message_to")
	processing := filepath.Join(base, "message_processing")

	proc := &recordingProcessor{}
	w := New(Config{
		PendingDir:    pending,
		ProcessingDir: processing,
		Mode:          ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     proc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writeFile(t, filepath.Join(pending, "karou", "from", "king", "t1__a.md"), "hello")

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(proc.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// File must have been moved out of pending.
	_, err := os.Stat(filepath.Join(pending, "karou", "from", "king", "t1__a.md"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(processing, "karou", "from", "king", "t1__a.md"))
	require.NoError(t, err)

	cancel()
	<-done
}

func TestRecoveryReplaysExistingFiles(t *testing.T) {
	base := t.TempDir()
	pending := filepath.Join(base, "message_to")
	processing := filepath.Join(base, "message_processing")

	// Pre-seed one file in pending and one already in processing (simulating
	// a prior crash between claim and process).
	writeFile(t, filepath.Join(pending, "shogun", "from", "king", "t1__a.md"), "x")
	writeFile(t, filepath.Join(processing, "karou", "from", "shogun", "t1__b.md"), "y")

	proc := &recordingProcessor{}
	w := New(Config{
		PendingDir:    pending,
		ProcessingDir: processing,
		Mode:          ModePoll,
		PollInterval:  10 * time.Millisecond,
		Processor:     proc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.recover(ctx)
	cancel()

	// Give debounce timers (stability threshold) a chance to fire.
	require.Eventually(t, func() bool {
		return len(proc.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsModeClaimsAndProcesses(t *testing.T) {
	base := t.TempDir()
	pending := filepath.Join(base, "message_to")
	processing := filepath.Join(base, "message_processing")
	require.NoError(t, os.MkdirAll(pending, 0o755))
	require.NoError(t, os.MkdirAll(processing, 0o755))

	proc := &recordingProcessor{}
	w := New(Config{
		PendingDir:         pending,
		ProcessingDir:      processing,
		Mode:               ModeEvents,
		StabilityThreshold: 20 * time.Millisecond,
		Processor:          proc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // let watches establish
	writeFile(t, filepath.Join(pending, "karou", "from", "king", "t1__a.md"), "hello")

	require.Eventually(t, func() bool {
		return len(proc.snapshot()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
