// Package restart implements the restart watcher (component J), spec
// section 4.7: identical shape to the mailbox watcher (section 4.1) but
// over tmp/restart/{requests,processing,history}/*.json, driving orderly
// shutdown via the restart Handler.
package restart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/shogun/internal/fsqueue"
	"github.com/codeready-toolchain/shogun/internal/ledger"
)

// Request is the optional JSON payload of a restart-request file, per spec
// section 4.7. Any field may be absent; ID falls back to the filename stem
// and RequestedAt to the file's mtime.
type Request struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Handler performs the orderly shutdown sequence: stop all agents, close
// watchers and transport. It does not itself exit the process - the caller
// (cmd/shogund) does that with exit code 75 after Handler returns, per spec
// section 4.7.
type Handler func(ctx context.Context, req Request) error

// Config configures a restart Watcher.
type Config struct {
	BaseDir string // `.shogun/` workspace root
	Handler Handler
	Mode    fsqueue.Mode
	Logger  *slog.Logger
}

// Watcher is the restart-request watcher.
type Watcher struct {
	baseDir    string
	pendingDir string
	procDir    string
	historyDir string

	ledger  *ledger.Ledger
	handler Handler
	log     *slog.Logger
	fq      *fsqueue.Watcher
}

// New constructs a restart Watcher rooted at cfg.BaseDir/tmp/restart.
func New(cfg Config) (*Watcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	root := filepath.Join(cfg.BaseDir, "tmp", "restart")
	l, err := ledger.Open(filepath.Join(root, "restart_ledger.json"))
	if err != nil {
		return nil, fmt.Errorf("restart: open ledger: %w", err)
	}

	w := &Watcher{
		baseDir:    cfg.BaseDir,
		pendingDir: filepath.Join(root, "requests"),
		procDir:    filepath.Join(root, "processing"),
		historyDir: filepath.Join(root, "history"),
		ledger:     l,
		handler:    cfg.Handler,
		log:        cfg.Logger,
	}
	w.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w.pendingDir,
		ProcessingDir: w.procDir,
		Mode:          cfg.Mode,
		Processor:     w,
		Logger:        cfg.Logger,
	})
	return w, nil
}

// Run blocks, watching restart requests until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	return w.fq.Run(ctx)
}

// LastActivity returns the time of the watcher's last claim or dispatch.
func (w *Watcher) LastActivity() time.Time {
	return w.fq.LastActivity()
}

// Ledger exposes the restart watcher's own ledger, for the healthz
// endpoint's entry-count reporting.
func (w *Watcher) Ledger() *ledger.Ledger {
	return w.ledger
}

// Process implements fsqueue.Processor, mirroring the mailbox watcher's
// two-stage (handler then archive) ledger discipline from spec section
// 4.1, minus the history-append stage (restart requests have no history
// log of their own).
func (w *Watcher) Process(ctx context.Context, absPath, relPath string) error {
	if !strings.HasSuffix(relPath, ".json") {
		w.log.Warn("restart: ignoring non-json file", "path", relPath)
		return nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil
	}

	req := Request{
		ID:          strings.TrimSuffix(relPath, ".json"),
		RequestedAt: info.ModTime().UTC(),
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		var parsed Request
		if err := json.Unmarshal(data, &parsed); err != nil {
			w.log.Warn("restart: malformed JSON body, using filename/mtime fallback", "path", relPath, "error", err)
		} else {
			if parsed.ID != "" {
				req.ID = parsed.ID
			}
			req.Reason = parsed.Reason
			if !parsed.RequestedAt.IsZero() {
				req.RequestedAt = parsed.RequestedAt
			}
		}
	}

	key := idempotencyKey(relPath)
	now := time.Now().UTC()

	if w.ledger.RankOf(key) < ledger.Rank(ledger.StatusJobDone) {
		if w.handler != nil {
			if err := w.handler(ctx, req); err != nil {
				return fmt.Errorf("restart: handler: %w", err)
			}
		}
		if err := w.ledger.Mark(key, ledger.StatusJobDone, now); err != nil {
			return fmt.Errorf("restart: mark job_done: %w", err)
		}
	}

	dst := filepath.Join(w.historyDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("restart: mkdir history dir: %w", err)
	}
	src := filepath.Join(w.procDir, relPath)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			// already archived by a prior crash-recovery pass
		} else if _, statErr := os.Stat(dst); statErr != nil {
			return fmt.Errorf("restart: archive rename: %w", err)
		}
	}
	return w.ledger.Mark(key, ledger.StatusDone, time.Now().UTC())
}

func idempotencyKey(relPath string) string {
	return filepath.ToSlash(filepath.Join("requests", relPath))
}
