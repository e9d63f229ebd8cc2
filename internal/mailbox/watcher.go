package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/shogun/internal/fsqueue"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/ledger"
	"github.com/codeready-toolchain/shogun/internal/state"
)

// Handler is the application-level callback invoked once per delivered
// message (spec section 4.1 step 6). Its completion (return without error)
// marks the ledger's job_done rank; an error leaves the file in
// message_processing/ for retry on next startup.
type Handler func(ctx context.Context, msg history.Message) error

// Watcher is the mailbox watcher (component E): observes message_to/ and
// message_processing/, claims, processes, and archives with ledger-backed
// idempotence.
type Watcher struct {
	baseDir    string
	pendingDir string
	procDir    string

	ledger  *ledger.Ledger
	history *history.Store
	state   *state.Store
	handler Handler
	log     *slog.Logger

	now func() time.Time
	fq  *fsqueue.Watcher
}

// Config configures a mailbox Watcher.
type Config struct {
	BaseDir       string // `.shogun/` workspace root, spec section 6
	Ledger        *ledger.Ledger
	History       *history.Store
	State         *state.Store
	Handler       Handler
	Mode          fsqueue.Mode
	Logger        *slog.Logger
}

// New constructs a mailbox Watcher over the directory layout in spec
// section 6.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Watcher{
		baseDir:    cfg.BaseDir,
		pendingDir: filepath.Join(cfg.BaseDir, "message_to"),
		procDir:    filepath.Join(cfg.BaseDir, "message_processing"),
		ledger:     cfg.Ledger,
		history:    cfg.History,
		state:      cfg.State,
		handler:    cfg.Handler,
		log:        cfg.Logger,
		now:        time.Now,
	}
	w.fq = fsqueue.New(fsqueue.Config{
		PendingDir:    w.pendingDir,
		ProcessingDir: w.procDir,
		Mode:          cfg.Mode,
		Processor:     w,
		Logger:        cfg.Logger,
	})
	return w
}

// Run blocks, watching and processing the mailbox until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	return w.fq.Run(ctx)
}

// LastActivity returns the time of the watcher's last claim or dispatch,
// for the healthz endpoint's liveness check.
func (w *Watcher) LastActivity() time.Time {
	return w.fq.LastActivity()
}

// parsedPath is the decoded form of a processing-tier relative path
// `{to}/from/{from}/{stem}.md`.
type parsedPath struct {
	to, from, stem string
}

func parseRelPath(rel string) (parsedPath, bool) {
	if !strings.HasSuffix(rel, ".md") {
		return parsedPath{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 || parts[1] != "from" {
		return parsedPath{}, false
	}
	stem := strings.TrimSuffix(parts[3], ".md")
	return parsedPath{to: parts[0], from: parts[2], stem: stem}, true
}

// Process implements fsqueue.Processor. It runs the claim-phase file
// through the full process-phase lifecycle described in spec section 4.1.
func (w *Watcher) Process(ctx context.Context, absPath, relPath string) error {
	pp, ok := parseRelPath(relPath)
	if !ok {
		w.log.Warn("mailbox: ignoring file outside filename grammar", "path", relPath)
		return nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil // ENOENT: terminates processing silently, spec 4.1 step 2
	}
	body, err := os.ReadFile(absPath)
	if err != nil {
		return nil
	}
	createdAt := info.ModTime().UTC()

	stem := ParseStem(pp.stem)
	threadID := stem.ThreadID
	if threadID == "" {
		threadID = w.state.LastActiveThreadID()
	}
	if threadID == "" {
		w.log.Warn("mailbox: no threadId and no last-active thread, dropping message", "stem", pp.stem)
		return nil
	}

	msg := history.Message{
		ID:        pp.stem,
		ThreadID:  threadID,
		From:      pp.from,
		To:        pp.to,
		Title:     stem.Title,
		Body:      string(body),
		CreatedAt: createdAt,
	}

	key := idempotencyKey(relPath)
	now := w.now().UTC()

	if w.ledger.RankOf(key) < ledger.Rank(ledger.StatusHistory) {
		if err := w.history.Append(msg); err != nil {
			return fmt.Errorf("mailbox: history append: %w", err)
		}
		if err := w.ledger.Mark(key, ledger.StatusHistory, now); err != nil {
			return fmt.Errorf("mailbox: mark history: %w", err)
		}
	}

	if w.ledger.RankOf(key) < ledger.Rank(ledger.StatusJobDone) {
		if w.handler != nil {
			if err := w.handler(ctx, msg); err != nil {
				// Leave rank at history; file stays in message_processing/
				// for retry on next startup, per spec section 4.1 step 6.
				return fmt.Errorf("mailbox: handler: %w", err)
			}
		}
		if err := w.ledger.Mark(key, ledger.StatusJobDone, time.Now().UTC()); err != nil {
			return fmt.Errorf("mailbox: mark job_done: %w", err)
		}
	}

	return w.archive(relPath, pp)
}

func (w *Watcher) archive(relPath string, pp parsedPath) error {
	key := idempotencyKey(relPath)
	src := filepath.Join(w.procDir, relPath)

	// Re-derive the threadID from the stem rather than threading it through
	// from Process, since stems are the id-stability source of truth (spec
	// section 3, P5).
	threadID := ParseStem(pp.stem).ThreadID
	if threadID == "" {
		threadID = w.state.LastActiveThreadID()
	}
	dst := filepath.Join(w.baseDir, "history", threadID, "message_to", pp.to, "from", pp.from, pp.stem+".md")

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mailbox: mkdir archive dir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			// Already archived (or claimed away) by a prior crash-recovery
			// pass; treat as success per spec section 4.1 step 7.
		} else if _, statErr := os.Stat(dst); statErr == nil {
			// Destination already exists: already archived.
		} else {
			return fmt.Errorf("mailbox: archive rename: %w", err)
		}
	}
	return w.ledger.Mark(key, ledger.StatusDone, time.Now().UTC())
}

// idempotencyKey computes the ledger key for a mailbox file: the relative
// path with the leading segment forced to "message_to" (spec section 4.1
// step 4), so the key is stable whether the file is currently pending or
// processing.
func idempotencyKey(relPath string) string {
	return filepath.ToSlash(filepath.Join("message_to", relPath))
}
