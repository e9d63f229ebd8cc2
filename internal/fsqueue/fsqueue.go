// Package fsqueue implements the generic two-phase file queue watcher
// described in spec section 4.1 and reused, per section 4.7, for the
// restart watcher: pending files are claimed via atomic rename into a
// processing directory, then delivered to a Processor exactly once in
// effect (at startup every existing file in both directories is replayed,
// satisfying at-least-once delivery, P2).
//
// fsqueue owns only the filesystem plumbing (claim, inflight dedupe,
// recursive watching, write-stability debounce, startup recovery). It is
// deliberately ignorant of ledgers, archiving, and message semantics -
// those are domain-specific and live in the mailbox and restart packages
// (spec section 9, "keep the grammar... in a single tested module" applies
// equally to "keep the queue plumbing in a single tested module").
package fsqueue

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Mode selects how the queue notices new files.
type Mode int

const (
	// ModeEvents uses native filesystem events (fsnotify), recursively
	// watching every directory under PendingDir and ProcessingDir.
	ModeEvents Mode = iota
	// ModePoll periodically walks the full directory trees. Selected by an
	// environment toggle or test mode per spec section 4.1.
	ModePoll
)

// Processor handles a single file once it has stabilized in ProcessingDir.
// absPath is the file's absolute path; relPath is its path relative to
// ProcessingDir (e.g. "karou/from/shogun/t1__ts-rand__title.md"). Processor
// implementations own their own idempotence (ledger) and archiving.
type Processor interface {
	Process(ctx context.Context, absPath, relPath string) error
}

// Config configures a Watcher.
type Config struct {
	PendingDir    string
	ProcessingDir string
	Mode          Mode
	// StabilityThreshold is how long a file must go unmodified before it is
	// considered write-complete (spec section 4.1 "awaitWriteFinish").
	// Defaults to 200ms.
	StabilityThreshold time.Duration
	// PollInterval is the rescan period in ModePoll; ModeEvents does not
	// use it. Defaults to 50ms.
	PollInterval time.Duration
	Processor    Processor
	Logger       *slog.Logger
}

// Watcher implements the two-phase queue over a Config.
type Watcher struct {
	cfg Config
	log *slog.Logger

	inflightMu sync.Mutex
	inflight   map[string]bool

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	watcherMu sync.RWMutex
	fsWatcher *fsnotify.Watcher // set only in ModeEvents, for watching newly-created dirs

	lastActivity atomic.Int64 // unix nanos of the last claim/dispatch, for healthz liveness
}

// LastActivity returns the time of the watcher's last claim or dispatch, or
// the zero Time if it has not yet processed anything.
func (w *Watcher) LastActivity() time.Time {
	ns := w.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (w *Watcher) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

// New constructs a Watcher, applying defaults.
func New(cfg Config) *Watcher {
	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = 200 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		log:      cfg.Logger,
		inflight: make(map[string]bool),
		debounce: make(map[string]*time.Timer),
	}
}

// Run starts the watcher and blocks until ctx is cancelled. It first
// performs the startup recovery pass (spec section 4.1 "Recovery"): every
// existing file under PendingDir is (re-)claimed, and every existing file
// under ProcessingDir is (re-)processed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.PendingDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(w.cfg.ProcessingDir, 0o755); err != nil {
		return err
	}

	w.recover(ctx)

	if w.cfg.Mode == ModePoll {
		return w.runPoll(ctx)
	}
	return w.runEvents(ctx)
}

// recover walks both directory trees once, claiming pending files and
// processing processing-tier files, satisfying P2 across restarts.
func (w *Watcher) recover(ctx context.Context) {
	w.walkAndClaim(w.cfg.PendingDir)
	w.walkAndScheduleProcess(ctx, w.cfg.ProcessingDir, 0)
}

func (w *Watcher) walkAndClaim(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		w.claim(rel)
		return nil
	})
}

func (w *Watcher) walkAndScheduleProcess(ctx context.Context, root string, delay time.Duration) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		// A rescan must not restart a debounce that is already counting
		// down, or a poll interval shorter than the stability threshold
		// would postpone dispatch forever.
		w.debounceMu.Lock()
		_, scheduled := w.debounce[filepath.Join(w.cfg.ProcessingDir, rel)]
		w.debounceMu.Unlock()
		if scheduled {
			return nil
		}
		w.scheduleProcess(ctx, rel, delay)
		return nil
	})
}

// claim atomically renames a file from PendingDir to its mirror path under
// ProcessingDir (spec section 4.1 "Claim phase"). ENOENT is not an error:
// another actor (or a prior recovery pass) already claimed it.
func (w *Watcher) claim(rel string) {
	src := filepath.Join(w.cfg.PendingDir, rel)
	dst := filepath.Join(w.cfg.ProcessingDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		w.log.Warn("fsqueue: mkdir for claim failed", "path", dst, "error", err)
		return
	}
	w.watchDirIfEvents(filepath.Dir(dst))
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.log.Warn("fsqueue: claim rename failed", "src", src, "dst", dst, "error", err)
		return
	}
	w.touch()
}

// scheduleProcess debounces a processing-tier file (awaitWriteFinish) and
// then dispatches it to the Processor, deduplicating by absolute path
// (spec section 4.1 step 1, "inflight guard").
func (w *Watcher) scheduleProcess(ctx context.Context, rel string, delay time.Duration) {
	abs := filepath.Join(w.cfg.ProcessingDir, rel)

	w.debounceMu.Lock()
	if t, ok := w.debounce[abs]; ok {
		t.Stop()
	}
	w.debounce[abs] = time.AfterFunc(delay+w.cfg.StabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounce, abs)
		w.debounceMu.Unlock()
		w.dispatch(ctx, abs, rel)
	})
	w.debounceMu.Unlock()
}

func (w *Watcher) dispatch(ctx context.Context, abs, rel string) {
	w.inflightMu.Lock()
	if w.inflight[abs] {
		w.inflightMu.Unlock()
		return
	}
	w.inflight[abs] = true
	w.inflightMu.Unlock()

	defer func() {
		w.inflightMu.Lock()
		delete(w.inflight, abs)
		w.inflightMu.Unlock()
	}()

	if err := w.cfg.Processor.Process(ctx, abs, rel); err != nil {
		w.log.Warn("fsqueue: processor error, file remains for retry", "path", abs, "error", err)
		return
	}
	w.touch()
}

// runPoll periodically rescans both trees, claiming and (re)scheduling
// processing for whatever it finds. This is the "polling mode" spec
// section 4.1 calls out as an environment-selectable alternative to native
// events.
func (w *Watcher) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.walkAndClaim(w.cfg.PendingDir)
			w.walkAndScheduleProcess(ctx, w.cfg.ProcessingDir, 0)
		}
	}
}

// runEvents watches both trees with fsnotify, recursively adding watches
// for newly created subdirectories (the {to}/from/{from}/ layout of spec
// section 4.1 grows new directories as new recipients/senders appear).
func (w *Watcher) runEvents(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	w.watcherMu.Lock()
	w.fsWatcher = watcher
	w.watcherMu.Unlock()
	defer func() {
		w.watcherMu.Lock()
		w.fsWatcher = nil
		w.watcherMu.Unlock()
	}()

	if err := addRecursive(watcher, w.cfg.PendingDir); err != nil {
		return err
	}
	if err := addRecursive(watcher, w.cfg.ProcessingDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("fsqueue: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return // ENOENT: file vanished between event and stat; ignore per spec 4.1 step 2
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			_ = addRecursive(watcher, ev.Name)
		}
		return
	}

	if rel, relErr := filepath.Rel(w.cfg.PendingDir, ev.Name); relErr == nil && !isOutside(rel) {
		w.claim(rel)
		return
	}
	if rel, relErr := filepath.Rel(w.cfg.ProcessingDir, ev.Name); relErr == nil && !isOutside(rel) {
		w.scheduleProcess(ctx, rel, 0)
		return
	}
}

func (w *Watcher) watchDirIfEvents(dir string) {
	w.watcherMu.RLock()
	defer w.watcherMu.RUnlock()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Add(dir)
	}
}

func isOutside(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
