// Command shogund is the coordinator daemon: it loads configuration,
// brings up the mailbox and restart watchers, the shogun/karou/ashigaru
// agent fleet, and the HTTP/WebSocket surface, then blocks until
// asked to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/codeready-toolchain/shogun/internal/agent"
	"github.com/codeready-toolchain/shogun/internal/config"
	"github.com/codeready-toolchain/shogun/internal/events"
	"github.com/codeready-toolchain/shogun/internal/fsqueue"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/ledger"
	"github.com/codeready-toolchain/shogun/internal/logging"
	"github.com/codeready-toolchain/shogun/internal/mailbox"
	"github.com/codeready-toolchain/shogun/internal/prompt"
	"github.com/codeready-toolchain/shogun/internal/provider"
	"github.com/codeready-toolchain/shogun/internal/restart"
	"github.com/codeready-toolchain/shogun/internal/state"
	"github.com/codeready-toolchain/shogun/internal/wait"
)

// exitRestart is the exit code a restart request asks cmd/shogund to exit
// with, spec section 6 ("Exit codes: 0 normal; 75 restart-requested").
const exitRestart = 75

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Printf("shogun: failed to load configuration: %v", err)
		return 1
	}

	baseDir := resolveDir(*configDir, cfg.BaseDir)
	historyDir := resolveDir(*configDir, cfg.HistoryDir)

	logger, closeLog, err := logging.Init(logging.Options{
		Dir:        baseDir,
		Level:      slog.LevelInfo,
		AlsoStderr: true,
	})
	if err != nil {
		log.Printf("shogun: failed to initialize logging: %v", err)
		return 1
	}
	defer closeLog()

	stats := cfg.Stats()
	logger.Info("shogun: starting",
		"configDir", *configDir,
		"baseDir", baseDir,
		"ashigaruCount", stats.AshigaruCount,
		"provider", stats.Provider,
		"serverPort", stats.ServerPort,
		"profiles", stats.Profiles)

	msgLedger, err := ledger.Open(filepath.Join(baseDir, "message_ledger.json"))
	if err != nil {
		logger.Error("shogun: open message ledger", "error", err)
		return 1
	}
	stateStore, err := state.Open(filepath.Join(baseDir, "state.json"))
	if err != nil {
		logger.Error("shogun: open state store", "error", err)
		return 1
	}
	historyStore, err := history.Open(baseDir)
	if err != nil {
		logger.Error("shogun: open history store", "error", err)
		return 1
	}
	_ = historyDir // historyDir only feeds the agent manager (prompt composition); the history store is rooted at baseDir per spec section 6's layout.
	waitStore, err := wait.Open(filepath.Join(baseDir, "waits.json"))
	if err != nil {
		logger.Error("shogun: open wait store", "error", err)
		return 1
	}

	prov, err := provider.New(cfg.Provider)
	if err != nil {
		logger.Error("shogun: build provider", "error", err)
		return 1
	}

	profiles := make([]prompt.AgentProfile, 0, len(cfg.AshigaruProfiles))
	for _, p := range cfg.AshigaruProfiles {
		profiles = append(profiles, prompt.AgentProfile{
			AgentID:     p.AgentID,
			DisplayName: p.DisplayName,
			Focus:       p.Focus,
		})
	}

	writer := mailbox.NewWriter(filepath.Join(baseDir, "message_to"))

	manager := agent.NewManager(agent.ManagerConfig{
		AshigaruCount: cfg.AshigaruCount,
		BaseDir:       baseDir,
		HistoryDir:    historyDir,
		Provider:      prov,
		Writer:        writer,
		StateStore:    stateStore,
		WaitStore:     waitStore,
		HistoryStore:  historyStore,
		Profiles:      profiles,
		Logger:        logger,
	})

	if err := manager.ResumeAll(); err != nil {
		logger.Error("shogun: resume pending waits", "error", err)
		return 1
	}

	hub := events.NewHub(5*time.Second, logger)

	mailboxWatcher := mailbox.New(mailbox.Config{
		BaseDir: baseDir,
		Ledger:  msgLedger,
		History: historyStore,
		State:   stateStore,
		Handler: events.WireRoute(hub, manager, manager.Route),
		Mode:    queueMode(),
		Logger:  logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var srv *http.Server
	restartRequested := make(chan struct{}, 1)
	restartWatcher, err := restart.New(restart.Config{
		BaseDir: baseDir,
		Mode:    queueMode(),
		Logger:  logger,
		Handler: func(ctx context.Context, req restart.Request) error {
			logger.Info("shogun: restart requested, shutting down", "id", req.ID, "reason", req.Reason)
			shutdown(ctx, logger, manager, hub, srv)
			select {
			case restartRequested <- struct{}{}:
			default:
			}
			cancel()
			return nil
		},
	})
	if err != nil {
		logger.Error("shogun: build restart watcher", "error", err)
		return 1
	}

	httpServer := events.NewServer(events.ServerConfig{
		StateStore:     stateStore,
		HistoryStore:   historyStore,
		Writer:         writer,
		Fleet:          manager,
		Config:         cfg,
		Ledger:         msgLedger,
		RestartLedger:  restartWatcher.Ledger(),
		MailboxWatcher: mailboxWatcher,
		RestartWatcher: restartWatcher,
		Hub:            hub,
		Logger:         logger,
	})
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: httpServer.Handler(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mailboxWatcher.Run(ctx); err != nil {
			logger.Error("shogun: mailbox watcher exited", "error", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := restartWatcher.Run(ctx); err != nil {
			logger.Error("shogun: restart watcher exited", "error", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("shogun: http server exited", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("shogun: received signal, shutting down", "signal", sig.String())
		shutdown(ctx, logger, manager, hub, srv)
		cancel()
	case <-restartRequested:
		exitCode = exitRestart
	case <-ctx.Done():
		// The restart handler signals restartRequested before cancelling
		// ctx, but select may still pick this case first.
		select {
		case <-restartRequested:
			exitCode = exitRestart
		default:
		}
	}

	wg.Wait()
	logger.Info("shogun: stopped", "exitCode", exitCode)
	return exitCode
}

// shutdown performs the orderly-shutdown sequence shared by the restart
// path and the OS-signal path (SPEC_FULL.md's "Graceful shutdown on
// SIGINT/SIGTERM"): stop every agent, tell connected clients, close the
// HTTP server.
func shutdown(ctx context.Context, logger *slog.Logger, manager *agent.Manager, hub *events.Hub, srv *http.Server) {
	hub.Broadcast(events.StopRequested())
	manager.StopAll()
	hub.Broadcast(events.StopCompleted())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shogun: http server shutdown", "error", err)
	}
}

// queueMode lets an operator force polling mode (e.g. on a filesystem
// where fsnotify's inotify backend is unavailable), spec section 4.1
// "selected by an environment toggle or test mode".
func queueMode() fsqueue.Mode {
	if getEnv("SHOGUN_QUEUE_MODE", "events") == "poll" {
		return fsqueue.ModePoll
	}
	return fsqueue.ModeEvents
}

// resolveDir resolves a configured directory against the config
// directory, per spec section 6 ("baseDir and historyDir are resolved
// against workspace root").
func resolveDir(configDir, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(configDir, dir)
}
