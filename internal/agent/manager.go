package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codeready-toolchain/shogun/internal/authz"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/mailbox"
	"github.com/codeready-toolchain/shogun/internal/prompt"
	"github.com/codeready-toolchain/shogun/internal/state"
	"github.com/codeready-toolchain/shogun/internal/wait"
)

// ManagerConfig constructs the fixed {shogun, karou} plus K ashigaru fleet,
// spec section 4.5.
type ManagerConfig struct {
	AshigaruCount int

	BaseDir    string
	HistoryDir string

	Provider     Provider
	Writer       *mailbox.Writer
	StateStore   *state.Store
	WaitStore    *wait.Store
	HistoryStore *history.Store
	Profiles     []prompt.AgentProfile

	Logger *slog.Logger
	Now    func() time.Time
}

// Manager is the agent manager (component I): it owns one Runtime per fixed
// role plus the ashigaru pool, routes inbound mailbox messages to the right
// runtime, and satisfies Capabilities for every runtime it constructs so no
// runtime ever holds a back-pointer to the Manager itself (spec section 9).
type Manager struct {
	cfg      ManagerConfig
	log      *slog.Logger
	runtimes map[string]*Runtime
	order    []string // deterministic snapshot/status ordering
}

// NewManager builds the fleet. The returned Manager is ready to receive
// mailbox.Handler callbacks via Manager.Route.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	ashigaruIDs := make([]string, cfg.AshigaruCount)
	for i := range ashigaruIDs {
		ashigaruIDs[i] = fmt.Sprintf("ashigaru%d", i+1)
	}

	m := &Manager{cfg: cfg, log: cfg.Logger, runtimes: make(map[string]*Runtime)}

	m.addRuntime("shogun", authz.RoleShogun, ashigaruIDs)
	m.addRuntime("karou", authz.RoleKarou, ashigaruIDs)
	for _, id := range ashigaruIDs {
		m.addRuntime(id, authz.RoleAshigaru, ashigaruIDs)
	}

	sort.Strings(m.order)
	return m
}

func (m *Manager) addRuntime(id string, role authz.Role, ashigaruIDs []string) {
	rt := NewRuntime(Config{
		AgentID:     id,
		Role:        role,
		AshigaruIDs: ashigaruIDs,
		BaseDir:     m.cfg.BaseDir,
		HistoryDir:  m.cfg.HistoryDir,
		Provider:    m.cfg.Provider,
		Writer:      m.cfg.Writer,
		StateStore:  m.cfg.StateStore,
		WaitStore:   m.cfg.WaitStore,
		HistoryStore: m.cfg.HistoryStore,
		Profiles:    m.cfg.Profiles,
		Caps:        m,
		Logger:      m.log,
		Now:         m.cfg.Now,
	})
	m.runtimes[id] = rt
	m.order = append(m.order, id)
}

// Route is wired as the mailbox.Handler: it dispatches a delivered message
// to the addressed agent's runtime queue. Unknown recipients are a
// malformed-input condition per spec section 4.1/7 and are logged, not
// retried forever (returning nil leaves the ledger at job_done so the file
// still archives).
func (m *Manager) Route(_ context.Context, msg history.Message) error {
	rt, ok := m.runtimes[msg.To]
	if !ok {
		m.log.Warn("agent: message addressed to unknown agent, dropping", "to", msg.To, "messageId", msg.ID)
		return nil
	}
	return rt.Enqueue(msg)
}

// ResumeAll calls ResumePendingWaits on every runtime, spec section 4.4
// "resume-on-boot". Call once at startup, before the mailbox watcher
// starts delivering files.
func (m *Manager) ResumeAll() error {
	for _, id := range m.order {
		if err := m.runtimes[id].ResumePendingWaits(); err != nil {
			return fmt.Errorf("agent: resume %s: %w", id, err)
		}
	}
	return nil
}

// StopAll requests every runtime stop after its current turn, spec section
// 6 "stop all" request.
func (m *Manager) StopAll() {
	for _, id := range m.order {
		m.runtimes[id].Stop()
	}
}

// Snapshot returns the fleet-wide status snapshot, spec section 6 "fleet
// snapshot" request, in a deterministic role order.
func (m *Manager) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runtimes[id].Snapshot())
	}
	return out
}

// AshigaruStatus implements Capabilities.AshigaruStatus for the karou
// runtime's TOOL:getAshigaruStatus call, partitioning the fleet's ashigaru
// into idle/busy buckets per spec section 4.4 step 3.c.
func (m *Manager) AshigaruStatus() AshigaruStatusResult {
	result := AshigaruStatusResult{Idle: []AshigaruStatusEntry{}, Busy: []AshigaruStatusEntry{}}
	for _, id := range m.order {
		rt := m.runtimes[id]
		if rt.cfg.Role != authz.RoleAshigaru {
			continue
		}
		snap := rt.Snapshot()
		entry := AshigaruStatusEntry{
			ID:             snap.ID,
			Status:         snap.Status,
			QueueSize:      snap.QueueSize,
			ActiveThreadID: snap.ActiveThreadID,
		}
		if snap.Status == StatusIdle {
			result.Idle = append(result.Idle, entry)
		} else {
			result.Busy = append(result.Busy, entry)
		}
	}
	return result
}

// Interrupt implements Capabilities.Interrupt, used by TOOL:interruptAgent.
func (m *Manager) Interrupt(to, reason string) error {
	rt, ok := m.runtimes[to]
	if !ok {
		return fmt.Errorf("agent: unknown interrupt target %q", to)
	}
	return rt.Interrupt(reason)
}
