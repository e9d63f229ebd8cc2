package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/shogun/internal/authz"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/mailbox"
	"github.com/codeready-toolchain/shogun/internal/prompt"
	"github.com/codeready-toolchain/shogun/internal/state"
	"github.com/codeready-toolchain/shogun/internal/wait"
)

const (
	baseMaxLoops      = 8
	waitBudgetPerTurn = 10
	defaultWaitMs     = 60_000
)

// Config constructs a Runtime. Every field besides AgentID/Role/Provider is
// optional in tests but required for a real fleet.
type Config struct {
	AgentID         string
	Role            authz.Role
	AshigaruIDs     []string
	DefaultSuperior string

	BaseDir    string
	HistoryDir string

	Provider     Provider
	Writer       *mailbox.Writer
	StateStore   *state.Store
	WaitStore    *wait.Store
	HistoryStore *history.Store
	Profiles     []prompt.AgentProfile
	Caps         Capabilities

	Logger   *slog.Logger
	Now      func() time.Time
	MaxLoops int
}

type waiter struct {
	threadID string
	ch       chan history.Message
}

// Runtime is the single-agent execution engine, spec section 4.4: a FIFO
// queue, a single in-flight turn, and a suspension protocol driven by the
// waitForMessage tool call.
type Runtime struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	superior string

	mu             sync.Mutex
	queue          []history.Message
	busy           bool
	stopped        bool
	activeThreadID string
	status         Status
	cancelFn       context.CancelFunc
	cancelReason   string
	waiter         *waiter
	activity       []ActivityEntry
	updatedAt      time.Time
}

// NewRuntime constructs a Runtime for a single agent identity.
func NewRuntime(cfg Config) *Runtime {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.MaxLoops == 0 {
		cfg.MaxLoops = baseMaxLoops
	}
	superior := cfg.DefaultSuperior
	if superior == "" {
		superior = authz.DefaultSuperior(cfg.Role)
	}
	return &Runtime{
		cfg:      cfg,
		log:      cfg.Logger.With("agentId", cfg.AgentID),
		now:      cfg.Now,
		superior: superior,
		status:   StatusIdle,
	}
}

// ID returns the runtime's agent identity.
func (r *Runtime) ID() string { return r.cfg.AgentID }

// Enqueue implements spec section 4.4's enqueue protocol: a durable wait
// record takes priority over an in-memory waiter, which takes priority
// over appending to the FIFO queue.
func (r *Runtime) Enqueue(m history.Message) error {
	r.mu.Lock()

	if r.cfg.WaitStore != nil {
		if rec, ok := r.cfg.WaitStore.Get(m.ThreadID, r.cfg.AgentID); ok && rec.Status == wait.StatusPending && rec.MessageID != m.ID {
			r.mu.Unlock()
			now := r.now()
			if err := r.cfg.WaitStore.MarkReceived(m.ThreadID, r.cfg.AgentID, m, now); err != nil {
				return fmt.Errorf("agent: mark wait received: %w", err)
			}
			r.mu.Lock()
			resolved := r.resolveWaiterLocked(m.ThreadID, m)
			r.mu.Unlock()
			if !resolved {
				r.log.Info("agent: reply persisted for crashed waiter, will resume on restart", "threadId", m.ThreadID)
			}
			return nil
		}
	}

	if r.resolveWaiterLocked(m.ThreadID, m) {
		r.mu.Unlock()
		return nil
	}

	r.queue = append(r.queue, m)
	shouldStart := !r.busy && !r.stopped
	r.mu.Unlock()

	if shouldStart {
		go r.processLoop(context.Background())
	}
	return nil
}

// resolveWaiterLocked must be called with r.mu held. It delivers m to an
// in-memory waiter blocked in waitForMessage for the same thread, if any.
func (r *Runtime) resolveWaiterLocked(threadID string, m history.Message) bool {
	if r.waiter == nil || r.waiter.threadID != threadID {
		return false
	}
	w := r.waiter
	r.waiter = nil
	w.ch <- m
	return true
}

// ResumePendingWaits re-enqueues the original message behind every
// not-yet-cleared wait record belonging to this agent, spec section 4.4
// "resume-on-boot". Call once at startup, before the mailbox watcher
// starts delivering files.
func (r *Runtime) ResumePendingWaits() error {
	if r.cfg.WaitStore == nil || r.cfg.HistoryStore == nil {
		return nil
	}
	for _, rec := range r.cfg.WaitStore.AllForAgent(r.cfg.AgentID) {
		orig, ok, err := r.cfg.HistoryStore.FindByID(rec.ThreadID, rec.MessageID)
		if err != nil || !ok {
			r.log.Warn("agent: wait record references unknown message, dropping", "threadId", rec.ThreadID, "messageId", rec.MessageID)
			continue
		}
		r.mu.Lock()
		r.queue = append(r.queue, orig)
		shouldStart := !r.busy && !r.stopped
		r.mu.Unlock()
		if shouldStart {
			go r.processLoop(context.Background())
		}
	}
	return nil
}

// Stop requests the runtime halt after its current turn, cancelling any
// in-flight provider call.
func (r *Runtime) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancelFn
	r.cancelReason = "stop"
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Interrupt cancels the runtime's current turn with a reason, without
// halting the queue (spec section 4.4 "cancellation stop/interrupt
// semantics"): the runtime will pick up its next queued message normally.
func (r *Runtime) Interrupt(reason string) error {
	r.mu.Lock()
	cancel := r.cancelFn
	busy := r.busy
	r.cancelReason = "interrupt: " + reason
	r.mu.Unlock()
	if !busy {
		return fmt.Errorf("agent %s: not busy, nothing to interrupt", r.cfg.AgentID)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Snapshot returns the runtime's current externally visible state.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.status
	if r.stopped && !r.busy {
		status = StatusStopped
	}
	var activity string
	if n := len(r.activity); n > 0 {
		activity = r.activity[n-1].Text
	}
	logCopy := make([]ActivityEntry, len(r.activity))
	copy(logCopy, r.activity)
	return Snapshot{
		ID:             r.cfg.AgentID,
		Role:           string(r.cfg.Role),
		Status:         status,
		QueueSize:      len(r.queue),
		ActiveThreadID: r.activeThreadID,
		Activity:       activity,
		ActivityLog:    logCopy,
		UpdatedAt:      r.updatedAt,
	}
}

func (r *Runtime) recordActivityLocked(text string) {
	r.activity = append(r.activity, ActivityEntry{At: r.now(), Text: text})
	if len(r.activity) > activityLogCap {
		r.activity = r.activity[len(r.activity)-activityLogCap:]
	}
	r.updatedAt = r.now()
}

// processLoop drains the queue one coalesced batch at a time until empty or
// stopped, spec section 4.4 "processQueue with batch coalescing by
// threadId".
func (r *Runtime) processLoop(ctx context.Context) {
	for {
		r.mu.Lock()
		if r.busy || r.stopped || len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		threadID := r.queue[0].ThreadID
		var batch []history.Message
		var remaining []history.Message
		for _, m := range r.queue {
			if m.ThreadID == threadID {
				batch = append(batch, m)
			} else {
				remaining = append(remaining, m)
			}
		}
		r.queue = remaining
		r.busy = true
		r.status = StatusBusy
		r.activeThreadID = threadID
		turnCtx, cancel := context.WithCancel(ctx)
		r.cancelFn = cancel
		r.cancelReason = ""
		r.recordActivityLocked(fmt.Sprintf("starting turn for thread %s (%d message(s))", threadID, len(batch)))
		r.mu.Unlock()

		err := r.runTurn(turnCtx, threadID, batch)
		cancel()

		r.mu.Lock()
		r.busy = false
		r.status = StatusIdle
		r.activeThreadID = ""
		r.cancelFn = nil
		if err != nil {
			r.recordActivityLocked("turn error: " + err.Error())
			r.log.Error("agent: turn failed", "threadId", threadID, "error", err)
		} else {
			r.recordActivityLocked("turn complete")
		}
		stopped := r.stopped
		r.mu.Unlock()

		if stopped {
			return
		}
	}
}

// runTurn executes one coalesced batch against the provider, spec section
// 4.4 "runWithTools".
func (r *Runtime) runTurn(ctx context.Context, threadID string, batch []history.Message) error {
	providerThreadID, input, err := r.ensureSession(ctx, threadID, batch)
	if err != nil {
		return fmt.Errorf("ensureSession: %w", err)
	}
	originalMessageID := ""
	if len(batch) == 1 {
		originalMessageID = batch[0].ID
	}
	if err := r.runWithTools(ctx, threadID, providerThreadID, originalMessageID, input); err != nil {
		return err
	}
	// The turn completed successfully: drop the wait record it resumed.
	if r.cfg.WaitStore != nil && originalMessageID != "" {
		if rec, ok := r.cfg.WaitStore.Get(threadID, r.cfg.AgentID); ok && rec.MessageID == originalMessageID {
			_ = r.cfg.WaitStore.Clear(threadID, r.cfg.AgentID)
		}
	}
	return nil
}

// ensureSession idempotently creates or resumes the provider thread backing
// threadID for this agent, spec section 4.4 "ensureSession". A new session
// is seeded with the composed system prompt plus an acknowledgement request
// via CreateThread. It also produces the turn's first input: a synthetic
// TOOL_RESULT for a resumed wait, or the composed batch input otherwise.
func (r *Runtime) ensureSession(ctx context.Context, threadID string, batch []history.Message) (string, string, error) {
	if rec, ok := r.resumedWaitRecord(ctx, threadID, batch); ok {
		providerThreadID, err := r.resumeOrCreateSession(ctx, threadID)
		if err != nil {
			return "", "", err
		}
		return providerThreadID, r.syntheticWaitInput(rec), nil
	}

	if r.cfg.StateStore != nil {
		if sess, ok := r.cfg.StateStore.GetSession(threadID, r.cfg.AgentID); ok && sess.Initialized {
			return sess.ProviderThreadID, composeBatchInput(batch), nil
		}
	}

	systemPrompt := prompt.Compose(prompt.Params{
		Role:        r.cfg.Role,
		AgentID:     r.cfg.AgentID,
		BaseDir:     r.cfg.BaseDir,
		HistoryDir:  r.cfg.HistoryDir,
		AshigaruIDs: r.cfg.AshigaruIDs,
		Profiles:    r.cfg.Profiles,
	})
	handle, err := r.cfg.Provider.CreateThread(ctx, CreateThreadParams{
		WorkingDirectory: r.cfg.BaseDir,
		InitialInput:     systemPrompt + prompt.ACKRequest,
	})
	if err != nil {
		return "", "", fmt.Errorf("createThread: %w", err)
	}
	if r.cfg.StateStore != nil {
		if err := r.cfg.StateStore.SetSession(threadID, r.cfg.AgentID, state.Session{
			Provider:         "default",
			ProviderThreadID: handle.ID,
			Initialized:      true,
		}); err != nil {
			return "", "", fmt.Errorf("persist session: %w", err)
		}
	}
	return handle.ID, composeBatchInput(batch), nil
}

func (r *Runtime) resumeOrCreateSession(ctx context.Context, threadID string) (string, error) {
	if r.cfg.StateStore != nil {
		if sess, ok := r.cfg.StateStore.GetSession(threadID, r.cfg.AgentID); ok && sess.Initialized {
			handle, err := r.cfg.Provider.ResumeThread(ctx, sess.ProviderThreadID)
			if err != nil {
				return "", fmt.Errorf("resumeThread: %w", err)
			}
			return handle.ID, nil
		}
	}
	return "", fmt.Errorf("no prior session to resume for thread %s", threadID)
}

// resumedWaitRecord reports whether batch's sole message is the original
// message behind a not-yet-cleared wait record for this (thread, agent)
// pair, spec section 4.4 "resume-on-boot".
func (r *Runtime) resumedWaitRecord(ctx context.Context, threadID string, batch []history.Message) (wait.Record, bool) {
	if r.cfg.WaitStore == nil || len(batch) != 1 {
		return wait.Record{}, false
	}
	rec, ok := r.cfg.WaitStore.Get(threadID, r.cfg.AgentID)
	if !ok || rec.MessageID != batch[0].ID {
		return wait.Record{}, false
	}
	switch rec.Status {
	case wait.StatusReceived, wait.StatusTimeout:
		return rec, true
	case wait.StatusPending:
		// Crashed mid-wait with no outcome recorded yet: re-arm the
		// suspension synchronously for the record's original budget
		// instead of replaying the original instruction to the model.
		outcome := r.blockForReply(ctx, threadID, rec.TimeoutMs)
		resolved := wait.Record{
			Status:    wait.StatusTimeout,
			ThreadID:  rec.ThreadID,
			AgentID:   rec.AgentID,
			TimeoutMs: rec.TimeoutMs,
			MessageID: rec.MessageID,
		}
		if outcome != nil {
			now := r.now()
			_ = r.cfg.WaitStore.MarkReceived(threadID, r.cfg.AgentID, *outcome, now)
			resolved.Status = wait.StatusReceived
			resolved.ReceivedMessage = outcome
		} else {
			_ = r.cfg.WaitStore.MarkTimeout(threadID, r.cfg.AgentID, r.now())
		}
		return resolved, true
	}
	return wait.Record{}, false
}

func (r *Runtime) syntheticWaitInput(rec wait.Record) string {
	switch rec.Status {
	case wait.StatusReceived:
		payload, _ := json.Marshal(map[string]any{
			"status":  "message",
			"from":    rec.ReceivedMessage.From,
			"title":   rec.ReceivedMessage.Title,
			"body":    rec.ReceivedMessage.Body,
			"message": rec.ReceivedMessage,
		})
		return "TOOL_RESULT waitForMessage: " + string(payload)
	default:
		payload, _ := json.Marshal(map[string]any{"status": "timeout", "timeoutMs": rec.TimeoutMs})
		return "TOOL_RESULT waitForMessage: " + string(payload)
	}
}

// composeBatchInput renders a queued batch as the model-facing input, spec
// section 4.4 step 2: a single message is rendered by formatMessage; a
// coalesced batch is rendered as a numbered list of formatMessage blocks.
func composeBatchInput(batch []history.Message) string {
	if len(batch) == 1 {
		return formatMessage(batch[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d new messages:\n\n", len(batch))
	for i, m := range batch {
		fmt.Fprintf(&b, "%d. %s\n", i+1, formatMessage(m))
	}
	return b.String()
}

func formatMessage(m history.Message) string {
	return fmt.Sprintf("From: %s\nTitle: %s\nBody: %s", m.From, m.Title, m.Body)
}

// toolExecutionOrder is the literal execution order from spec section 4.4
// step 3.c, distinct from knownTools (which only gates recognition):
// getAshigaruStatus, waitForMessage, interruptAgent, sendMessage.
var toolExecutionOrder = []string{
	"getAshigaruStatus",
	"waitForMessage",
	"interruptAgent",
	"sendMessage",
}

// toolOutcome pairs a tool name with its JSON-serializable result payload,
// for building the next turn's TOOL_RESULT input (spec section 4.4 step
// 3.d).
type toolOutcome struct {
	name    string
	payload any
}

// runWithTools is the tool-call loop, spec section 4.4 step 3: parse
// tool calls, execute them in priority order, and feed results back as the
// next turn's input, up to maxLoops. No tool calls and non-empty output
// triggers auto-reply synthesis to the agent's default superior.
func (r *Runtime) runWithTools(ctx context.Context, threadID, providerThreadID, originalMessageID, input string) error {
	maxLoops := r.cfg.MaxLoops
	waitsRemaining := waitBudgetPerTurn

	for loop := 0; loop < maxLoops; loop++ {
		result, err := r.cfg.Provider.SendMessage(ctx, SendMessageParams{
			ThreadID: providerThreadID,
			Input:    input,
		})
		if err != nil {
			return fmt.Errorf("sendMessage: %w", err)
		}

		calls := ParseToolCalls(result.OutputText)
		if len(calls) == 0 {
			if strings.TrimSpace(result.OutputText) != "" {
				r.autoReply(threadID, result.OutputText)
			}
			return nil
		}

		var outcomes []toolOutcome
		waitProcessed := false
		for _, name := range toolExecutionOrder {
			for _, c := range calls {
				if c.Name != name {
					continue
				}
				if waitProcessed {
					r.log.Warn("agent: skipping tool call after waitForMessage suspended this batch", "threadId", threadID, "tool", c.Name)
					continue
				}
				switch c.Name {
				case "getAshigaruStatus":
					outcomes = append(outcomes, toolOutcome{c.Name, r.execGetAshigaruStatus()})
				case "waitForMessage":
					if waitsRemaining <= 0 {
						outcomes = append(outcomes, toolOutcome{c.Name, map[string]any{"status": "timeout", "limitReached": true}})
						maxLoops++ // limit-hit bump: grant one more loop even when the turn's wait budget is exhausted
						waitProcessed = true
						continue
					}
					waitsRemaining--
					maxLoops++ // first-wait bump: grant one more loop per suspension
					outcomes = append(outcomes, toolOutcome{c.Name, r.execWaitForMessage(ctx, threadID, originalMessageID, c.Args)})
					waitProcessed = true
				case "interruptAgent":
					outcomes = append(outcomes, toolOutcome{c.Name, r.execInterruptAgent(threadID, c.Args)})
				case "sendMessage":
					outcomes = append(outcomes, toolOutcome{c.Name, r.execSendMessage(threadID, c.Args)})
				}
			}
		}

		input = buildToolResultInput(outcomes)
	}
	r.log.Warn("agent: max tool-call loops reached without a final reply", "threadId", threadID)
	return nil
}

// buildToolResultInput renders a turn's executed tool outcomes as the next
// turn's input, spec section 4.4 step 3.d: a single call is prefixed
// `TOOL_RESULT <name>: {payload}`; more than one is framed as
// `TOOL_RESULT batch: [{…},{…}]`.
func buildToolResultInput(outcomes []toolOutcome) string {
	if len(outcomes) == 1 {
		payload, _ := json.Marshal(outcomes[0].payload)
		return fmt.Sprintf("TOOL_RESULT %s: %s", outcomes[0].name, payload)
	}
	batch := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		batch = append(batch, map[string]any{"tool": o.name, "result": o.payload})
	}
	payload, _ := json.Marshal(batch)
	return "TOOL_RESULT batch: " + string(payload)
}

func (r *Runtime) autoReply(threadID, text string) {
	if r.cfg.Writer == nil {
		return
	}
	if _, err := r.cfg.Writer.Write(threadID, r.superior, r.cfg.AgentID, "reply", text); err != nil {
		r.log.Error("agent: auto-reply write failed", "threadId", threadID, "error", err)
	}
}

// splitRecipients parses a sendMessage/interruptAgent `to` argument's
// comma-separated recipient list, spec section 4.4 step 3.c (`to=…[,…]`).
func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// execGetAshigaruStatus implements TOOL:getAshigaruStatus, allowed only for
// role=karou (spec section 4.4 step 3.c).
func (r *Runtime) execGetAshigaruStatus() any {
	if r.cfg.Role != authz.RoleKarou {
		return map[string]any{"status": "denied", "reason": "getAshigaruStatus is allowed only for karou"}
	}
	if r.cfg.Caps == nil {
		return AshigaruStatusResult{Idle: []AshigaruStatusEntry{}, Busy: []AshigaruStatusEntry{}}
	}
	return r.cfg.Caps.AshigaruStatus()
}

// execInterruptAgent implements TOOL:interruptAgent, allowed only for
// direct subordinates (shogun->karou; karou->ashigaruN), spec section 4.4
// step 3.c. Each requested recipient is checked independently; when `body`
// is present it is also delivered as a mailbox message to every allowed
// recipient before the interrupt itself fires.
func (r *Runtime) execInterruptAgent(threadID string, args map[string]string) any {
	recipients := splitRecipients(args["to"])
	reason := args["reason"]
	if reason == "" {
		reason = "interrupt"
	}

	var allowed, denied []string
	for _, to := range recipients {
		if authz.IsDirectSubordinate(r.cfg.Role, r.cfg.AgentID, r.cfg.AshigaruIDs, to) {
			allowed = append(allowed, to)
		} else {
			denied = append(denied, to)
		}
	}
	if len(allowed) == 0 {
		return map[string]any{"status": "denied", "to": denied}
	}

	body := args["body"]
	for _, to := range allowed {
		if body != "" && r.cfg.Writer != nil {
			if _, err := r.cfg.Writer.Write(threadID, to, r.cfg.AgentID, args["title"], body); err != nil {
				r.log.Error("agent: interrupt message write failed", "to", to, "error", err)
			}
		}
		if r.cfg.Caps == nil {
			continue
		}
		if err := r.cfg.Caps.Interrupt(to, reason); err != nil {
			r.log.Warn("agent: interrupt failed", "to", to, "error", err)
		}
	}

	out := map[string]any{"status": "interrupted", "to": allowed}
	if len(denied) > 0 {
		out["denied"] = denied
	}
	return out
}

// execSendMessage implements TOOL:sendMessage, filtering each requested
// recipient against the role's allowed-recipients set (spec section 4.6)
// and writing a mailbox message to every allowed one.
func (r *Runtime) execSendMessage(threadID string, args map[string]string) any {
	recipients := splitRecipients(args["to"])

	var allowed, denied []string
	for _, to := range recipients {
		if authz.IsAllowed(r.cfg.Role, r.cfg.AgentID, r.cfg.AshigaruIDs, to) {
			allowed = append(allowed, to)
		} else {
			denied = append(denied, to)
		}
	}
	if len(allowed) == 0 {
		return map[string]any{"status": "denied", "to": denied}
	}
	if r.cfg.Writer == nil {
		return map[string]any{"status": "error", "reason": "no mailbox writer configured"}
	}

	stems := make([]string, 0, len(allowed))
	for _, to := range allowed {
		stem, err := r.cfg.Writer.Write(threadID, to, r.cfg.AgentID, args["title"], args["body"])
		if err != nil {
			return map[string]any{"status": "error", "reason": err.Error()}
		}
		stems = append(stems, stem)
	}

	out := map[string]any{"status": "sent", "to": allowed, "stems": stems}
	if len(denied) > 0 {
		out["denied"] = denied
	}
	return out
}

// execWaitForMessage implements the suspension protocol: register an
// in-memory waiter and a durable wait record, then block until a reply
// arrives via Enqueue or the timeout elapses, spec section 4.4
// "suspension protocol". Allowed only for shogun and karou.
func (r *Runtime) execWaitForMessage(ctx context.Context, threadID, originalMessageID string, args map[string]string) any {
	if r.cfg.Role != authz.RoleShogun && r.cfg.Role != authz.RoleKarou {
		return map[string]any{"status": "denied", "reason": "waitForMessage is allowed only for shogun and karou"}
	}

	var timeoutMs int64 = defaultWaitMs
	if v, ok := args["timeoutMs"]; ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			timeoutMs = parsed
		}
	}

	r.mu.Lock()
	r.status = StatusWaiting
	r.waiter = &waiter{threadID: threadID, ch: make(chan history.Message, 1)}
	r.mu.Unlock()

	if r.cfg.WaitStore != nil {
		now := r.now()
		_ = r.cfg.WaitStore.Put(threadID, r.cfg.AgentID, wait.Record{
			Status:          wait.StatusPending,
			ThreadID:        threadID,
			AgentID:         r.cfg.AgentID,
			TimeoutMs:       timeoutMs,
			MessageID:       originalMessageID,
			CreatedAt:       now,
			OriginalCreated: now,
		})
	}

	reply := r.blockForReply(ctx, threadID, timeoutMs)

	r.mu.Lock()
	r.status = StatusBusy
	r.waiter = nil
	r.mu.Unlock()

	if reply == nil {
		if r.cfg.WaitStore != nil {
			_ = r.cfg.WaitStore.MarkTimeout(threadID, r.cfg.AgentID, r.now())
			_ = r.cfg.WaitStore.Clear(threadID, r.cfg.AgentID)
		}
		return map[string]any{"status": "timeout", "timeoutMs": timeoutMs}
	}

	if r.cfg.WaitStore != nil {
		_ = r.cfg.WaitStore.Clear(threadID, r.cfg.AgentID)
	}
	return map[string]any{
		"status":  "message",
		"from":    reply.From,
		"title":   reply.Title,
		"body":    reply.Body,
		"message": reply,
	}
}

// blockForReply waits up to timeoutMs for a message to arrive on the
// runtime's in-memory waiter channel, for ctx cancellation (stop/interrupt),
// or for the timeout to elapse.
func (r *Runtime) blockForReply(ctx context.Context, threadID string, timeoutMs int64) *history.Message {
	r.mu.Lock()
	if r.waiter == nil {
		r.waiter = &waiter{threadID: threadID, ch: make(chan history.Message, 1)}
	}
	ch := r.waiter.ch
	r.mu.Unlock()

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case m := <-ch:
		return &m
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
