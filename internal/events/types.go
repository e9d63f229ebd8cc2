// Package events implements the transport event contract (component K,
// spec section 6) and the HTTP/WebSocket boundary that exercises it: a
// gin HTTP API for thread CRUD and fleet control, and a WebSocket hub that
// broadcasts the four named events to every connected client.
//
// The contract itself is wire-format-independent per spec section 6; this
// package picks JSON-over-WebSocket, grounded on the teacher's
// pkg/events/manager.go ConnectionManager. Unlike the teacher, there is
// exactly one process and no cross-pod fan-out, so there is no PostgreSQL
// NOTIFY/LISTEN layer here - Broadcast fans out in-process, and a bounded
// in-memory ring buffer stands in for the teacher's DB-backed catchup
// query.
package events

import (
	"time"

	"github.com/codeready-toolchain/shogun/internal/agent"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/state"
)

// Type is one of the four named transport events from spec section 6.
type Type string

const (
	TypeThreads     Type = "threads"
	TypeMessage     Type = "message"
	TypeAgentStatus Type = "agent_status"
	TypeStop        Type = "stop"
)

// Envelope is the JSON shape sent to every subscriber. Only the field
// matching Type is populated; the others are omitted.
type Envelope struct {
	Type Type `json:"type"`
	// SeqID is a per-process monotonic counter used for ring-buffer
	// catchup; it is not part of the spec's wire contract, which is
	// transport-agnostic, and clients may ignore it.
	SeqID int64 `json:"seqId"`

	Threads []state.ThreadInfo `json:"threads,omitempty"`
	Message *history.Message   `json:"message,omitempty"`
	Agents  []agent.Snapshot   `json:"agents,omitempty"`
	Status  string             `json:"status,omitempty"`
}

// ThreadsEvent builds the "threads" event, emitted on create/delete/update.
func ThreadsEvent(threads []state.ThreadInfo) Envelope {
	return Envelope{Type: TypeThreads, Threads: threads}
}

// MessageEvent builds the "message" event, emitted when a mailbox file has
// been parsed and is about to be routed.
func MessageEvent(m history.Message) Envelope {
	return Envelope{Type: TypeMessage, Message: &m}
}

// AgentStatusEvent builds the "agent_status" event. It is emitted after
// each routed mailbox message (see WireRoute); runtime state changes such
// as a turn starting or ending do not emit it on their own.
func AgentStatusEvent(agents []agent.Snapshot) Envelope {
	return Envelope{Type: TypeAgentStatus, Agents: agents}
}

// StopRequested and StopCompleted build the "stop" event's two states,
// bracketing a fleet stop.
func StopRequested() Envelope { return Envelope{Type: TypeStop, Status: "requested"} }
func StopCompleted() Envelope { return Envelope{Type: TypeStop, Status: "completed"} }

// ClientMessage is the JSON structure for client -> server WebSocket
// messages: "ping" (answered with "pong") and "catchup" (replay events
// since SinceSeqID from the ring buffer).
type ClientMessage struct {
	Action      string `json:"action"`
	SinceSeqID  int64  `json:"sinceSeqId,omitempty"`
}

// HealthStatus is the GET /healthz payload (SPEC_FULL.md "Health/readiness").
type HealthStatus struct {
	Status              string    `json:"status"`
	LedgerEntries       int       `json:"ledgerEntries"`
	RestartLedgerEntries int      `json:"restartLedgerEntries"`
	MailboxLastActivity time.Time `json:"mailboxLastActivity,omitempty"`
	RestartLastActivity time.Time `json:"restartLastActivity,omitempty"`
	ActiveConnections   int       `json:"activeConnections"`
	UptimeSeconds       float64   `json:"uptimeSeconds"`
}
