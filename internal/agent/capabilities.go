package agent

import "time"

// Status is a runtime's externally visible activity state, spec section 3
// "Agent snapshot".
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusWaiting Status = "waiting"
	StatusStopped Status = "stopped"
)

// ActivityEntry is one bounded activity-log line (spec section 3:
// "activityLog capped at 40 entries").
type ActivityEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

const activityLogCap = 40

// Snapshot is the public projection of a Runtime's state, spec section 3
// "Agent snapshot" and section 6 fleet-snapshot request.
type Snapshot struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Status         Status          `json:"status"`
	QueueSize      int             `json:"queueSize"`
	ActiveThreadID string          `json:"activeThreadId,omitempty"`
	Activity       string          `json:"activity,omitempty"`
	ActivityLog    []ActivityEntry `json:"activityLog,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// AshigaruStatusEntry is one element of an AshigaruStatusResult bucket.
type AshigaruStatusEntry struct {
	ID             string `json:"id"`
	Status         Status `json:"status"`
	QueueSize      int    `json:"queueSize"`
	ActiveThreadID string `json:"activeThreadId,omitempty"`
}

// AshigaruStatusResult is the TOOL:getAshigaruStatus result, spec section
// 4.4 step 3.c: "returns {idle:[…], busy:[…]} computed from live
// snapshots".
type AshigaruStatusResult struct {
	Idle []AshigaruStatusEntry `json:"idle"`
	Busy []AshigaruStatusEntry `json:"busy"`
}

// Capabilities is the small capability record passed into each Runtime at
// construction instead of a back-pointer to the Manager (spec section 9,
// "Cyclic references: king/shogun/karou/ashigaru objects holding direct
// references to each other" - resolved here via a two-method interface
// satisfied by the Manager).
type Capabilities interface {
	AshigaruStatus() AshigaruStatusResult
	Interrupt(to, reason string) error
}
