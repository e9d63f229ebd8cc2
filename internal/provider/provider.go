// Package provider holds the coordinator's pluggable provider seam. Spec
// section 4.3 treats the provider as an external system: the runtime only
// depends on agent.Provider's four-method interface, never a concrete SDK.
// This package supplies the one concrete implementation this repository
// ships - an echo provider useful for local smoke-testing the mailbox,
// runtime, and event plumbing without a real model behind it - and the
// selection function cmd/shogund uses to pick a provider by name from
// config.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/shogun/internal/agent"
)

// Echo is a minimal agent.Provider that never calls a model: sendMessage
// replies with a fixed acknowledgement, so a turn always completes with no
// tool calls. It exists to let cmd/shogund boot and exercise every other
// component end to end without a real LLM backend configured.
type Echo struct {
	mu      sync.Mutex
	threads map[string]bool
}

// New returns the provider named by name. "echo", "default" (the config
// default) and the empty string select Echo; any other name is an error, since this repository does not
// bundle a real model SDK - a real deployment wires its own agent.Provider
// here and would add a case to this switch.
func New(name string) (agent.Provider, error) {
	switch name {
	case "", "echo", "default":
		return NewEcho(), nil
	default:
		return nil, fmt.Errorf("provider: unknown provider %q (only \"echo\" ships with this repository)", name)
	}
}

// NewEcho constructs an Echo provider.
func NewEcho() *Echo {
	return &Echo{threads: make(map[string]bool)}
}

func (e *Echo) CreateThread(_ context.Context, _ agent.CreateThreadParams) (agent.ThreadHandle, error) {
	id := uuid.NewString()
	e.mu.Lock()
	e.threads[id] = true
	e.mu.Unlock()
	return agent.ThreadHandle{ID: id}, nil
}

func (e *Echo) ResumeThread(_ context.Context, id string) (agent.ThreadHandle, error) {
	e.mu.Lock()
	e.threads[id] = true
	e.mu.Unlock()
	return agent.ThreadHandle{ID: id}, nil
}

func (e *Echo) SendMessage(ctx context.Context, params agent.SendMessageParams) (agent.SendMessageResult, error) {
	if params.OnProgress != nil {
		params.OnProgress(agent.ProgressEvent{Kind: "ack", Text: "received"})
	}
	select {
	case <-ctx.Done():
		return agent.SendMessageResult{}, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return agent.SendMessageResult{OutputText: "acknowledged"}, nil
}

func (e *Echo) Cancel(_ context.Context, _ string) error {
	return nil
}
