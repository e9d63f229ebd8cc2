// Package agent implements the agent runtime (component H) and agent
// manager (component I) from spec sections 4.4 and 4.5, on top of the
// provider interface from spec section 4.3.
package agent

import "context"

// CreateThreadParams is the input to Provider.CreateThread (spec 4.3).
type CreateThreadParams struct {
	WorkingDirectory string
	InitialInput     string
}

// ThreadHandle is the provider-side handle returned by CreateThread and
// ResumeThread.
type ThreadHandle struct {
	ID string
}

// ProgressEvent is best-effort telemetry delivered during a SendMessage
// call (spec 4.3: "onProgress is best-effort telemetry").
type ProgressEvent struct {
	Kind string
	Text string
}

// SendMessageParams is the input to Provider.SendMessage.
type SendMessageParams struct {
	ThreadID   string
	Input      string
	OnProgress func(ProgressEvent)
}

// SendMessageResult is the provider's synchronous turn result. Raw is never
// interpreted by the runtime (spec 4.3: "outputText is the sole response
// surface").
type SendMessageResult struct {
	OutputText string
	Raw        any
}

// Provider is the capability set the runtime consumes from an external LLM
// provider, spec section 4.3. Cancellation is expressed the idiomatic Go
// way: callers cancel the context passed to SendMessage rather than a
// separate cancelToken value; Provider implementations MUST abort the
// in-flight call when ctx is done.
type Provider interface {
	CreateThread(ctx context.Context, params CreateThreadParams) (ThreadHandle, error)
	ResumeThread(ctx context.Context, id string) (ThreadHandle, error)
	SendMessage(ctx context.Context, params SendMessageParams) (SendMessageResult, error)
	Cancel(ctx context.Context, threadID string) error
}
