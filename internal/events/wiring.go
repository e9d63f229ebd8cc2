package events

import (
	"context"

	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/mailbox"
)

// WireRoute wraps a mailbox.Handler (normally agent.Manager.Route) with the
// "message" and "agent_status" transport events (spec section 6),
// broadcast to every connected client. The "message" event fires here -
// once the mailbox watcher has parsed the file, just before it is routed -
// not at submission time (see Server.handleSubmitKingMessage). The
// "agent_status" event fires after a successful route.
func WireRoute(hub *Hub, f fleet, route mailbox.Handler) mailbox.Handler {
	return func(ctx context.Context, msg history.Message) error {
		hub.Broadcast(MessageEvent(msg))
		if err := route(ctx, msg); err != nil {
			return err
		}
		hub.Broadcast(AgentStatusEvent(f.Snapshot()))
		return nil
	}
}
