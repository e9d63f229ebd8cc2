// Package prompt composes the system prompt handed to a provider thread on
// creation (spec section 4.3/4.4 "ensureSession", section 9 "Prompt
// composition as pluggable text"). Kept as a pure function of
// {role, agentId, baseDir, historyDir, ashigaruIds, profiles}: the runtime treats its
// output as opaque text, matching the teacher's stateless
// PromptBuilder design (pkg/agent/prompt/builder.go).
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/shogun/internal/authz"
)

// AgentProfile is additional per-agent configuration folded into the
// prompt (config surface, spec section 6: "ashigaruProfiles").
type AgentProfile struct {
	AgentID     string
	DisplayName string
	Focus       string
}

// Params bundles the pure inputs to Compose.
type Params struct {
	Role        authz.Role
	AgentID     string
	BaseDir     string
	HistoryDir  string
	AshigaruIDs []string
	Profiles    []AgentProfile
}

// Compose returns the system prompt text for an agent's first turn in a
// thread. It is a pure function: the same Params always produce the same
// string.
func Compose(p Params) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a %s in a hierarchical multi-agent chain (king -> shogun -> karou -> ashigaru).\n\n", p.AgentID, p.Role)

	fmt.Fprintf(&b, "Working directory: %s\n", p.BaseDir)
	fmt.Fprintf(&b, "History directory: %s\n\n", p.HistoryDir)

	allowed := authz.AllowedRecipients(p.Role, p.AgentID, p.AshigaruIDs)
	recipients := make([]string, 0, len(allowed))
	for r := range allowed {
		recipients = append(recipients, r)
	}
	sort.Strings(recipients)
	fmt.Fprintf(&b, "You may address the following recipients with TOOL:sendMessage: %s\n\n", strings.Join(recipients, ", "))

	switch p.Role {
	case authz.RoleKarou:
		b.WriteString("You may call TOOL:getAshigaruStatus to see idle/busy ashigaru before delegating.\n")
		fallthrough
	case authz.RoleShogun:
		b.WriteString("You may call TOOL:waitForMessage to suspend your turn until a reply arrives.\n")
		b.WriteString("You may call TOOL:interruptAgent on your direct subordinates.\n")
	}
	b.WriteString("\n")

	if profile := findProfile(p.Profiles, p.AgentID); profile != nil {
		if profile.DisplayName != "" {
			fmt.Fprintf(&b, "Display name: %s\n", profile.DisplayName)
		}
		if profile.Focus != "" {
			fmt.Fprintf(&b, "Focus: %s\n", profile.Focus)
		}
	}

	b.WriteString("\nRespond with TOOL: lines to call tools, or plain text to reply to your default superior.\n")

	return b.String()
}

// ACKRequest is appended to the initial system prompt when establishing a
// new provider thread (spec section 4.4 "ensureSession": `createThread`
// seeds `initialInput = systemPrompt + ACK-request`).
const ACKRequest = "\n\nReply with a single short acknowledgement once you have read the above."

func findProfile(profiles []AgentProfile, agentID string) *AgentProfile {
	for i := range profiles {
		if profiles[i].AgentID == agentID {
			return &profiles[i]
		}
	}
	return nil
}
