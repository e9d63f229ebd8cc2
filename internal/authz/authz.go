// Package authz implements the pure authorization function from spec
// section 4.6: which recipients each role may address, plus the stricter
// direct-subordinate check used for interrupt authorization.
package authz

import "strings"

// Role is one of the four non-human-endpoint-agnostic roles in the
// hierarchy. "king" is a human endpoint (spec section 3) and is never an
// agent runtime, but it does appear as a recipient/sender in authorization
// checks, so it is represented here too.
type Role string

const (
	RoleKing    Role = "king"
	RoleShogun  Role = "shogun"
	RoleKarou   Role = "karou"
	RoleAshigaru Role = "ashigaru"
)

// AllowedRecipients returns the set of agent ids that an agent with the
// given role and id may address via sendMessage, per spec section 4.6:
//
//	shogun  -> {king, karou}
//	karou   -> {shogun} ∪ ashigaruIds
//	ashigaruN -> {karou} ∪ (ashigaruIds \ {self})
func AllowedRecipients(role Role, agentID string, ashigaruIDs []string) map[string]bool {
	out := make(map[string]bool)
	switch role {
	case RoleShogun:
		out[string(RoleKing)] = true
		out[string(RoleKarou)] = true
	case RoleKarou:
		out[string(RoleShogun)] = true
		for _, id := range ashigaruIDs {
			out[id] = true
		}
	case RoleAshigaru:
		out[string(RoleKarou)] = true
		for _, id := range ashigaruIDs {
			if id != agentID {
				out[id] = true
			}
		}
	}
	return out
}

// IsAllowed reports whether role/agentID may address recipient.
func IsAllowed(role Role, agentID string, ashigaruIDs []string, recipient string) bool {
	return AllowedRecipients(role, agentID, ashigaruIDs)[recipient]
}

// IsDirectSubordinate reports whether recipient is a direct subordinate of
// an agent with the given role/id, per spec section 4.6: interrupt
// authorization is stricter than sendMessage authorization and only allows
// shogun->karou or karou->ashigaruN.
func IsDirectSubordinate(role Role, agentID string, ashigaruIDs []string, recipient string) bool {
	switch role {
	case RoleShogun:
		return recipient == string(RoleKarou)
	case RoleKarou:
		for _, id := range ashigaruIDs {
			if id == recipient {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RoleOf classifies an agent id into a Role, per spec section 3's tagged
// union: king, shogun, karou, ashigaru{n}.
func RoleOf(agentID string) Role {
	switch {
	case agentID == string(RoleKing):
		return RoleKing
	case agentID == string(RoleShogun):
		return RoleShogun
	case agentID == string(RoleKarou):
		return RoleKarou
	case strings.HasPrefix(agentID, string(RoleAshigaru)):
		return RoleAshigaru
	default:
		return ""
	}
}

// DefaultSuperior returns the role's default superior, used to build the
// auto-reply recipient in spec section 4.4 step 3.e: shogun->king,
// karou->shogun, ashigaru->karou.
func DefaultSuperior(role Role) string {
	switch role {
	case RoleShogun:
		return string(RoleKing)
	case RoleKarou:
		return string(RoleShogun)
	case RoleAshigaru:
		return string(RoleKarou)
	default:
		return ""
	}
}
