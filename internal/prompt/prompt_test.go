package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/shogun/internal/authz"
)

func TestComposeIsPureAndDeterministic(t *testing.T) {
	p := Params{
		Role:        authz.RoleKarou,
		AgentID:     "karou",
		BaseDir:     "/base",
		HistoryDir:  "/base/history",
		AshigaruIDs: []string{"ashigaru1", "ashigaru2"},
	}
	out1 := Compose(p)
	out2 := Compose(p)
	require.Equal(t, out1, out2)
	require.Contains(t, out1, "shogun")
	require.Contains(t, out1, "ashigaru1")
	require.Contains(t, out1, "getAshigaruStatus")
}

func TestComposeIncludesProfile(t *testing.T) {
	p := Params{
		Role:    authz.RoleAshigaru,
		AgentID: "ashigaru1",
		Profiles: []AgentProfile{
			{AgentID: "ashigaru1", DisplayName: "Scout", Focus: "reconnaissance"},
		},
	}
	out := Compose(p)
	require.Contains(t, out, "Scout")
	require.Contains(t, out, "reconnaissance")
}

func TestShogunDoesNotGetAshigaruStatusTool(t *testing.T) {
	out := Compose(Params{Role: authz.RoleShogun, AgentID: "shogun"})
	require.NotContains(t, out, "getAshigaruStatus")
	require.Contains(t, out, "waitForMessage")
}
