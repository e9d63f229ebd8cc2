package wait

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/shogun/internal/history"
)

func TestPutGetAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waits.json")
	s, err := Open(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	rec := Record{Status: StatusPending, ThreadID: "t1", AgentID: "karou", TimeoutMs: 5000, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Put("t1", "karou", rec))

	got, ok := s.Get("t1", "karou")
	require.True(t, ok)
	require.Equal(t, StatusPending, got.Status)

	require.NoError(t, s.Clear("t1", "karou"))
	_, ok = s.Get("t1", "karou")
	require.False(t, ok)
}

func TestMarkReceivedAndTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waits.json")
	s, err := Open(path)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.Put("t1", "karou", Record{Status: StatusPending, ThreadID: "t1", AgentID: "karou", CreatedAt: now, UpdatedAt: now}))

	msg := history.Message{ID: "m1", ThreadID: "t1", Body: "done"}
	require.NoError(t, s.MarkReceived("t1", "karou", msg, now.Add(time.Second)))
	got, _ := s.Get("t1", "karou")
	require.Equal(t, StatusReceived, got.Status)
	require.NotNil(t, got.ReceivedMessage)
	require.Equal(t, "done", got.ReceivedMessage.Body)

	require.NoError(t, s.Put("t1", "ashigaru1", Record{Status: StatusPending, ThreadID: "t1", AgentID: "ashigaru1", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.MarkTimeout("t1", "ashigaru1", now.Add(2*time.Second)))
	got2, _ := s.Get("t1", "ashigaru1")
	require.Equal(t, StatusTimeout, got2.Status)
}

func TestAllForAgentSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waits.json")
	s1, err := Open(path)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s1.Put("t1", "karou", Record{Status: StatusPending, ThreadID: "t1", AgentID: "karou", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s1.Put("t2", "karou", Record{Status: StatusPending, ThreadID: "t2", AgentID: "karou", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s1.Put("t1", "shogun", Record{Status: StatusPending, ThreadID: "t1", AgentID: "shogun", CreatedAt: now, UpdatedAt: now}))

	s2, err := Open(path)
	require.NoError(t, err)
	recs := s2.AllForAgent("karou")
	require.Len(t, recs, 2)
}
