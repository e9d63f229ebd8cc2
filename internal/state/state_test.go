package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndPersistThread(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)

	th, err := s.CreateThread("task", time.Now().UTC())
	require.NoError(t, err)
	require.NotContains(t, th.ID, "__")
	require.Equal(t, th.ID, s.LastActiveThreadID())

	s2, err := Open(path)
	require.NoError(t, err)
	got, ok := s2.GetThread(th.ID)
	require.True(t, ok)
	require.Equal(t, "task", got.Title)
	require.Equal(t, th.ID, s2.LastActiveThreadID())
}

func TestSessionBindingLazilyPopulated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)
	th, err := s.CreateThread("t", time.Now().UTC())
	require.NoError(t, err)

	_, ok := s.GetSession(th.ID, "shogun")
	require.False(t, ok)

	require.NoError(t, s.SetSession(th.ID, "shogun", Session{Provider: "x", ProviderThreadID: "pt-1", Initialized: true}))
	sess, ok := s.GetSession(th.ID, "shogun")
	require.True(t, ok)
	require.True(t, sess.Initialized)
	require.Equal(t, "pt-1", sess.ProviderThreadID)
}

func TestSetSessionUnknownThreadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)
	err = s.SetSession("missing", "shogun", Session{})
	require.Error(t, err)
}

func TestTouchThreadUpdatesUpdatedAtAndLastActive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)
	t1, err := s.CreateThread("a", time.Now().UTC())
	require.NoError(t, err)
	t2, err := s.CreateThread("b", time.Now().UTC())
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.TouchThread(t1.ID, later))
	got, _ := s.GetThread(t1.ID)
	require.Equal(t, later, got.UpdatedAt)
	require.Equal(t, t1.ID, s.LastActiveThreadID())
	_ = t2
}
