package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendIsIdempotentPerMessageID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	m := Message{ID: "m1", ThreadID: "t1", From: "king", To: "shogun", Title: "task", Body: "go", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Append(m))
	require.NoError(t, s.Append(m)) // duplicate invocation must not double-append

	msgs, err := s.List("t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
}

func TestAppendIdempotenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	m := Message{ID: "m1", ThreadID: "t1", Body: "x", CreatedAt: time.Now().UTC()}
	require.NoError(t, s1.Append(m))

	s2, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s2.Append(m))

	msgs, err := s2.List("t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestListOrderingAndFindByID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Message{ID: id, ThreadID: "t1", Body: string(rune('a' + i)), CreatedAt: time.Now().UTC()}))
	}
	msgs, err := s.List("t1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	found, ok, err := s.FindByID("t1", "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", found.ID)

	_, ok, err = s.FindByID("t1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListUnknownThreadReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	msgs, err := s.List("nope")
	require.NoError(t, err)
	require.Empty(t, msgs)
}
