package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStemTokenCounts(t *testing.T) {
	s := ParseStem("t1__2026-08-01T10-00-00-000Z-ab12cd__hello-world")
	require.Equal(t, "t1", s.ThreadID)
	require.Equal(t, "hello-world", s.Title)

	s2 := ParseStem("t1__hello")
	require.Equal(t, "t1", s2.ThreadID)
	require.Equal(t, "hello", s2.Title)

	s3 := ParseStem("justtitle")
	require.Equal(t, "", s3.ThreadID)
	require.Equal(t, "justtitle", s3.Title)
}

func TestParseStemJoinsExtraDelimiters(t *testing.T) {
	s := ParseStem("t1__ts-rand__part-one__part-two")
	require.Equal(t, "t1", s.ThreadID)
	require.Equal(t, "part-one__part-two", s.Title)
}

func TestBuildStemThenParseStemRoundTrips(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	stem := BuildStem("thread-abc", "My Task!", now)
	parsed := ParseStem(stem)
	require.Equal(t, "thread-abc", parsed.ThreadID)
	require.Equal(t, "my-task", parsed.Title)
}

func TestSlugifyFallback(t *testing.T) {
	require.Equal(t, "message", slugify("!!!"))
	require.Equal(t, "message", slugify(""))
	require.Equal(t, "hello-world", slugify("Hello, World!!"))
}

func TestBuildStemNoDoubleUnderscoreInThreadID(t *testing.T) {
	// Documents the invariant from spec section 3: thread ids must not
	// contain "__". BuildStem does not enforce it (callers, i.e. the state
	// store's UUID generation, guarantee it) but parsing must still be
	// stable for well-formed ids.
	now := time.Now()
	stem := BuildStem("abc-123", "t", now)
	parsed := ParseStem(stem)
	require.Equal(t, "abc-123", parsed.ThreadID)
}
