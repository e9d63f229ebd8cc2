package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseToolCallsBareAndQuotedValues(t *testing.T) {
	out := "Some preamble text.\n" +
		`TOOL:sendMessage to=karou title="status update" body='line1\nline2'` + "\n" +
		"More text after."
	calls := ParseToolCalls(out)
	require.Len(t, calls, 1)
	require.Equal(t, "sendMessage", calls[0].Name)
	require.Equal(t, "karou", calls[0].Args["to"])
	require.Equal(t, "status update", calls[0].Args["title"])
	require.Equal(t, "line1\nline2", calls[0].Args["body"])
}

func TestParseToolCallsMultipleInOrder(t *testing.T) {
	out := "TOOL:getAshigaruStatus\n" +
		"TOOL:waitForMessage timeoutMs=5000\n"
	calls := ParseToolCalls(out)
	require.Len(t, calls, 2)
	require.Equal(t, "getAshigaruStatus", calls[0].Name)
	require.Equal(t, "waitForMessage", calls[1].Name)
	require.Equal(t, "5000", calls[1].Args["timeoutMs"])
}

func TestParseToolCallsIgnoresUnknownToolNames(t *testing.T) {
	calls := ParseToolCalls("TOOL:doSomethingElse foo=bar\nplain text\n")
	require.Empty(t, calls)
}

func TestParseToolCallsEscapedQuoteWithinQuoted(t *testing.T) {
	out := `TOOL:sendMessage to=shogun body="she said \"hi\""`
	calls := ParseToolCalls(out)
	require.Len(t, calls, 1)
	require.Equal(t, `she said "hi"`, calls[0].Args["body"])
}

func TestParseToolCallsNoToolLinesReturnsEmpty(t *testing.T) {
	calls := ParseToolCalls("Just a plain reply with no tool calls.")
	require.Empty(t, calls)
}

func TestParseToolCallsJSONVariant(t *testing.T) {
	out := `TOOL sendMessage {"to": "karou", "title": "status", "body": "scouted"}`
	calls := ParseToolCalls(out)
	require.Len(t, calls, 1)
	require.Equal(t, "sendMessage", calls[0].Name)
	require.Equal(t, "karou", calls[0].Args["to"])
	require.Equal(t, "status", calls[0].Args["title"])
	require.Equal(t, "scouted", calls[0].Args["body"])
}

func TestParseToolCallsJSONVariantUnknownToolIgnored(t *testing.T) {
	calls := ParseToolCalls(`TOOL doSomethingElse {"foo": "bar"}`)
	require.Empty(t, calls)
}

func TestParseToolCallsJSONVariantNonStringValueStringified(t *testing.T) {
	calls := ParseToolCalls(`TOOL waitForMessage {"timeoutMs": 5000}`)
	require.Len(t, calls, 1)
	require.Equal(t, "5000", calls[0].Args["timeoutMs"])
}
