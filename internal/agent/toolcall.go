package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ToolCall is a single parsed TOOL: line from a provider's output text,
// spec section 4.4 step 3.b.
type ToolCall struct {
	Name string
	Args map[string]string
}

// knownTools lists the tool names ParseToolCalls recognizes. Execution
// order (spec 4.4 step 3.c: getAshigaruStatus, waitForMessage,
// interruptAgent, sendMessage) is a separate concern decided by the caller;
// this list only gates which names are tool calls at all.
var knownTools = []string{
	"getAshigaruStatus",
	"interruptAgent",
	"waitForMessage",
	"sendMessage",
}

// jsonCallPattern matches the JSON tool-call variant, spec section 4.4 step
// 3.b: `TOOL <name> {json}`.
var jsonCallPattern = regexp.MustCompile(`^TOOL\s+(\w+)\s+(\{.*\})$`)

// ParseToolCalls scans a provider turn's output text line by line for tool
// calls in either of the two forms spec section 4.4 step 3.b recognizes:
// the hand-rolled `TOOL:<name> key=value ...` grammar (bare, double-quoted,
// or single-quoted values with backslash escapes, no shell-style
// tokenizer), or the JSON variant `TOOL <name> {json}`. Lines that match
// neither form, or name an unknown tool, are plain conversational text and
// are ignored here; the caller decides what to do with output that carries
// no tool calls (auto-reply synthesis, spec 4.4 step 5).
func ParseToolCalls(output string) []ToolCall {
	var calls []ToolCall
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)

		if strings.HasPrefix(line, "TOOL:") {
			rest := line[len("TOOL:"):]

			name, argStr := rest, ""
			for i := 0; i < len(rest); i++ {
				if rest[i] == ' ' || rest[i] == '\t' {
					name = rest[:i]
					argStr = strings.TrimSpace(rest[i+1:])
					break
				}
			}

			if !isKnownTool(name) {
				continue
			}
			calls = append(calls, ToolCall{Name: name, Args: parseArgs(argStr)})
			continue
		}

		if m := jsonCallPattern.FindStringSubmatch(line); m != nil {
			name := m[1]
			if !isKnownTool(name) {
				continue
			}
			var raw map[string]any
			if err := json.Unmarshal([]byte(m[2]), &raw); err != nil {
				continue
			}
			calls = append(calls, ToolCall{Name: name, Args: stringifyArgs(raw)})
		}
	}
	return calls
}

func isKnownTool(name string) bool {
	for _, p := range knownTools {
		if p == name {
			return true
		}
	}
	return false
}

// stringifyArgs converts a decoded JSON tool-call body into the same
// map[string]string shape parseArgs produces, so downstream exec functions
// need not care which grammar a call arrived in. String values pass
// through as-is; other JSON types are rendered with their compact JSON
// encoding.
func stringifyArgs(raw map[string]any) map[string]string {
	args := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			args[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			args[k] = fmt.Sprint(v)
			continue
		}
		args[k] = string(b)
	}
	return args
}

// parseArgs parses a whitespace-separated sequence of key=value tokens.
// A value may be bare (runs until the next whitespace, no escaping), or
// wrapped in double or single quotes, in which case it runs until the
// matching unescaped quote and \\, \", \', \n are unescaped.
func parseArgs(s string) map[string]string {
	args := map[string]string{}
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		if i >= n || s[i] != '=' {
			for i < n && !isSpace(s[i]) {
				i++
			}
			continue
		}
		key := s[start:i]
		i++ // skip '='

		if i < n && (s[i] == '"' || s[i] == '\'') {
			quote := s[i]
			i++
			var val strings.Builder
			for i < n && s[i] != quote {
				if s[i] == '\\' && i+1 < n {
					i++
					switch s[i] {
					case '\\':
						val.WriteByte('\\')
					case 'n':
						val.WriteByte('\n')
					case '"':
						val.WriteByte('"')
					case '\'':
						val.WriteByte('\'')
					default:
						val.WriteByte('\\')
						val.WriteByte(s[i])
					}
				} else {
					val.WriteByte(s[i])
				}
				i++
			}
			if i < n {
				i++ // skip closing quote
			}
			args[key] = val.String()
		} else {
			start := i
			for i < n && !isSpace(s[i]) {
				i++
			}
			args[key] = s[start:i]
		}
	}
	return args
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
