// Package logging sets up the coordinator's structured logger. It follows
// the teacher's house style of using log/slog directly rather than a
// third-party logging library (no such dependency appears anywhere in
// codeready-toolchain/tarsy's non-test source).
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Options controls where and how logs are written.
type Options struct {
	// Dir is the base directory; logs are written to Dir/logs/server.log.
	// If empty, logs go to stderr only.
	Dir string
	// Level is the minimum level to emit.
	Level slog.Level
	// AlsoStderr tees log lines to stderr in addition to the log file.
	AlsoStderr bool
}

// Init configures the process-wide default slog logger as JSON lines and
// returns it along with a close function for the underlying file (if any).
func Init(opts Options) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	if opts.Dir != "" {
		logDir := filepath.Join(opts.Dir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(filepath.Join(logDir, "server.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		closeFn = f.Close
		if opts.AlsoStderr {
			writers = append(writers, os.Stderr)
		}
	} else {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: opts.Level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// ForAgent returns a logger scoped with an agentId field, matching spec
// section 7's required structured field set.
func ForAgent(agentID string) *slog.Logger {
	return slog.With("agentId", agentID)
}

// ForMessage returns a logger scoped with the triple spec section 7 asks
// every error log entry to carry.
func ForMessage(agentID, threadID, messageID string) *slog.Logger {
	return slog.With("agentId", agentID, "threadId", threadID, "messageId", messageID)
}
