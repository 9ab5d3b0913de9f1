package reliablestore

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// LogOptions configures the logger ConfigureLogging installs. The zero value
// logs at Info to stdout.
type LogOptions struct {
	// Level is the minimum level that gets emitted. Nil means Info.
	Level *slog.Level
	// Output defaults to os.Stdout when nil.
	Output *os.File
}

// parseLogLevel maps the RELIABLESTORE_LOG_LEVEL environment variable onto a
// slog.Level, defaulting to Info for unset or unrecognized values.
func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigureLogging sets up the global default logger with a TextHandler per
// opts. Applications that want ReliableStore's structured
// transaction/resource events (create, commit, rollback, timeout, savepoint)
// to land on their own handler should call slog.SetDefault themselves
// instead; this helper only exists for the common case of running
// ReliableStore standalone.
func ConfigureLogging(opts LogOptions) {
	if opts.Level != nil {
		logLevel.Set(*opts.Level)
	} else {
		logLevel.Set(slog.LevelInfo)
	}

	out := os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// ConfigureLoggingFromEnv is ConfigureLogging with the level taken from the
// RELIABLESTORE_LOG_LEVEL environment variable, for callers that don't wire
// their own config plumbing through to LogOptions.
func ConfigureLoggingFromEnv() {
	level := parseLogLevel(os.Getenv("RELIABLESTORE_LOG_LEVEL"))
	ConfigureLogging(LogOptions{Level: &level})
}

// SetLogLevel sets the logging level used by the logger ConfigureLogging installs.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// logEvent emits one of the structured observability events required by §6:
// transaction create/commit/rollback/timeout, per-resource
// prepare/commit/rollback, and savepoint create/rollback/discard.
func logEvent(event string, txID UUID, resourceID string, state State, dur int64, err error) {
	args := []any{
		"event", event,
		"tx_id", txID.String(),
		"state", state.String(),
	}
	if resourceID != "" {
		args = append(args, "resource_id", resourceID)
	}
	if dur > 0 {
		args = append(args, "duration_ms", dur)
	}
	if err != nil {
		args = append(args, "error", err.Error())
		slog.Warn("reliablestore", args...)
		return
	}
	slog.Debug("reliablestore", args...)
}
