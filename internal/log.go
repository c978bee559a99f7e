package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// LogFileName is where the TUI mode writes its log, since the terminal is taken by the UI.
	LogFileName = "aerosync.log"
)

// LogParams contains the parameters for logging console output and errors.
// These will vary depending on whether aerosync runs in ticker or tui mode.
// # Ticker mode
// - console output goes to stdout
// - error logs go to stderr
// # TUI mode
// - console output goes to `dev/null` or os-dependent equivalents
// - error logs go to log file `aerosync.log`
// .
type LogParams struct {
	ConsoleOut io.Writer
	ErrorOut   io.Writer
}

// TickerLogParams returns the log sinks for the ticker app.
func TickerLogParams() LogParams {
	return LogParams{
		ConsoleOut: os.Stdout,
		ErrorOut:   os.Stderr,
	}
}

// TuiLogParams opens the log file and returns the log sinks for the tui app together with a
// function that closes the log file.
func TuiLogParams() (LogParams, func() error, error) {
	file, err := os.OpenFile(LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return LogParams{}, nil, fmt.Errorf("TuiLogParams: failed to open log file: %w", err)
	}

	return LogParams{
		ConsoleOut: io.Discard,
		ErrorOut:   file,
	}, file.Close, nil
}

// NewLogger creates the structured logger that all components share.
// Unknown levels fall back to info.
func NewLogger(params LogParams, level string) *slog.Logger {
	out := params.ErrorOut
	if out == nil {
		out = os.Stderr
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
