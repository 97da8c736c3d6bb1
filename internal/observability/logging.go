// Package observability wires structured logging for the CLI and server.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide structured logger. It defaults to a no-op
// logger so library code can log unconditionally; InitCLILogger replaces
// it during CLI startup.
var CLILogger = zap.NewNop()

// InitCLILogger builds the process logger.
//
// level is one of debug, info, warn, error. profile selects the encoding:
// "structured" emits JSON, "console" emits human-readable output. Logs go
// to stderr so JSONL event streams on stdout stay machine-parseable.
func InitCLILogger(level, profile string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch profile {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "", "structured":
		cfg = zap.NewProductionConfig()
	default:
		return fmt.Errorf("invalid log profile %q", profile)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	CLILogger = logger
	return nil
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
