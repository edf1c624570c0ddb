package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"ohnitiel/upsql/internal/config"
)

// Setup installs the default logger: a console handler and, when
// configured, a file handler with source locations. The returned closer
// releases the log file.
func Setup(cfg config.LoggerConfigs) (io.Closer, error) {
	var handlers []slog.Handler

	console := io.Writer(os.Stderr)
	if cfg.ConsoleOutput == "stdout" {
		console = os.Stdout
	}

	consoleOpts := &slog.HandlerOptions{Level: ParseLevel(cfg.ConsoleLevel)}
	handlers = append(handlers, slog.NewTextHandler(console, consoleOpts))

	var closer io.Closer = nopCloser{}
	if cfg.FileOutput != "" {
		logFile, err := os.OpenFile(cfg.FileOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		closer = logFile

		fileOpts := &slog.HandlerOptions{
			Level: ParseLevel(cfg.FileLevel), AddSource: true,
		}

		handlers = append(handlers, slog.NewTextHandler(logFile, fileOpts))
	}

	multi := NewMultiHandler(handlers...)

	slog.SetDefault(slog.New(multi))

	return closer, nil
}

// ParseLevel maps a configured level name onto slog levels. Unknown names
// mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
