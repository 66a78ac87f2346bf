package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLogLevel parses a log level string. Unknown names fall back to
// error; "off" and "none" disable logging.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return zerolog.Disabled
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Logger is a configured zerolog logger and the file it may write to.
type Logger struct {
	zerolog.Logger

	file *os.File
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the log file path, or "" without one.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// NewLogger builds a logger writing to console, colored or JSON per cfg,
// and to cfg.File as JSON when set.
func NewLogger(cfg LoggingConfig, console io.Writer) (*Logger, error) {
	level := ParseLogLevel(cfg.Level)
	if level == zerolog.Disabled {
		return &Logger{Logger: zerolog.Nop()}, nil
	}

	var out io.Writer = console
	if !cfg.JSON && console != nil {
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	}

	l := &Logger{}
	if cfg.File != "" {
		path := ExpandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
		// #nosec G304 -- log file path is from validated config
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		l.file = f
		if console == nil {
			out = f
		} else {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}
	if out == nil {
		return &Logger{Logger: zerolog.Nop()}, nil
	}

	l.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l, nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}
