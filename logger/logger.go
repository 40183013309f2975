// Package logger provides the structured logging interface used across
// sensorstream, backed by zerolog. File output is rotated by lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger writes leveled, structured log entries. Components receive a Logger
// and derive scoped children with With.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a child Logger that adds fields to every entry. The
	// receiver is left unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger carrying the given fields
	With(fields ...Field) Logger

	// Close releases any file held by the logger. It is safe to call more
	// than once and on derived loggers, which never own the file.
	//
	// Returns:
	//   - An error if closing the underlying file fails
	Close() error
}

type zerologLogger struct {
	logger zerolog.Logger
	file   io.Closer
}

// NewZerologLogger wraps an existing zerolog.Logger, tagging every entry with
// the service name and a timestamp and filtering below level.
//
// Parameters:
//   - l: The zerolog.Logger to write through
//   - serviceName: Added as the "service" field on every entry
//   - level: Minimum level to emit
//
// Returns:
//   - A Logger that writes through l
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewConsoleLogger returns a human-readable Logger writing to stdout.
func NewConsoleLogger(serviceName string, level zerolog.Level) Logger {
	return NewZerologLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}), serviceName, level)
}

// NewFileLogger creates a Logger that writes JSON entries to stdout and to
// {dir}/{serviceName}.log. The file is rotated at 100 MB and old files are
// compressed and kept for 14 days.
//
// Parameters:
//   - serviceName: Used for the "service" field and the file name
//   - dir: Directory for log files; created if missing
//   - level: Minimum level to emit
//
// Returns:
//   - The Logger, or an error if dir cannot be created
func NewFileLogger(serviceName string, dir string, level zerolog.Level) (Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename: filepath.Join(dir, serviceName+".log"),
		MaxSize:  100,
		MaxAge:   14,
		Compress: true,
	}

	multi := io.MultiWriter(os.Stdout, file)
	return &zerologLogger{
		logger: zerolog.New(multi).With().Str("service", serviceName).Timestamp().Logger().Level(level),
		file:   file,
	}, nil
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a
// zerolog.Level. An empty name means info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}

	return level, nil
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

// Close implements Logger.
func (z *zerologLogger) Close() error {
	if z.file == nil {
		return nil
	}

	err := z.file.Close()
	z.file = nil
	return err
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
