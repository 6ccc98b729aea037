package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger handles leveled logging with optional file output.
// Console output goes to stdout (errors to stderr); the file sink, when
// enabled, always receives debug entries as JSON.
type Logger struct {
	Verbose bool
	mu      sync.Mutex
	console zapcore.Core
	sugar   *zap.SugaredLogger
	fields  []any
	fileLog *os.File
}

// New creates a new Logger instance
func New(verbose bool) *Logger {
	return newWithWriters(verbose, os.Stdout, os.Stderr)
}

// Nop returns a Logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), console: zapcore.NewNopCore()}
}

func newWithWriters(verbose bool, out, errOut io.Writer) *Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	enc := zapcore.NewConsoleEncoder(encCfg)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel
	})

	console := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(out), low),
		zapcore.NewCore(enc, zapcore.AddSync(errOut), high),
	)

	return &Logger{
		Verbose: verbose,
		console: console,
		sugar:   zap.New(console).Sugar(),
	}
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(f),
		zapcore.DebugLevel,
	)

	l.fileLog = f
	l.sugar = zap.New(zapcore.NewTee(l.console, fileCore)).Sugar().With(l.fields...)
	return nil
}

// With returns a child logger that attaches the given key/value pairs to
// every entry. The child shares the parent's sinks as they are at call time.
func (l *Logger) With(kv ...any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := append(append([]any{}, l.fields...), kv...)
	return &Logger{
		Verbose: l.Verbose,
		console: l.console,
		sugar:   l.sugar.With(kv...),
		fields:  fields,
	}
}

// Close flushes buffered entries and closes the log file if open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.sugar.Sync()
	if l.fileLog != nil {
		err := l.fileLog.Close()
		l.fileLog = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.current().Infof(format, args...)
}

// Debug logs detailed messages; shown on the console only in verbose mode
// but always written to the file sink.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.current().Debugf(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.current().Warnf(format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...interface{}) {
	l.current().Errorf(format, args...)
}

func (l *Logger) current() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}
