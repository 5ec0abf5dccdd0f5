package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the logger used when a context carries no scoped one.
	//nolint:gochecknoglobals // One process-wide logger keeps the supervisor phases consistent.
	global *zap.SugaredLogger
	// defaultLevel is the threshold applied to the global logger; SetLevel moves it.
	//nolint:gochecknoglobals // The level must be adjustable after the CLI parses its flags.
	defaultLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() { //nolint:gochecknoinits // Logging has to work before any command runs.
	SetLogger(New(defaultLevel))
}

// New builds a sugared logger writing human-readable console lines to
// stderr. Stdout stays untouched: it belongs to the operator prompt and
// the server's own output. A nil level falls back to the adjustable
// default (info).
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	core := zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), level)

	return zap.New(core, options...).Sugar()
}

// consoleEncoder renders one line per entry with the component name
// (see WithName) between the level and the message.
func consoleEncoder() zapcore.Encoder {
	//nolint:exhaustruct // Unset encoder knobs keep their zap defaults.
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "name",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	})
}

// ParseLogLevel maps a level name to its zap level, ignoring case and
// surrounding whitespace. The set matches what the --log-level flag
// accepts; anything else reports false.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Level returns the global logger's current threshold.
func Level() zapcore.Level {
	return defaultLevel.Level()
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger replaces the global logger. Not safe for concurrent use;
// call it during startup only.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// SetLevel moves the global logger's threshold.
func SetLevel(level zapcore.Level) {
	//nolint:errcheck // Sync on stderr has nothing useful to report.
	defer global.Sync()

	defaultLevel.SetLevel(level)
}

// Debug logs at debug level through the context's logger.
func Debug(ctx context.Context, args ...any) {
	FromContext(ctx).Debug(args...)
}

// DebugKV logs a message with key-value pairs at debug level through the
// context's logger.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info logs at info level through the context's logger.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// InfoKV logs a message with key-value pairs at info level through the
// context's logger.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// Warn logs at warn level through the context's logger.
func Warn(ctx context.Context, args ...any) {
	FromContext(ctx).Warn(args...)
}

// WarnKV logs a message with key-value pairs at warn level through the
// context's logger.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// Error logs at error level through the context's logger.
func Error(ctx context.Context, args ...any) {
	FromContext(ctx).Error(args...)
}

// ErrorKV logs a message with key-value pairs at error level through the
// context's logger.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}

// Fatal logs at fatal level through the context's logger, then exits.
func Fatal(ctx context.Context, args ...any) {
	FromContext(ctx).Fatal(args...)
}

// FatalKV logs a message with key-value pairs at fatal level through the
// context's logger, then exits.
func FatalKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Fatalw(message, kvs...)
}
