package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global structured logger. Packages log through the sugared
// helpers below or directly via Log for typed fields.
var Log *zap.Logger

var sugar *zap.SugaredLogger

// Init initializes the global logger at Info level, honoring the
// PAWTALK_LOG_LEVEL and PAWTALK_LOG_SINK environment variables.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). If level is empty it falls
// back to PAWTALK_LOG_LEVEL.
func InitWithLevel(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("PAWTALK_LOG_LEVEL")))
	}
	var zl zapcore.Level
	switch lvl {
	case "debug":
		zl = zapcore.DebugLevel
	case "warn", "warning":
		zl = zapcore.WarnLevel
	case "error":
		zl = zapcore.ErrorLevel
	default:
		zl = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := zapcore.Lock(os.Stdout)
	// Allow redirecting logs to a file, e.g. PAWTALK_LOG_SINK=file:/var/log/pawtalk.log
	if s := os.Getenv("PAWTALK_LOG_SINK"); strings.HasPrefix(s, "file:") {
		path := strings.TrimPrefix(s, "file:")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640); err == nil {
			sink = zapcore.Lock(f)
		}
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, zl)
	Log = zap.New(core)
	sugar = Log.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func ensure() {
	if Log == nil {
		Init()
	}
}

// Debug logs at debug level with alternating key/value args.
func Debug(msg string, args ...any) {
	ensure()
	sugar.Debugw(msg, args...)
}

// Info logs at info level with alternating key/value args.
func Info(msg string, args ...any) {
	ensure()
	sugar.Infow(msg, args...)
}

// Warn logs at warn level with alternating key/value args.
func Warn(msg string, args ...any) {
	ensure()
	sugar.Warnw(msg, args...)
}

// Error logs at error level with alternating key/value args.
func Error(msg string, args ...any) {
	ensure()
	sugar.Errorw(msg, args...)
}
