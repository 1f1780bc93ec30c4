package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.Logger
	sugar      *zap.SugaredLogger
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerOnce sync.Once
)

// initLogger builds the global logger writing console-encoded lines to stderr.
func initLogger() {
	loggerOnce.Do(func() {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			atomLevel,
		)
		logger = zap.New(core)
		sugar = logger.Sugar()
	})
}

// ParseLevel maps a config string to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atomLevel.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomLevel.SetLevel(zapcore.InfoLevel)
	}
}

// Logger returns the underlying zap logger, e.g. for HTTP middleware.
func Logger() *zap.Logger {
	initLogger()
	return logger
}

func Debug(msg string, kv ...any) {
	initLogger()
	sugar.Debugw(msg, evenKVs(kv)...)
}

func Info(msg string, kv ...any) {
	initLogger()
	sugar.Infow(msg, evenKVs(kv)...)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, evenKVs(kv)...)
	sugar.Errorw(msg, extended...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// evenKVs drops a trailing key without value so zap does not report a
// malformed pair.
func evenKVs(kv []any) []any {
	if len(kv)%2 == 1 {
		return kv[:len(kv)-1]
	}
	return kv
}
