// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/chartwise/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const ansiReset = "\x1b[0m"

var ansiColors = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the process-wide logger. Only the first call has any effect.
// Console output goes to consoleWriter; when cfg.LogFile is set a rotating JSON
// file sink is teed alongside it.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg), consoleWriter, level)}
		if cfg.LogFile != "" {
			sink := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(newEncoder(config.LoggerConfig{Format: "json"}), sink, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), opts...)
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes the global logger on stderr, keeping stdout free
// for command output.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest clears the global logger so the next Initialize takes effect.
// Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format != "console" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}

	ec.EncodeLevel = colorLevelEncoder(cfg.Colors)
	// Component names get a trailing dot: "chartwise.relay. message".
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

func colorLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := strings.ToUpper(level.String())
		code, ok := ansiColors[byLevel[level]]
		if !ok {
			enc.AppendString(name)
			return
		}
		enc.AppendString(code + name + ansiReset)
	}
}

// GetLogger returns the global logger, or a development logger when
// Initialize has not run yet.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !benignSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func benignSyncError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"sync /dev/stdout", "sync /dev/stderr", "invalid argument", "inappropriate ioctl", "operation not supported"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
