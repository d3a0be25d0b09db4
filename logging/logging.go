// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	// Debug lowers the level to debug and adds caller info and error stack traces
	Debug bool

	// File, when set, also writes JSON lines to a rotated file
	File string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Console defaults to stderr; stdout belongs to the MCP stdio transport
	Console io.Writer
}

// DefaultConfig returns info-level console logging.
func DefaultConfig() Config {
	return Config{
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New returns a logger and a function that flushes and closes its outputs.
func New(cfg Config) (*zap.Logger, func()) {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig()),
			zapcore.AddSync(console),
			level,
		),
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}

	// Error-level stack traces only in debug mode
	opts := []zap.Option{zap.AddStacktrace(zapcore.DPanicLevel)}
	if cfg.Debug {
		opts = []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel), zap.AddCaller()}
	}

	logger := zap.New(zapcore.NewTee(cores...), opts...)
	return logger, func() {
		logger.Sync()
		if rotator != nil {
			rotator.Close()
		}
	}
}
