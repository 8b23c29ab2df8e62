// Package logging provides project loggers backed by zap.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the logging interface handed to every component.
type Logger = *zap.SugaredLogger

// NewLogger returns a production logger named name.
func NewLogger(name string) Logger {
	return newLogger(name, zap.InfoLevel)
}

// NewDebugLogger returns a logger with debug output enabled.
func NewDebugLogger(name string) Logger {
	return newLogger(name, zap.DebugLevel)
}

func newLogger(name string, level zapcore.Level) Logger {
	logger, err := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar().Named(name)
}

// NewTestLogger returns a logger that routes through t.
func NewTestLogger(t testing.TB) Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller())).Sugar()
}
