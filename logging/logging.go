// Package logging exposes the process-wide zap logger, with log levels
// and optional size-based rotation of a log file.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LevelDebug sets the log level to debug
	LevelDebug = "debug"

	// LevelInfo sets the log level to info
	LevelInfo = "info"

	// LevelWarn sets the log level to warn
	LevelWarn = "warn"

	// LevelNone disables logging entirely
	LevelNone = "none"
)

// Config describes where and how verbosely to log. The zero value logs
// JSON at info level to stderr.
type Config struct {
	// Level is one of debug, info, warn, error, or none.
	Level string

	// File, when set, additionally writes log entries to this path with
	// size-based rotation.
	File string

	// MaxSizeMB is the size a log file may reach before rotation.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep.
	MaxBackups int

	// MaxAgeDays is how long to keep rotated files.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// New returns a zap logger per the given config.
func New(cfg Config) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = LevelInfo
	}
	if level == LevelNone {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		syncers = append(syncers, zapcore.AddSync(rotator))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}

// MustNew returns a zap logger per the given config or panics.
func MustNew(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}
