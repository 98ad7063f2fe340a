package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction. Zero value logs Info+ to stderr.
type Options struct {
	Level      string // "debug", "info", "warn", "error"; default info
	File       string // optional log file; rotation handled by lumberjack
	MaxSizeMB  int    // rotate after this many MB; default 100
	MaxBackups int    // rotated files to keep; 0 = keep all
	MaxAgeDays int    // days to keep rotated files; 0 = forever
	Stdout     bool   // also write to stderr when File is set
}

// New builds a zap logger from opts. The returned logger is a handle to be
// passed into components; nothing here touches zap globals.
func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	var syncers []zapcore.WriteSyncer
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}))
	}
	if opts.File == "" || opts.Stdout {
		syncers = append(syncers, zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
