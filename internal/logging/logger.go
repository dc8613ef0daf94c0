// Package logging provides categorized zap logging for xagent.
// Each subsystem logs under its own named logger so that a single run can be
// filtered per concern (browser events vs. generation calls vs. ledger writes).
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a log subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // startup, config load
	CategoryBrowser      Category = "browser"      // rod session, DOM events
	CategoryExtract      Category = "extract"      // feed item extraction
	CategoryTarget       Category = "target"       // targeting decisions
	CategoryLedger       Category = "ledger"       // reply ledger writes
	CategoryQueue        Category = "queue"        // generation queue pacing
	CategoryBrain        Category = "brain"        // generation backend calls
	CategoryOrchestrator Category = "orchestrator" // reply state machine
	CategoryMentions     Category = "mentions"     // mention queue processing
	CategoryBulk         Category = "bulk"         // bulk queue processing
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Options controls logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json or console
	File    string // optional log file; stderr always included
	Verbose bool   // forces debug level
}

// Initialize builds the root logger. Safe to call more than once; later calls
// replace the root and invalidate cached category loggers.
func Initialize(opts Options) error {
	level := zapcore.InfoLevel
	switch opts.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), level))
	}

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(zapcore.NewTee(cores...))
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
