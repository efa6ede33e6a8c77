// Package entidblog provides EntiDB's structured logger: a thin slog
// wrapper with a process-wide default, grounded directly in
// pkg/logger/logger.go's Config{Level,Format,AddSource} + sync.Once shape.
package entidblog

import (
	"log/slog"
	"os"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Config controls the global logger's verbosity and encoding.
type Config struct {
	Level     string // DEBUG, INFO, WARN, ERROR
	Format    string // json, text
	AddSource bool
}

// Init sets up the global logger. Only the first call takes effect.
func Init(cfg Config) {
	once.Do(func() {
		logger = New(cfg)
		slog.SetDefault(logger)
	})
}

// New builds a standalone logger from cfg without touching the global.
func New(cfg Config) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Get returns the global logger, initializing it with sane defaults on
// first use if Init was never called.
func Get() *slog.Logger {
	if logger == nil {
		Init(Config{Level: "INFO", Format: "text"})
	}
	return logger
}
