package entidb

import "github.com/entidb/entidb/internal/config"

// Config re-exports internal/config.Config so library callers can build
// open options without importing an internal package.
type Config = config.Config

// DefaultConfig returns the default configuration. Callers typically set
// Dir and pass the result to Open.
func DefaultConfig() Config { return config.Default() }

// LoadConfig layers an optional config file and ENTIDB_-prefixed
// environment variables on top of the defaults.
func LoadConfig(configFile string) (Config, error) { return config.Load(configFile) }
