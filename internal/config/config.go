// Package config holds EntiDB's façade-level options. The plain-struct-with-
// Default shape mirrors how the rest of the codebase configures components;
// Load (in load.go) layers viper-based config-file and environment-variable
// overrides on top for the cmd/entidb CLI's --config flag.
package config

import "time"

// Config holds every option the database façade consults when opening
// or operating on a database. Field tags are consulted by Load's
// viper.Unmarshal (mapstructure, lowercased keys).
type Config struct {
	// Dir is the database root directory.
	Dir string `mapstructure:"dir"`

	// MaxSegmentSize is the append-before-seal threshold in bytes.
	MaxSegmentSize int64 `mapstructure:"max_segment_size"`

	// SyncOnCommit durably syncs the WAL after every COMMIT record when
	// true; when false, only flushes (weaker durability).
	SyncOnCommit bool `mapstructure:"sync_on_commit"`

	// CreateIfMissing controls whether Open creates Dir when absent.
	CreateIfMissing bool `mapstructure:"create_if_missing"`

	// TombstoneRetention is the compaction threshold in sequence units, not
	// wall-clock time.
	TombstoneRetention uint64 `mapstructure:"tombstone_retention"`

	// CheckpointInterval is an ambient operational knob: how often the
	// façade's optional background loop calls Checkpoint. Zero disables the
	// background loop; callers may still call Checkpoint directly at any
	// time.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`

	// LogLevel/LogFormat configure internal/entidblog (DEBUG/INFO/WARN/ERROR,
	// text/json).
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns EntiDB's default configuration.
func Default() Config {
	return Config{
		Dir:                "./data",
		MaxSegmentSize:     128 << 20, // 128 MiB
		SyncOnCommit:       true,
		CreateIfMissing:    true,
		TombstoneRetention: 100_000,
		CheckpointInterval: 0,
		LogLevel:           "INFO",
		LogFormat:          "text",
	}
}
