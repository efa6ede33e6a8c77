// Command entidb is a local administration CLI for an EntiDB database
// directory: put/get/delete individual entities, run compaction or a
// checkpoint, print storage stats, or drop into an interactive shell with
// line editing and history courtesy of peterh/liner.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entidb/entidb/entidb"
)

var (
	flagDir        string
	flagConfigFile string
)

var rootCmd = &cobra.Command{
	Use:   "entidb",
	Short: "Administer an EntiDB database directory",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "database directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a config file (viper-readable: yaml/json/toml/env)")

	rootCmd.AddCommand(putCmd, getCmd, deleteCmd, listCmd, compactCmd, checkpointCmd, statsCmd, shellCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective Config: file/env defaults via
// entidb.LoadConfig, then --dir overriding Dir if given.
func loadConfig() (entidb.Config, error) {
	cfg, err := entidb.LoadConfig(flagConfigFile)
	if err != nil {
		return cfg, err
	}
	if flagDir != "" {
		cfg.Dir = flagDir
	}
	return cfg, nil
}

// openDB loads config and opens the database, for subcommands that need a
// single short-lived handle.
func openDB() (*entidb.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return entidb.Open(cfg)
}
