package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load starts from Default(), then layers an optional config file and
// ENTIDB_-prefixed environment variables on top (e.g. ENTIDB_MAX_SEGMENT_SIZE
// overrides max_segment_size) via a prefixed-env-var scan into viper before
// Unmarshal. An explicit config file path is also accepted so the CLI's
// --config flag has somewhere to point.
func Load(configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	const prefix = "ENTIDB_"
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		propKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
