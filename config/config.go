// Package config reads the typegraph configuration through Viper.
//
// Precedence (lowest to highest): defaults < system config < user config <
// project config < TYPEGRAPH_* environment variables. Config files are TOML.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/typegraph/errors"
)

// Config is the full typegraph configuration tree.
type Config struct {
	Log   LogConfig   `mapstructure:"log"`
	Graph GraphConfig `mapstructure:"graph"`
	Watch WatchConfig `mapstructure:"watch"`
}

// LogConfig controls logger output.
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`  // structured JSON instead of console output
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// GraphConfig names the default graph files.
type GraphConfig struct {
	Path      string `mapstructure:"path"`       // default graph document
	StorePath string `mapstructure:"store_path"` // default sqlite snapshot
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"` // coalesce bursts of write events
}

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the configuration, caching the result.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// LoadWithViper unmarshals configuration from a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from one specific file, ignoring the
// merged search path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return LoadWithViper(v)
}

// GetViper returns the shared Viper instance for advanced access.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration. Useful for testing.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for all options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("graph.path", "graph.tgxml")
	v.SetDefault("graph.store_path", "graph.tgdb")

	v.SetDefault("watch.debounce_ms", 250)
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("TYPEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig walks up from the working directory looking for
// typegraph.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, "typegraph.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// mergeConfigFiles merges config files in precedence order:
// system < user < project.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	configPaths := []string{
		"/etc/typegraph/config.toml",
		filepath.Join(homeDir, ".typegraph", "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		configPaths = append(configPaths, project)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		for key, value := range tmp.AllSettings() {
			v.Set(key, value)
		}
	}
}
