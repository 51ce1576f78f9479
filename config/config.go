// Package config loads the gridcache-demo CLI's configuration using Viper,
// the way package am loads QNTX's (env vars override a config file, which
// overrides built-in defaults).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/gridcache/errors"
)

// Config is the gridcache-demo CLI's configuration surface: where to dial
// the grid, and how the view it builds should behave.
type Config struct {
	Grid GridConfig `mapstructure:"grid"`
	View ViewConfig `mapstructure:"view"`
	Log  LogConfig  `mapstructure:"log"`
}

// GridConfig addresses the remote cache to connect a CQC against.
type GridConfig struct {
	Target    string `mapstructure:"target"`     // host:port of the grid node
	CacheName string `mapstructure:"cache_name"` // name of the backing cache
}

// ViewConfig configures the continuous query cache built over the grid.
type ViewConfig struct {
	CacheValues       bool          `mapstructure:"cache_values"`
	ReadOnly          bool          `mapstructure:"read_only"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

// LogConfig configures the CLI's zap logger.
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

var global *Config

// Load reads configuration from (in increasing precedence) built-in
// defaults, a config file named .gridcache.yaml on the search path, and
// GRIDCACHE_-prefixed environment variables. The result is cached; call
// Reset to force a re-read (tests only).
func Load() (*Config, error) {
	if global != nil {
		return global, nil
	}
	v := newViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	global = &cfg
	return global, nil
}

// Reset clears the cached configuration. Test-only.
func Reset() {
	global = nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("GRIDCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName(".gridcache")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	_ = v.ReadInConfig() // absent config file is not an error; defaults stand

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("grid.target", "localhost:9080")
	v.SetDefault("grid.cache_name", "default")

	v.SetDefault("view.cache_values", true)
	v.SetDefault("view.read_only", false)
	v.SetDefault("view.reconnect_interval", 30*time.Second)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}
