// Package config loads server configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Store    StoreConfig     `mapstructure:"store"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Log      LogConfig       `mapstructure:"log"`
	Demo     DemoConfig      `mapstructure:"demo"`
	Accounts []AccountConfig `mapstructure:"accounts"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" | "redis"
	TTL     time.Duration `mapstructure:"ttl"`     // 0 = keep records for the process lifetime (memory only)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Format string `mapstructure:"format"` // "json" | "console"
}

type DemoConfig struct {
	// SettleDelay is slept on every other make_payment execution so a
	// client with a short timeout gives up after the debit applied.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type AccountConfig struct {
	ID                string `mapstructure:"id"`
	OpeningMinorUnits int64  `mapstructure:"opening_minor_units"`
}

// Load reads the config file at path (optional; defaults apply when it does
// not exist) and applies IDEMPAY_* environment overrides, e.g.
// IDEMPAY_SERVER_PORT=9001 or IDEMPAY_STORE_BACKEND=redis.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.ttl", time.Duration(0))
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.format", "console")
	v.SetDefault("demo.settle_delay", 5*time.Second)

	v.SetEnvPrefix("IDEMPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Store.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if len(cfg.Accounts) == 0 {
		cfg.Accounts = defaultAccounts()
	}
	return &cfg, nil
}

// defaultAccounts seeds the two demo accounts (100.00 and 200.00).
func defaultAccounts() []AccountConfig {
	return []AccountConfig{
		{ID: "b4d8ada9-74a1-4c64-9ba3-a1af8c8307eb", OpeningMinorUnits: 100_00},
		{ID: "1a57e024-09db-4402-801b-4f75b1a05a8d", OpeningMinorUnits: 200_00},
	}
}
