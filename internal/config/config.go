package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	Catalog struct {
		TTL string `mapstructure:"ttl"`
	} `mapstructure:"catalog"`
	Quiz struct {
		// Seed is a YAML question bank used when Postgres is not configured.
		Seed string `mapstructure:"seed"`
	} `mapstructure:"quiz"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Default returns the configuration used for keys missing from file and environment.
func Default() Config {
	var c Config
	c.Server.Port = "8080"
	c.Redis.TTL = "10m"
	c.Redis.Prefix = "trivia"
	c.Catalog.TTL = "10m"
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

// Load reads YAML config from path on top of Default. Every key can be
// overridden by environment, e.g. REDIS_ADDR for redis.addr. A missing file
// leaves defaults and environment in effect.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()

	m := make(map[string]any)
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return cfg, fmt.Errorf("mapstructure: %w", err)
	}
	if err := v.MergeConfigMap(m); err != nil {
		return cfg, fmt.Errorf("merge config map: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return cfg, fmt.Errorf("read config from file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
