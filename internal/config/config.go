package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default env var holding the base64-encoded 32-byte master key.
const defaultMasterKeyEnv = "TOOLBRIDGE_MASTER_KEY"

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicBaseURL is the externally reachable base URL; each provider's
		// fixed redirect path is appended to it.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Broker struct {
		StateTTL        string `yaml:"state_ttl"`
		RefreshSkew     string `yaml:"refresh_skew"`
		ExchangeTimeout string `yaml:"exchange_timeout"`
		MasterKeyEnv    string `yaml:"master_key_env"`
	} `yaml:"broker"`

	Rate struct {
		Enabled  bool `yaml:"enabled"`
		Initiate struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"initiate"`
		Callback struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"callback"`
	} `yaml:"rate"`
}

// Load reads the YAML config at path (optional) and applies env overrides and
// defaults. A missing file is not an error: everything has a workable default
// except the master key, which is validated lazily via MasterKey.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TOOLBRIDGE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TOOLBRIDGE_PUBLIC_BASE_URL"); v != "" {
		c.Server.PublicBaseURL = v
	}
	if v := os.Getenv("TOOLBRIDGE_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("TOOLBRIDGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "" {
			c.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		if c.Cache.Kind == "" {
			c.Cache.Kind = "redis"
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8084"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost:8084"
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "tb:"
	}
	if c.Broker.StateTTL == "" {
		c.Broker.StateTTL = "5m"
	}
	if c.Broker.RefreshSkew == "" {
		c.Broker.RefreshSkew = "60s"
	}
	if c.Broker.ExchangeTimeout == "" {
		c.Broker.ExchangeTimeout = "15s"
	}
	if c.Broker.MasterKeyEnv == "" {
		c.Broker.MasterKeyEnv = defaultMasterKeyEnv
	}
	if c.Rate.Initiate.Limit == 0 {
		c.Rate.Initiate.Limit = 30
	}
	if c.Rate.Initiate.Window == "" {
		c.Rate.Initiate.Window = "1m"
	}
	if c.Rate.Callback.Limit == 0 {
		c.Rate.Callback.Limit = 60
	}
	if c.Rate.Callback.Window == "" {
		c.Rate.Callback.Window = "1m"
	}
}

// MasterKey decodes the symmetric master key from the configured env var.
// The key is never logged and never stored in persisted rows.
func (c *Config) MasterKey() ([]byte, error) {
	name := c.Broker.MasterKeyEnv
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", name)
	}
	k, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", name, len(k))
	}
	return k, nil
}

// ProviderEnv snapshots the process environment into an explicit map. The
// provider registry receives this at construction instead of reading env vars
// at call time, which keeps tool availability testable.
func ProviderEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// Duration parses s, falling back to def on empty or invalid input.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
