package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" toml:"port"`
	} `yaml:"server" toml:"server"`
	Storage struct {
		Backend string `yaml:"backend" toml:"backend"`
	} `yaml:"storage" toml:"storage"`
	File struct {
		StatsPath     string `yaml:"stats_path" toml:"stats_path"`
		QuestionsPath string `yaml:"questions_path" toml:"questions_path"`
	} `yaml:"file" toml:"file"`
	SQLite struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"sqlite" toml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr" toml:"addr"`
		Password string `yaml:"password" toml:"password"`
		DB       int    `yaml:"db" toml:"db"`
		TTL      string `yaml:"ttl" toml:"ttl"`
	} `yaml:"redis" toml:"redis"`
	Postgres struct {
		URL string `yaml:"url" toml:"url"`
	} `yaml:"postgres" toml:"postgres"`
	Quiz struct {
		TTL            string `yaml:"ttl" toml:"ttl"`
		RejectResubmit bool   `yaml:"reject_resubmit" toml:"reject_resubmit"`
	} `yaml:"quiz" toml:"quiz"`
	Stats struct {
		HistoryCap int `yaml:"history_cap" toml:"history_cap"`
	} `yaml:"stats" toml:"stats"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl" toml:"token_ttl"`
		// AnonymousStats pools callers without a token into the shared global bucket.
		AnonymousStats *bool `yaml:"anonymous_stats" toml:"anonymous_stats"`
	} `yaml:"auth" toml:"auth"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url" toml:"amqp_url"`
		Exchange string `yaml:"exchange" toml:"exchange"`
	} `yaml:"events" toml:"events"`
}

// Load reads config from path (YAML, or TOML for a .toml extension), then applies
// .env and environment overrides. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[CONFIG] ignoring .env: %v", err)
	}

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
			log.Printf("[CONFIG] %s not found, using defaults", path)
		}
	}
	cfg.applyEnv()
	cfg.withDefaults()
	return cfg, cfg.validate()
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
		if c.Storage.Backend == "" {
			c.Storage.Backend = BackendPostgres
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	}
	if v := os.Getenv("ANONYMOUS_STATS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.AnonymousStats = &b
		}
	}
}

func (c *Config) withDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.File.StatsPath == "" {
		c.File.StatsPath = "data/user_stats.json"
	}
	if c.File.QuestionsPath == "" {
		c.File.QuestionsPath = "data/questions.json"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/quiz.db"
	}
	if c.Stats.HistoryCap <= 0 {
		c.Stats.HistoryCap = 50
	}
	if c.Auth.AnonymousStats == nil {
		enabled := true
		c.Auth.AnonymousStats = &enabled
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage backend %q needs postgres.url", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// AnonymousStatsEnabled reports whether callers without a token share the global bucket.
func (c Config) AnonymousStatsEnabled() bool {
	return c.Auth.AnonymousStats == nil || *c.Auth.AnonymousStats
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
