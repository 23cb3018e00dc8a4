package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents hived.toml.
type Config struct {
	Server ServerConfig `toml:"server"`
	Auth   AuthConfig   `toml:"auth"`
	Store  StoreConfig  `toml:"store"`
	Admin  AdminConfig  `toml:"admin"`
	Limits LimitsConfig `toml:"limits"`
	Events EventsConfig `toml:"events"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	ListenAddr       string        `toml:"listen_addr"`
	AllowedOrigins   []string      `toml:"allowed_origins"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	SendTimeout      time.Duration `toml:"send_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	PingInterval     time.Duration `toml:"ping_interval"`
	SendBuffer       int           `toml:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type AdminConfig struct {
	SocketPath string `toml:"socket_path"`
}

type LimitsConfig struct {
	EventsPerSecond float64 `toml:"events_per_second"`
	Burst           int     `toml:"burst"`
	FanoutWorkers   int     `toml:"fanout_workers"`
}

// EventsConfig selects where journaled domain events are exported.
// Backend is one of "memory", "redis" or "none".
type EventsConfig struct {
	Backend      string        `toml:"backend"`
	RedisAddr    string        `toml:"redis_addr"`
	Topic        string        `toml:"topic"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// BaseDir returns the root directory for hive data (~/.hive).
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hive")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "hived.toml")
}

// Default returns a config with every field populated.
func Default() *Config {
	base := BaseDir()
	return &Config{
		Server: ServerConfig{
			ListenAddr:       ":8080",
			HandshakeTimeout: 5 * time.Second,
			SendTimeout:      5 * time.Second,
			WriteTimeout:     10 * time.Second,
			PingInterval:     25 * time.Second,
			SendBuffer:       64,
		},
		Auth:  AuthConfig{Issuer: "hive"},
		Store: StoreConfig{Path: filepath.Join(base, "hive.db")},
		Admin: AdminConfig{SocketPath: filepath.Join(base, "hived.sock")},
		Limits: LimitsConfig{
			EventsPerSecond: 20,
			Burst:           40,
			FanoutWorkers:   8,
		},
		Events: EventsConfig{
			Backend:      "memory",
			RedisAddr:    "localhost:6379",
			Topic:        "hive.events",
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Path:  filepath.Join(base, "logs", "hived.log"),
			Level: "info",
		},
	}
}

// Load reads config from path on top of Default, then applies HIVE_* env
// overrides. A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	// A .env next to the working directory is optional.
	_ = godotenv.Load(".env")
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects configs the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Server.HandshakeTimeout <= 0 || c.Server.SendTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.SendBuffer <= 0 {
		return errors.New("server.send_buffer must be positive")
	}
	switch c.Events.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("events.backend %q: want memory, redis or none", c.Events.Backend)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HIVE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("HIVE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("HIVE_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("HIVE_ADMIN_SOCKET"); v != "" {
		c.Admin.SocketPath = v
	}
	if v := os.Getenv("HIVE_EVENTS_BACKEND"); v != "" {
		c.Events.Backend = v
	}
	if v := os.Getenv("HIVE_REDIS_ADDR"); v != "" {
		c.Events.RedisAddr = v
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HIVE_SEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HIVE_SEND_TIMEOUT: %w", err)
		}
		c.Server.SendTimeout = d
	}
	if v := os.Getenv("HIVE_EVENTS_PER_SECOND"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HIVE_EVENTS_PER_SECOND: %w", err)
		}
		c.Limits.EventsPerSecond = n
	}
	return nil
}
