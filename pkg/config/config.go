package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lkarlslund/redflag/pkg/kv"
)

const defaultConfigFileName = "redflagd.toml"

type RedisConfig struct {
	Mode                string   `toml:"mode"`
	Addr                string   `toml:"addr"`
	Addrs               []string `toml:"addrs,omitempty"`
	Username            string   `toml:"username,omitempty"`
	Password            string   `toml:"password,omitempty"`
	DB                  int      `toml:"db,omitempty"`
	DialTimeoutSeconds  int      `toml:"dial_timeout_seconds,omitempty"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds,omitempty"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds,omitempty"`
}

// APIKey names one accepted bearer key. Only the bcrypt hash is stored;
// the plaintext is shown once at generation time.
type APIKey struct {
	Name string `toml:"name"`
	Hash string `toml:"hash"`
}

type RetentionConfig struct {
	Days                 int `toml:"days"`
	CheckIntervalMinutes int `toml:"check_interval_minutes,omitempty"`
}

type ServerConfig struct {
	ListenAddr           string          `toml:"listen_addr"`
	LogLevel             string          `toml:"log_level"`
	AllowLocalhostNoAuth bool            `toml:"allow_localhost_no_auth"`
	APIKeys              []APIKey        `toml:"api_keys"`
	Redis                RedisConfig     `toml:"redis"`
	Retention            RetentionConfig `toml:"retention"`
}

func DefaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "redflag", defaultConfigFileName)
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:           "127.0.0.1:8440",
		LogLevel:             "info",
		AllowLocalhostNoAuth: true,
		Redis: RedisConfig{
			Mode: kv.ModeStandalone,
			Addr: "127.0.0.1:6379",
		},
		Retention: RetentionConfig{
			Days:                 0,
			CheckIntervalMinutes: 60,
		},
	}
}

func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrCreateServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOrCreate(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, v); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := marshalTOML(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *ServerConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8440"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Redis.Mode = strings.ToLower(strings.TrimSpace(c.Redis.Mode))
	if c.Redis.Mode == "" {
		c.Redis.Mode = kv.ModeStandalone
	}
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Mode == kv.ModeStandalone && c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	addrs := c.Redis.Addrs[:0]
	for _, a := range c.Redis.Addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	c.Redis.Addrs = addrs
	keys := c.APIKeys[:0]
	for _, k := range c.APIKeys {
		k.Name = strings.TrimSpace(k.Name)
		k.Hash = strings.TrimSpace(k.Hash)
		if k.Name == "" && k.Hash == "" {
			continue
		}
		keys = append(keys, k)
	}
	c.APIKeys = keys
	if c.Retention.CheckIntervalMinutes <= 0 {
		c.Retention.CheckIntervalMinutes = 60
	}
}

func (c *ServerConfig) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.Redis.Mode {
	case kv.ModeStandalone:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required in standalone mode")
		}
	case kv.ModeCluster:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required in cluster mode")
		}
	default:
		return fmt.Errorf("redis.mode %q is not one of standalone, cluster", c.Redis.Mode)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative")
	}
	for i, k := range c.APIKeys {
		if k.Name == "" {
			return fmt.Errorf("api_keys[%d]: name is required", i)
		}
		if !strings.HasPrefix(k.Hash, "$2") {
			return fmt.Errorf("api_keys[%d] (%s): hash must be a bcrypt hash", i, k.Name)
		}
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days cannot be negative")
	}
	return nil
}

// KVOptions maps the redis section onto connect options.
func (c *ServerConfig) KVOptions() kv.Options {
	return kv.Options{
		Mode:         c.Redis.Mode,
		Addr:         c.Redis.Addr,
		Addrs:        c.Redis.Addrs,
		Username:     c.Redis.Username,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		DialTimeout:  time.Duration(c.Redis.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(c.Redis.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(c.Redis.WriteTimeoutSeconds) * time.Second,
	}
}

// RetentionHorizon returns the purge cutoff, zero when retention is off.
func (c *ServerConfig) RetentionHorizon() time.Duration {
	if c.Retention.Days <= 0 {
		return 0
	}
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

func (c *ServerConfig) RetentionCheckInterval() time.Duration {
	return time.Duration(c.Retention.CheckIntervalMinutes) * time.Minute
}
