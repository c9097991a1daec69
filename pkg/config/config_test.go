package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lkarlslund/redflag/pkg/kv"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultServerConfig()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOrCreateWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "redflagd.toml")
	cfg, err := LoadOrCreateServerConfig(path)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8440" {
		t.Fatalf("unexpected default listen addr %q", cfg.ListenAddr)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(b), "listen_addr") {
		t.Fatalf("written config missing listen_addr:\n%s", b)
	}
	// Second call reads the same file back.
	again, err := LoadOrCreateServerConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddr != cfg.ListenAddr {
		t.Fatalf("reload changed listen addr: %q vs %q", again.ListenAddr, cfg.ListenAddr)
	}
}

func TestLoadServerConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redflagd.toml")
	cfg := NewDefaultServerConfig()
	cfg.ListenAddr = ":9000"
	cfg.Redis.Mode = kv.ModeCluster
	cfg.Redis.Addrs = []string{"10.0.0.1:6379", "10.0.0.2:6379"}
	cfg.Retention.Days = 14
	cfg.APIKeys = []APIKey{{Name: "ops", Hash: "$2a$10$abcdefghijklmnopqrstuv"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ListenAddr != ":9000" || got.Redis.Mode != kv.ModeCluster {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if len(got.Redis.Addrs) != 2 || got.Retention.Days != 14 {
		t.Fatalf("round trip lost redis/retention: %+v", got)
	}
	if len(got.APIKeys) != 1 || got.APIKeys[0].Name != "ops" {
		t.Fatalf("round trip lost api keys: %+v", got.APIKeys)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &ServerConfig{}
	cfg.Normalize()
	if cfg.ListenAddr == "" || cfg.LogLevel != "info" {
		t.Fatalf("normalize left gaps: %+v", cfg)
	}
	if cfg.Redis.Mode != kv.ModeStandalone || cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("redis defaults missing: %+v", cfg.Redis)
	}
	if cfg.Retention.CheckIntervalMinutes != 60 {
		t.Fatalf("retention interval default missing: %+v", cfg.Retention)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"bad log level", func(c *ServerConfig) { c.LogLevel = "verbose" }},
		{"bad redis mode", func(c *ServerConfig) { c.Redis.Mode = "sentinel" }},
		{"cluster without addrs", func(c *ServerConfig) { c.Redis.Mode = kv.ModeCluster; c.Redis.Addrs = nil }},
		{"negative db", func(c *ServerConfig) { c.Redis.DB = -1 }},
		{"key without name", func(c *ServerConfig) { c.APIKeys = []APIKey{{Hash: "$2a$10$x"}} }},
		{"key with plaintext hash", func(c *ServerConfig) { c.APIKeys = []APIKey{{Name: "ops", Hash: "hunter2"}} }},
		{"negative retention", func(c *ServerConfig) { c.Retention.Days = -1 }},
	}
	for _, tc := range cases {
		cfg := NewDefaultServerConfig()
		cfg.Normalize()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestKVOptionsMapping(t *testing.T) {
	cfg := NewDefaultServerConfig()
	cfg.Redis.DialTimeoutSeconds = 5
	opts := cfg.KVOptions()
	if opts.Mode != kv.ModeStandalone || opts.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.DialTimeout != 5*time.Second {
		t.Fatalf("dial timeout = %v, want 5s", opts.DialTimeout)
	}
}

func TestRetentionHorizon(t *testing.T) {
	cfg := NewDefaultServerConfig()
	if cfg.RetentionHorizon() != 0 {
		t.Fatalf("retention disabled by default, got %v", cfg.RetentionHorizon())
	}
	cfg.Retention.Days = 7
	if cfg.RetentionHorizon() != 7*24*time.Hour {
		t.Fatalf("horizon = %v, want 168h", cfg.RetentionHorizon())
	}
}
