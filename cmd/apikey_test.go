package cmd

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/kv"
)

func TestMintKey(t *testing.T) {
	a, err := mintKey()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b, err := mintKey()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a == b {
		t.Fatal("expected unique keys")
	}
	if !strings.HasPrefix(a, "rfk_") {
		t.Fatalf("expected rfk_ prefix, got %q", a)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(a, "rfk_"))
	if err != nil {
		t.Fatalf("decode key material: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of key material, got %d", len(raw))
	}
}

func TestDescribeRedis(t *testing.T) {
	cfg := config.NewDefaultServerConfig()
	if got := describeRedis(cfg); got != "standalone 127.0.0.1:6379" {
		t.Fatalf("unexpected standalone description %q", got)
	}
	cfg.Redis.Mode = kv.ModeCluster
	cfg.Redis.Addrs = []string{"10.0.0.1:6379", "10.0.0.2:6379"}
	if got := describeRedis(cfg); !strings.Contains(got, "cluster") || !strings.Contains(got, "10.0.0.1:6379") {
		t.Fatalf("unexpected cluster description %q", got)
	}
}
