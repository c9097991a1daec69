package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
)

// Conn is the narrow capability surface the stores are written against:
// flat keys, set membership and sorted-set range operations. Both
// *redis.Client and *redis.ClusterClient satisfy it, so topology is decided
// once in Connect and never branched on again.
type Conn interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
	Close() error
}

type Options struct {
	Mode         string
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect builds the client for the configured topology and verifies it with
// a ping before handing it out.
func Connect(ctx context.Context, o Options) (Conn, error) {
	var conn Conn
	switch strings.TrimSpace(strings.ToLower(o.Mode)) {
	case "", ModeStandalone:
		addr := strings.TrimSpace(o.Addr)
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		conn = redis.NewClient(&redis.Options{
			Addr:         addr,
			Username:     o.Username,
			Password:     o.Password,
			DB:           o.DB,
			DialTimeout:  o.DialTimeout,
			ReadTimeout:  o.ReadTimeout,
			WriteTimeout: o.WriteTimeout,
		})
	case ModeCluster:
		if len(o.Addrs) == 0 {
			return nil, fmt.Errorf("redis cluster mode requires at least one address")
		}
		conn = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        o.Addrs,
			Username:     o.Username,
			Password:     o.Password,
			DialTimeout:  o.DialTimeout,
			ReadTimeout:  o.ReadTimeout,
			WriteTimeout: o.WriteTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown redis mode %q", o.Mode)
	}
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("redis ping %s: %w", describeTarget(o), err)
	}
	return conn, nil
}

func describeTarget(o Options) string {
	if strings.EqualFold(strings.TrimSpace(o.Mode), ModeCluster) {
		return strings.Join(o.Addrs, ",")
	}
	if strings.TrimSpace(o.Addr) == "" {
		return "127.0.0.1:6379"
	}
	return o.Addr
}
