package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/kv"
	"github.com/lkarlslund/redflag/pkg/logutil"
	"github.com/lkarlslund/redflag/pkg/server"
)

var (
	serveConfigPath           string
	serveListenAddrOverride   string
	serveAllowLocalhostNoAuth bool
	serveRedisAddrOverride    string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the redflag server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrCreateServerConfig(serveConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if cmd.Flags().Changed("allow-localhost-no-auth") {
				cfg.AllowLocalhostNoAuth = serveAllowLocalhostNoAuth
			}
			if cmd.Flags().Changed("redis-addr") {
				cfg.Redis.Addr = serveRedisAddrOverride
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("loglevel") {
				if err := logutil.Configure(cfg.LogLevel); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := kv.Connect(ctx, cfg.KVOptions())
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer conn.Close()

			return server.New(cfg, conn).Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8440)")
	serveCmd.Flags().BoolVar(&serveAllowLocalhostNoAuth, "allow-localhost-no-auth", false, "Override allow_localhost_no_auth in config")
	serveCmd.Flags().StringVar(&serveRedisAddrOverride, "redis-addr", "", "Override redis address from config (e.g. 127.0.0.1:6379)")
	rootCmd.AddCommand(serveCmd)
}
