package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/lkarlslund/redflag/pkg/config"
)

var apikeyConfigPath string

func init() {
	apikeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys in the server config",
	}
	apikeyCmd.PersistentFlags().StringVar(&apikeyConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Generate a key, store its hash and print the key once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("key name required")
			}
			cfg, err := config.LoadOrCreateServerConfig(apikeyConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			for _, k := range cfg.APIKeys {
				if strings.EqualFold(k.Name, name) {
					return fmt.Errorf("api key %q already exists", name)
				}
			}
			key, err := mintKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			cfg.APIKeys = append(cfg.APIKeys, config.APIKey{Name: name, Hash: string(hash)})
			if err := config.Save(apikeyConfigPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			fmt.Fprintln(cmd.ErrOrStderr(), "Store this key now. Only its hash is kept in the config.")
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured API key names",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrCreateServerConfig(apikeyConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			if len(cfg.APIKeys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no api keys configured")
				return nil
			}
			for _, k := range cfg.APIKeys {
				fmt.Fprintln(cmd.OutOrStdout(), k.Name)
			}
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an API key from the config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			cfg, err := config.LoadOrCreateServerConfig(apikeyConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			kept := cfg.APIKeys[:0]
			found := false
			for _, k := range cfg.APIKeys {
				if strings.EqualFold(k.Name, name) {
					found = true
					continue
				}
				kept = append(kept, k)
			}
			if !found {
				return fmt.Errorf("api key %q not found", name)
			}
			cfg.APIKeys = kept
			if err := config.Save(apikeyConfigPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
			return nil
		},
	}

	apikeyCmd.AddCommand(addCmd, listCmd, removeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func mintKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "rfk_" + base64.RawURLEncoding.EncodeToString(raw), nil
}
