package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terraconstructs/gridauth/cmd/cmdutil"
	"github.com/terraconstructs/gridauth/cmd/tokens"
	"github.com/terraconstructs/gridauth/cmd/users"
	"github.com/terraconstructs/gridauth/internal/config"
)

var (
	cfg     *config.Config
	logger  hclog.Logger
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gridauth",
	Short: "Token and session authentication server",
	Long: `gridauth authenticates HTTP requests with opaque bearer API tokens and
cookie-backed browser sessions with remember-me support.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cmdutil.ReadConfigFile(cfgFile); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger = cmdutil.NewLogger(cfg)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (YAML, TOML or JSON)")
	flags.String("db-url", "", "Database connection URL (env: GRIDAUTH_DATABASE_URL)")
	flags.String("server-addr", "", "Server bind address (env: GRIDAUTH_SERVER_ADDR)")
	flags.String("server-url", "", "Server base URL (env: GRIDAUTH_SERVER_URL)")
	flags.Bool("debug", false, "Enable debug logging (env: GRIDAUTH_DEBUG)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error (env: GRIDAUTH_LOG_LEVEL)")

	for key, flag := range map[string]string{
		"database_url": "db-url",
		"server_addr":  "server-addr",
		"server_url":   "server-url",
		"debug":        "debug",
		"log_level":    "log-level",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(tokens.TokensCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
