// Package cmd implements the command-line interface for tribsync.
// It provides the root command and subcommands for running document
// syncs, the scheduler daemon, and the audit API server.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lexwatch/tribsync/cmd/httpd"
	cmdscheduler "github.com/lexwatch/tribsync/cmd/scheduler"
	cmdsync "github.com/lexwatch/tribsync/cmd/sync"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	// rootCmd represents the root command for the tribsync CLI.
	rootCmd = &cobra.Command{
		Use:   "tribsync",
		Short: "Tribunal document sync pipeline",
		Long: `Tribsync keeps local users in sync with the electronic tribunal portal:
it logs in with each user's filed credentials, detects newly published
documents, stores their PDFs, summarizes them and delivers alerts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available
	_ = godotenv.Load()

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tribsync version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(cmdsync.Command())
	rootCmd.AddCommand(cmdscheduler.Command())
	rootCmd.AddCommand(httpd.Command())
}

// initConfig reads in the config file and environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Environment variables take precedence over defaults
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults carry a
		// containerized deployment.
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	_ = rootCmd.ParseFlags(os.Args[1:])
	if Debug {
		viper.Set("logger.level", "debug")
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}

	return nil
}

// bindEnvVars maps well-known environment variables to config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":      {"APP_ENV"},
		"logger.level":         {"LOG_LEVEL"},
		"logger.encoding":      {"LOG_FORMAT"},
		"database.host":        {"DATABASE_HOST"},
		"database.port":        {"DATABASE_PORT"},
		"database.user":        {"DATABASE_USER"},
		"database.password":    {"DATABASE_PASSWORD"},
		"database.name":        {"DATABASE_NAME"},
		"database.sslmode":     {"DATABASE_SSLMODE"},
		"redis.addr":           {"REDIS_ADDR"},
		"redis.password":       {"REDIS_PASSWORD"},
		"vault.base_url":       {"VAULT_BASE_URL"},
		"vault.token":          {"VAULT_TOKEN"},
		"portal.base_url":      {"PORTAL_BASE_URL"},
		"summarizer.api_key":   {"ANTHROPIC_API_KEY", "SUMMARIZER_API_KEY"},
		"notifier.gateway_url": {"NOTIFIER_GATEWAY_URL"},
		"notifier.token":       {"NOTIFIER_TOKEN"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "tribsync",
		"environment": "production",
	})

	viper.SetDefault("logger", map[string]any{
		"level":       "info",
		"development": false,
		"encoding":    "json",
	})

	viper.SetDefault("database", map[string]any{
		"port":    "5432",
		"sslmode": "require",
	})

	viper.SetDefault("redis", map[string]any{
		"addr":     "",
		"db":       0,
		"lock_ttl": "30m",
	})

	viper.SetDefault("vault", map[string]any{
		"timeout": "10s",
	})

	viper.SetDefault("portal", map[string]any{
		"login_path":      "/",
		"documents_path":  "/Home/Notificaciones",
		"validate_path":   "/Home/ValidarDescarga",
		"token_path":      "/Home/GenerarToken",
		"download_path":   "/Home/Descargar",
		"eligible_class":  "3",
		"timeout":         "60s",
		"min_delay":       "2s",
		"max_delay":       "5s",
		"diagnostics_dir": "diagnostics",
	})

	viper.SetDefault("summarizer", map[string]any{
		"model":        "claude-3-5-haiku-latest",
		"max_words":    100,
		"min_interval": "6s",
	})

	viper.SetDefault("notifier", map[string]any{
		"template": "nueva_notificacion",
		"timeout":  "15s",
	})

	viper.SetDefault("scheduler", map[string]any{
		"cron":        "*/30 8-20 * * *",
		"concurrency": 2,
		"stale_after": "2h",
	})

	viper.SetDefault("server", map[string]any{
		"address":       ":8080",
		"read_timeout":  "15s",
		"write_timeout": "15s",
	})

	viper.SetDefault("storage", map[string]any{
		"blob_root":           "storage",
		"audit_fallback_path": "storage/audit_fallback.log",
	})
}
