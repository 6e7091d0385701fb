// Package config loads application configuration from Viper-managed
// sources: config file, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lexwatch/tribsync/internal/logger"
)

// Errors returned during configuration validation.
var (
	ErrMissingDatabase = errors.New("database host and name are required")
	ErrMissingVault    = errors.New("vault base URL is required")
	ErrMissingPortal   = errors.New("portal base URL is required")
)

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Redis holds the run-lock Redis settings. An empty Addr disables the
// per-user run lock.
type Redis struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Vault holds secret-store RPC settings.
type Vault struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Portal holds the e-filing portal endpoints and pacing settings. The
// portal is uncontrolled third-party surface; every path here is a
// best-known-value, not a contract.
type Portal struct {
	BaseURL       string
	LoginPath     string
	DocumentsPath string
	ValidatePath  string
	TokenPath     string
	DownloadPath  string

	// EligibleClass is the notification classification eligible for
	// PDF download; everything else is not downloadable.
	EligibleClass string

	Timeout time.Duration
	// MinDelay/MaxDelay bound the randomized pause between portal
	// actions. The portal throttles rapid clients.
	MinDelay time.Duration
	MaxDelay time.Duration

	// DiagnosticsDir receives page captures taken on fatal scrape
	// errors.
	DiagnosticsDir string
}

// Summarizer holds the AI summarization settings.
type Summarizer struct {
	APIKey   string
	Model    string
	MaxWords int
	// MinInterval is the mandatory pause between model calls; the
	// target tier has a low requests-per-minute ceiling.
	MinInterval time.Duration
}

// Notifier holds the messaging-gateway settings.
type Notifier struct {
	GatewayURL string
	Token      string
	Template   string
	Timeout    time.Duration
}

// Scheduler holds the sync scheduling settings.
type Scheduler struct {
	Cron        string
	Concurrency int
	// StaleAfter is the age past which a running sync log is swept to
	// failed by the reconciliation pass.
	StaleAfter time.Duration
}

// Server holds the audit HTTP API settings.
type Server struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Storage holds local blob and fallback-log paths.
type Storage struct {
	BlobRoot string
	// AuditFallbackPath is the append-only file that receives audit
	// entries when the database sink is unreachable.
	AuditFallbackPath string
}

// Config is the root application configuration.
type Config struct {
	Environment string
	Logger      logger.Config
	Database    Database
	Redis       Redis
	Vault       Vault
	Portal      Portal
	Summarizer  Summarizer
	Notifier    Notifier
	Scheduler   Scheduler
	Server      Server
	Storage     Storage
}

// Load reads the configuration from Viper. Viper must already be
// initialized (defaults, config file, env bindings) by the CLI root.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: viper.GetString("app.environment"),
		Logger: logger.Config{
			Level:       viper.GetString("logger.level"),
			Development: viper.GetBool("logger.development"),
			Encoding:    viper.GetString("logger.encoding"),
		},
		Database: Database{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetString("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.name"),
			SSLMode:  viper.GetString("database.sslmode"),
		},
		Redis: Redis{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			LockTTL:  viper.GetDuration("redis.lock_ttl"),
		},
		Vault: Vault{
			BaseURL: viper.GetString("vault.base_url"),
			Token:   viper.GetString("vault.token"),
			Timeout: viper.GetDuration("vault.timeout"),
		},
		Portal: Portal{
			BaseURL:        viper.GetString("portal.base_url"),
			LoginPath:      viper.GetString("portal.login_path"),
			DocumentsPath:  viper.GetString("portal.documents_path"),
			ValidatePath:   viper.GetString("portal.validate_path"),
			TokenPath:      viper.GetString("portal.token_path"),
			DownloadPath:   viper.GetString("portal.download_path"),
			EligibleClass:  viper.GetString("portal.eligible_class"),
			Timeout:        viper.GetDuration("portal.timeout"),
			MinDelay:       viper.GetDuration("portal.min_delay"),
			MaxDelay:       viper.GetDuration("portal.max_delay"),
			DiagnosticsDir: viper.GetString("portal.diagnostics_dir"),
		},
		Summarizer: Summarizer{
			APIKey:      viper.GetString("summarizer.api_key"),
			Model:       viper.GetString("summarizer.model"),
			MaxWords:    viper.GetInt("summarizer.max_words"),
			MinInterval: viper.GetDuration("summarizer.min_interval"),
		},
		Notifier: Notifier{
			GatewayURL: viper.GetString("notifier.gateway_url"),
			Token:      viper.GetString("notifier.token"),
			Template:   viper.GetString("notifier.template"),
			Timeout:    viper.GetDuration("notifier.timeout"),
		},
		Scheduler: Scheduler{
			Cron:        viper.GetString("scheduler.cron"),
			Concurrency: viper.GetInt("scheduler.concurrency"),
			StaleAfter:  viper.GetDuration("scheduler.stale_after"),
		},
		Server: Server{
			Address:      viper.GetString("server.address"),
			ReadTimeout:  viper.GetDuration("server.read_timeout"),
			WriteTimeout: viper.GetDuration("server.write_timeout"),
		},
		Storage: Storage{
			BlobRoot:          viper.GetString("storage.blob_root"),
			AuditFallbackPath: viper.GetString("storage.audit_fallback_path"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" {
		return ErrMissingDatabase
	}
	if c.Vault.BaseURL == "" {
		return ErrMissingVault
	}
	if c.Portal.BaseURL == "" {
		return ErrMissingPortal
	}
	return nil
}
