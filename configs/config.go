package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Schedule ScheduleConfig
	Log      LogConfig
	NATS     NATSConfig
	Backup   BackupConfig
	Telegram TelegramConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    string
	OpsPort string
	Env     string
}

// DatabaseConfig holds database configuration. The URL names the control database;
// a promoted backup takes over ledger traffic after startup.
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration

	// AdminUsername and AdminPassword bootstrap the first admin account when set
	AdminUsername string
	AdminPassword string
}

// LedgerConfig holds submission limits and the plan seed file
type LedgerConfig struct {
	MinDeposit             decimal.Decimal
	MinWithdrawal          decimal.Decimal
	AutoConfirmInvestments bool
	PlansFile              string
}

// ScheduleConfig holds cron specs for background jobs
type ScheduleConfig struct {
	Accrual    string
	BackupSync string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string
	File  string
}

// NATSConfig enables cross-instance push when URL is set
type NATSConfig struct {
	URL string
}

// BackupConfig enables the S3 export archive when S3Bucket is set
type BackupConfig struct {
	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

// TelegramConfig enables admin alerts when both fields are set
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	minDeposit, err := getEnvDecimal("MIN_DEPOSIT", "10")
	if err != nil {
		return nil, err
	}
	minWithdrawal, err := getEnvDecimal("MIN_WITHDRAWAL", "10")
	if err != nil {
		return nil, err
	}
	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			OpsPort: getEnv("OPS_PORT", "9090"),
			Env:     getEnv("GO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      ttl,
			AdminUsername: getEnv("ADMIN_USERNAME", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Ledger: LedgerConfig{
			MinDeposit:             minDeposit,
			MinWithdrawal:          minWithdrawal,
			AutoConfirmInvestments: getEnvBool("AUTO_CONFIRM_INVESTMENTS", true),
			PlansFile:              getEnv("PLANS_FILE", "configs/plans.yaml"),
		},
		Schedule: ScheduleConfig{
			Accrual:    getEnv("ACCRUAL_SCHEDULE", "@every 5m"),
			BackupSync: getEnv("BACKUP_SYNC_SCHEDULE", "@hourly"),
		},
		Log: LogConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
			File:  getEnv("LOG_FILE", ""),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Backup: BackupConfig{
			S3Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			S3Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
			S3Prefix:    getEnv("BACKUP_S3_PREFIX", "exports"),
			S3AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			S3Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
	}, nil
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.Auth.AdminUsername != "" && len(c.Auth.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters")
	}
	if !c.Ledger.MinDeposit.IsPositive() {
		return fmt.Errorf("MIN_DEPOSIT must be positive")
	}
	if !c.Ledger.MinWithdrawal.IsPositive() {
		return fmt.Errorf("MIN_WITHDRAWAL must be positive")
	}
	if c.Server.Port == c.Server.OpsPort {
		return fmt.Errorf("PORT and OPS_PORT must differ")
	}
	if _, err := cron.ParseStandard(c.Schedule.Accrual); err != nil {
		return fmt.Errorf("invalid ACCRUAL_SCHEDULE: %w", err)
	}
	if _, err := cron.ParseStandard(c.Schedule.BackupSync); err != nil {
		return fmt.Errorf("invalid BACKUP_SYNC_SCHEDULE: %w", err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.Log.Level)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
