// Package config loads server settings from NOTIFLY_* environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dukerupert/notifly/internal/backup"
)

const envPrefix = "NOTIFLY"

type Config struct {
	Port     string `mapstructure:"port"`
	DBPath   string `mapstructure:"db_path"`
	BaseURL  string `mapstructure:"base_url"`
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	VAPIDSubject    string `mapstructure:"vapid_subject"`

	PostmarkToken string `mapstructure:"postmark_token"`
	EmailFrom     string `mapstructure:"email_from"`

	// AdminEmail, when set, is created as an admin user at startup.
	AdminEmail string `mapstructure:"admin_email"`

	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	EventRateLimit  int           `mapstructure:"event_rate_limit"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	BackupS3Endpoint  string        `mapstructure:"backup_s3_endpoint"`
	BackupS3Bucket    string        `mapstructure:"backup_s3_bucket"`
	BackupS3Region    string        `mapstructure:"backup_s3_region"`
	BackupS3AccessKey string        `mapstructure:"backup_s3_access_key"`
	BackupS3SecretKey string        `mapstructure:"backup_s3_secret_key"`
	BackupS3Prefix    string        `mapstructure:"backup_s3_prefix"`
	BackupPassphrase  string        `mapstructure:"backup_passphrase"`
	BackupInterval    time.Duration `mapstructure:"backup_interval"`
	BackupRetention   time.Duration `mapstructure:"backup_retention"`
}

// Backup returns the backup manager settings.
func (c *Config) Backup() backup.Config {
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  c.BackupS3Endpoint,
			Bucket:    c.BackupS3Bucket,
			Region:    c.BackupS3Region,
			AccessKey: c.BackupS3AccessKey,
			SecretKey: c.BackupS3SecretKey,
			Prefix:    c.BackupS3Prefix,
		},
		Passphrase: c.BackupPassphrase,
		Interval:   c.BackupInterval,
		Retention:  c.BackupRetention,
	}
}

// PushEnabled reports whether both VAPID keys are present.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Load reads configuration. path may be empty; a missing file is not an error
// but a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "notifly.db")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "720h")
	v.SetDefault("vapid_public_key", "")
	v.SetDefault("vapid_private_key", "")
	v.SetDefault("vapid_subject", "mailto:admin@localhost")
	v.SetDefault("postmark_token", "")
	v.SetDefault("email_from", "notifications@localhost")
	v.SetDefault("admin_email", "")
	v.SetDefault("cleanup_interval", "1h")
	v.SetDefault("event_rate_limit", 60)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("backup_s3_endpoint", "")
	v.SetDefault("backup_s3_bucket", "")
	v.SetDefault("backup_s3_region", "us-east-1")
	v.SetDefault("backup_s3_access_key", "")
	v.SetDefault("backup_s3_secret_key", "")
	v.SetDefault("backup_s3_prefix", "notifly/")
	v.SetDefault("backup_passphrase", "")
	v.SetDefault("backup_interval", "24h")
	v.SetDefault("backup_retention", "720h")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%s_JWT_SECRET is required", envPrefix)
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("%s_VAPID_PUBLIC_KEY and %s_VAPID_PRIVATE_KEY must be set together", envPrefix, envPrefix)
	}
	if c.EventRateLimit <= 0 {
		return fmt.Errorf("event_rate_limit must be positive, got %d", c.EventRateLimit)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %s", c.CleanupInterval)
	}
	if c.BackupS3Bucket != "" && c.BackupPassphrase == "" {
		return fmt.Errorf("%s_BACKUP_PASSPHRASE is required when a backup bucket is set", envPrefix)
	}
	return nil
}
