package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	IdentityJWT      = "jwt"
	IdentityFirebase = "firebase"

	minJWTSecretLength = 32
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string  `mapstructure:"PORT"`
	GinMode                          string  `mapstructure:"GIN_MODE"`
	ClientURL                        string  `mapstructure:"CLIENT_URL"`
	DataRoot                         string  `mapstructure:"DATA_ROOT"`
	JWTSecret                        string  `mapstructure:"JWT_SECRET"`
	IdentityProvider                 string  `mapstructure:"IDENTITY_PROVIDER"`
	FirebaseProjectID                string  `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string  `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string  `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	AuditFirestoreEnabled            bool    `mapstructure:"AUDIT_FIRESTORE_ENABLED"`
	MaxFileSizeBytes                 int64   `mapstructure:"MAX_FILE_SIZE_BYTES"`
	MaxRepoSizeBytes                 int64   `mapstructure:"MAX_REPO_SIZE_BYTES"`
	TokenHashCost                    int     `mapstructure:"TOKEN_HASH_COST"`
	LockRetries                      int     `mapstructure:"LOCK_RETRIES"`
	LockMinBackoffMS                 int     `mapstructure:"LOCK_MIN_BACKOFF_MS"`
	LockBackoffFactor                float64 `mapstructure:"LOCK_BACKOFF_FACTOR"`
	BackupRetention                  int     `mapstructure:"BACKUP_RETENTION"`
	DefaultBranch                    string  `mapstructure:"DEFAULT_BRANCH"`
}

var envKeys = []string{
	"PORT", "GIN_MODE", "CLIENT_URL", "DATA_ROOT", "JWT_SECRET", "IDENTITY_PROVIDER",
	"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"AUDIT_FIRESTORE_ENABLED", "MAX_FILE_SIZE_BYTES", "MAX_REPO_SIZE_BYTES", "TOKEN_HASH_COST",
	"LOCK_RETRIES", "LOCK_MIN_BACKOFF_MS", "LOCK_BACKOFF_FACTOR", "BACKUP_RETENTION", "DEFAULT_BRANCH",
}

// LoadConfig loads configuration from the environment (and a .env file outside release
// mode) using Viper.
func LoadConfig() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		// A missing .env file is fine; the environment may be set directly.
		_ = godotenv.Load()
	}
	return loadFrom(viper.New())
}

func loadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	SetDefaults(v)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("DATA_ROOT", "./data")
	v.SetDefault("IDENTITY_PROVIDER", IdentityJWT)
	v.SetDefault("AUDIT_FIRESTORE_ENABLED", false)
	v.SetDefault("MAX_FILE_SIZE_BYTES", 5*1024*1024)
	v.SetDefault("MAX_REPO_SIZE_BYTES", 100*1024*1024)
	v.SetDefault("TOKEN_HASH_COST", 12)
	v.SetDefault("LOCK_RETRIES", 5)
	v.SetDefault("LOCK_MIN_BACKOFF_MS", 50)
	v.SetDefault("LOCK_BACKOFF_FACTOR", 2)
	v.SetDefault("BACKUP_RETENTION", 5)
	v.SetDefault("DEFAULT_BRANCH", "main")
}

// Validate checks cross-field constraints. An empty JWT secret is allowed here and filled
// in later by EnsureJWTSecret.
func (c *Config) Validate() error {
	switch c.IdentityProvider {
	case IdentityJWT:
		if c.JWTSecret != "" && len(c.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
		}
	case IdentityFirebase:
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required when IDENTITY_PROVIDER is firebase")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be %q or %q, got %q", IdentityJWT, IdentityFirebase, c.IdentityProvider)
	}
	if c.AuditFirestoreEnabled && c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required when AUDIT_FIRESTORE_ENABLED is set")
	}
	if c.DataRoot == "" {
		return errors.New("DATA_ROOT is required")
	}
	if c.MaxFileSizeBytes <= 0 || c.MaxRepoSizeBytes <= 0 {
		return errors.New("MAX_FILE_SIZE_BYTES and MAX_REPO_SIZE_BYTES must be positive")
	}
	if c.LockRetries < 0 || c.LockMinBackoffMS <= 0 {
		return errors.New("LOCK_RETRIES must not be negative and LOCK_MIN_BACKOFF_MS must be positive")
	}
	if strings.TrimSpace(c.DefaultBranch) == "" {
		return errors.New("DEFAULT_BRANCH is required")
	}
	return nil
}

// UsesFirebase reports whether any component needs the Firebase Admin SDK.
func (c *Config) UsesFirebase() bool {
	return c.IdentityProvider == IdentityFirebase || c.AuditFirestoreEnabled
}
