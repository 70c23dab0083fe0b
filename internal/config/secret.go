package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureJWTSecret fills cfg.JWTSecret when the environment did not provide one. The secret
// is read from path, or generated once and stored there with mode 0600.
func EnsureJWTSecret(cfg *Config, path string) error {
	if cfg.IdentityProvider != IdentityJWT || cfg.JWTSecret != "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(content))
		if len(secret) < minJWTSecretLength {
			return fmt.Errorf("stored JWT secret in %s is shorter than %d characters", path, minJWTSecretLength)
		}
		cfg.JWTSecret = secret
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read JWT secret: %w", err)
	}

	raw := make([]byte, 48)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	secret := hex.EncodeToString(raw)
	if err := writeSecret(path, secret); err != nil {
		return err
	}
	cfg.JWTSecret = secret
	return nil
}

func writeSecret(path, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jwt-secret-*")
	if err != nil {
		return fmt.Errorf("failed to create temp secret file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict secret file: %w", err)
	}
	if _, err := tmp.WriteString(secret + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close secret file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store JWT secret: %w", err)
	}
	return nil
}
