// internal/pkg/config/validators.go
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingRequiredConfig marks settings that have no usable value.
// Secrets left unresolved keep their MISSING_ placeholder, so the
// validators can tell "not set" from "set to something odd".
var ErrMissingRequiredConfig = errors.New("missing required configuration")

// Validator checks one aspect of a loaded Config. Load runs each
// registered validator and fails on the first complaint.
type Validator interface {
	Validate(cfg *Config) error
}

// validatorsFor returns the validation chain for an environment.
// Production adds the strict checks on top of the baseline.
func validatorsFor(env string) []Validator {
	chain := []Validator{
		&baseValidator{},
		&securityValidator{},
	}
	if env == "production" {
		chain = append(chain, &productionValidator{})
	}
	return chain
}

// baseValidator checks fields every environment needs.
type baseValidator struct{}

func (v *baseValidator) Validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"DB_HOST", cfg.Database.Host},
		{"DB_NAME", cfg.Database.Name},
		{"DB_USER", cfg.Database.User},
		{"SERVER_PORT", cfg.Server.Port},
		{"REDIS_HOST", cfg.Redis.Host},
	}
	for _, r := range required {
		if r.value == "" || strings.HasPrefix(r.value, "MISSING_") {
			return fmt.Errorf("%w: %s", ErrMissingRequiredConfig, r.name)
		}
	}

	if cfg.Database.MaxConnections < cfg.Database.MinConnections {
		return errors.New("DB_MAX_CONNECTIONS must be >= DB_MIN_CONNECTIONS")
	}
	if cfg.Redis.PoolSize <= 0 {
		return errors.New("REDIS_POOL_SIZE must be positive")
	}
	if cfg.Security.RateLimitRequests <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be positive")
	}
	if cfg.Export.ArtifactRetention <= 0 {
		return errors.New("EXPORT_RETENTION must be positive")
	}
	if cfg.Asynq.Concurrency <= 0 {
		return errors.New("ASYNQ_CONCURRENCY must be positive")
	}

	return nil
}

// securityValidator checks knobs that weaken the deployment when
// misconfigured in any environment.
type securityValidator struct{}

func (v *securityValidator) Validate(cfg *Config) error {
	if cfg.Security.BcryptCost < 10 || cfg.Security.BcryptCost > 15 {
		return errors.New("BCRYPT_COST must be between 10 and 15")
	}

	if cfg.Server.TLSEnabled && (cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled")
	}

	for _, origin := range cfg.Security.AllowedOrigins {
		if origin == "*" && cfg.IsProduction() {
			return errors.New("wildcard ALLOWED_ORIGINS is not allowed in production")
		}
	}

	return nil
}

// productionValidator rejects development defaults that must never
// reach a real deployment.
type productionValidator struct{}

func (v *productionValidator) Validate(cfg *Config) error {
	if cfg.Security.JWTSecret == "" || cfg.Security.JWTSecret == devJWTSecret {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingRequiredConfig)
	}
	if len(cfg.Security.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if strings.HasPrefix(cfg.Database.Password, "MISSING_") || cfg.Database.Password == "" {
		return fmt.Errorf("%w: DB_PASSWORD", ErrMissingRequiredConfig)
	}
	if cfg.Database.SSLMode == "disable" {
		return errors.New("DB_SSL_MODE must not be disable in production")
	}
	if !cfg.Security.SecureHeaders {
		return errors.New("SECURE_HEADERS must be enabled in production")
	}
	if len(cfg.Security.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must be configured in production")
	}
	return nil
}
