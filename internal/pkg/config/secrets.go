// internal/pkg/config/secrets.go
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves sensitive settings at load time. Production
// uses AWS Secrets Manager, everything else falls back to plain
// environment variables.
type SecretsManager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecrets(ctx context.Context, keys []string) (map[string]string, error)
	Refresh(ctx context.Context) error
}

// secretKeys are the settings Load overlays from the secrets backend.
var secretKeys = []string{
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"JWT_SECRET",
	"AWS_SECRET_ACCESS_KEY",
	"SMTP_PASSWORD",
}

// AWSSecretsManager reads one JSON secret blob from AWS Secrets Manager
// and serves individual keys out of a TTL cache.
type AWSSecretsManager struct {
	client     *secretsmanager.Client
	secretName string
	ttl        time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	cache     map[string]string
	fetchedAt time.Time
}

var _ SecretsManager = (*AWSSecretsManager)(nil)

// NewAWSSecretsManager builds a client for the named secret using the
// default AWS credential chain.
func NewAWSSecretsManager(ctx context.Context, region, secretName string, logger *slog.Logger) (*AWSSecretsManager, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for secrets: %w", err)
	}

	return &AWSSecretsManager{
		client:     secretsmanager.NewFromConfig(awsCfg),
		secretName: secretName,
		ttl:        5 * time.Minute,
		logger:     logger.With(slog.String("component", "secrets")),
		cache:      make(map[string]string),
	}, nil
}

// GetSecret resolves one key from the secret blob.
func (sm *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	secrets, err := sm.GetSecrets(ctx, []string{key})
	if err != nil {
		return "", err
	}
	val, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret %s not present in %s", key, sm.secretName)
	}
	return val, nil
}

// GetSecrets resolves a set of keys, hitting AWS only when the cache
// has expired or is missing one of them.
func (sm *AWSSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	if cached, ok := sm.fromCache(keys); ok {
		return cached, nil
	}

	blob, err := sm.fetch(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := blob[key]; ok {
			resolved[key] = val
		} else {
			sm.logger.Warn("secret key not present in blob", slog.String("key", key))
		}
	}
	return resolved, nil
}

// Refresh drops the cache so the next read hits AWS.
func (sm *AWSSecretsManager) Refresh(ctx context.Context) error {
	sm.mu.Lock()
	sm.cache = make(map[string]string)
	sm.fetchedAt = time.Time{}
	sm.mu.Unlock()

	_, err := sm.fetch(ctx)
	return err
}

func (sm *AWSSecretsManager) fromCache(keys []string) (map[string]string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if time.Since(sm.fetchedAt) >= sm.ttl || len(sm.cache) == 0 {
		return nil, false
	}

	cached := make(map[string]string, len(keys))
	for _, key := range keys {
		val, ok := sm.cache[key]
		if !ok {
			return nil, false
		}
		cached[key] = val
	}
	return cached, true
}

func (sm *AWSSecretsManager) fetch(ctx context.Context) (map[string]string, error) {
	sm.logger.Info("fetching secrets", slog.String("secret_name", sm.secretName))

	out, err := sm.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(sm.secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %s: %w", sm.secretName, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string payload", sm.secretName)
	}

	var blob map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &blob); err != nil {
		return nil, fmt.Errorf("failed to parse secret %s as JSON: %w", sm.secretName, err)
	}

	sm.mu.Lock()
	sm.cache = blob
	sm.fetchedAt = time.Now()
	sm.mu.Unlock()

	return blob, nil
}

// EnvSecretsManager reads secrets straight from the process
// environment. Used everywhere outside production.
type EnvSecretsManager struct{}

var _ SecretsManager = (*EnvSecretsManager)(nil)

// NewEnvSecretsManager creates the environment-backed secrets manager.
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

func (em *EnvSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return val, nil
}

func (em *EnvSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	secrets := make(map[string]string, len(keys))
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			secrets[key] = val
		}
	}
	return secrets, nil
}

func (em *EnvSecretsManager) Refresh(ctx context.Context) error {
	return nil
}
