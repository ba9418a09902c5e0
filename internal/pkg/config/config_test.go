// internal/pkg/config/config_test.go
package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load(testLogger())
	require.NoError(t, err)

	assert.Equal(t, "storeflow-api", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, int32(25), cfg.Database.MaxConnections)
	assert.Equal(t, 30*24*time.Hour, cfg.Export.ArtifactRetention)
	assert.Equal(t, devJWTSecret, cfg.Security.JWTSecret)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_CONNECTIONS", "50")
	t.Setenv("RECONCILE_INTERVAL", "2h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(testLogger())
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int32(50), cfg.Database.MaxConnections)
	assert.Equal(t, 2*time.Hour, cfg.Sales.ReconcileInterval)
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		cfg.Security.AllowedOrigins)
}

func TestLoad_RejectsInvalidPoolBounds(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_MAX_CONNECTIONS", "2")
	t.Setenv("DB_MIN_CONNECTIONS", "10")

	_, err := Load(testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNECTIONS")
}

func TestLoad_ProductionRejectsDevDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_SSL_MODE", "require")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com")

	// JWT_SECRET has no production default, so the load must fail.
	_, err := Load(testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredConfig)
}

func TestLoad_ProductionAcceptsCompleteConfig(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "an-actual-secret-with-enough-entropy-123")
	t.Setenv("DB_PASSWORD", "prod-password")
	t.Setenv("DB_SSL_MODE", "require")
	t.Setenv("SECURE_HEADERS", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com")

	cfg, err := Load(testLogger())
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Security.SecureHeaders)
}

func TestProductionValidator_RejectsWildcardOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "an-actual-secret-with-enough-entropy-123")
	t.Setenv("DB_PASSWORD", "prod-password")
	t.Setenv("DB_SSL_MODE", "require")
	t.Setenv("ALLOWED_ORIGINS", "*")

	_, err := Load(testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_ORIGINS")
}

func TestParseQueues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]int
	}{
		{
			name: "priorities",
			raw:  "critical:6,default:3,low:1",
			want: map[string]int{"critical": 6, "default": 3, "low": 1},
		},
		{
			name: "skips malformed pairs",
			raw:  "critical:6,broken,default:oops",
			want: map[string]int{"critical": 6},
		},
		{
			name: "falls back to default queue",
			raw:  "nonsense",
			want: map[string]int{"default": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseQueues(tt.raw))
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		User: "u", Password: "p", Host: "h", Port: "5432", Name: "d", SSLMode: "disable",
	}}
	assert.Equal(t, "postgresql://u:p@h:5432/d?sslmode=disable", cfg.GetDatabaseURL())
}
