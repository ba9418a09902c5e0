// internal/pkg/config/config.go
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// devJWTSecret is the signing key outside production. The production
// validator rejects it outright.
const devJWTSecret = "development-secret-change-in-production"

// Config holds every setting the binaries need, grouped by concern.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Asynq    AsynqConfig
	AWS      AWSConfig
	Sales    SalesConfig
	Export   ExportConfig
	SMTP     SMTPConfig
	Security SecurityConfig
	Server   ServerConfig
}

// AppConfig identifies the running binary and controls log output.
type AppConfig struct {
	Name        string
	Environment string // development, staging, or production
	Version     string
	LogLevel    string
	LogFormat   string // json or text
	Debug       bool
}

// DatabaseConfig covers the pgx pool plus the migrations source.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	StatementCacheMode string
	EnableQueryLogging bool
	MigrationPath      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host            string
	Port            string
	Password        string
	DB              int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxConnAge      time.Duration
	PoolTimeout     time.Duration
	IdleTimeout     time.Duration
	TTL             time.Duration
}

// AsynqConfig drives both the task server and the scheduler.
type AsynqConfig struct {
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	Concurrency          int
	Queues               map[string]int // queue name to priority weight
	StrictPriority       bool
	RetryMax             int
	ShutdownTimeout      time.Duration
	HealthCheckInterval  time.Duration
	DelayedTaskCheckTime time.Duration
}

// AWSConfig covers S3 (MinIO in development) and Secrets Manager.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string // For MinIO in development
	UsePathStyle    bool   // For MinIO compatibility
	SecretsName     string // Secrets Manager blob, production only
}

// SalesConfig holds sale engine configuration
type SalesConfig struct {
	CheckDueSoonWindow time.Duration // how far ahead the reminder worker looks
	ReconcileInterval  time.Duration // how often ledger reconciliation runs
}

// ExportConfig holds report export configuration
type ExportConfig struct {
	ExcelMaxSizeMB    int
	ExportTimeout     time.Duration
	TempDir           string
	ArtifactRetention time.Duration // how long generated exports stay in the bucket
}

// SMTPConfig holds outgoing mail configuration. Reminder emails are
// logged instead of sent when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SecurityConfig groups auth and request hardening settings.
type SecurityConfig struct {
	JWTSecret            string
	JWTExpiration        time.Duration
	JWTRefreshExpiration time.Duration
	BcryptCost           int
	RateLimitRequests    int
	RateLimitDuration    time.Duration
	AllowedOrigins       []string
	TrustedProxies       []string
	SecureHeaders        bool
	CSRFProtection       bool
	RequestIDHeader      string
}

// ServerConfig shapes the HTTP listener and its timeouts.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GracefulTimeout   time.Duration
	EnablePprof       bool
	EnableMetrics     bool
	EnableHealthCheck bool
	TLSEnabled        bool
	TLSCertFile       string
	TLSKeyFile        string
}

// Load reads settings from the environment, overlays secrets in
// production, and validates the result.
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// .env files are a development convenience only.
	if env == "development" || env == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Debug("no .env file found, reading the process environment")
		} else {
			logger.Info(".env file loaded")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerDefaults(v, env)

	if env == "production" {
		if err := overlaySecrets(context.Background(), v, logger); err != nil {
			return nil, fmt.Errorf("failed to resolve secrets: %w", err)
		}
	}

	cfg := build(v, env)

	for _, validator := range validatorsFor(env) {
		if err := validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return cfg, nil
}

// overlaySecrets pulls the secret keys from AWS Secrets Manager and
// pins them in viper so they beat any environment value.
func overlaySecrets(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	secretsName := v.GetString("AWS_SECRETS_NAME")
	if secretsName == "" {
		logger.Info("AWS_SECRETS_NAME not set, secrets come from the environment")
		return nil
	}

	sm, err := NewAWSSecretsManager(ctx, v.GetString("AWS_REGION"), secretsName, logger)
	if err != nil {
		return err
	}

	resolved, err := sm.GetSecrets(ctx, secretKeys)
	if err != nil {
		return err
	}
	for key, val := range resolved {
		v.Set(key, val)
	}

	logger.Info("secrets overlaid from AWS Secrets Manager",
		slog.Int("count", len(resolved)))
	return nil
}

func registerDefaults(v *viper.Viper, env string) {
	dev := env == "development" || env == "local"

	defaults := map[string]any{
		"APP_NAME":    "storeflow-api",
		"APP_VERSION": "dev",
		"LOG_LEVEL":   "debug",
		"LOG_FORMAT":  "json",
		"APP_DEBUG":   dev,

		"DB_HOST":                 "localhost",
		"DB_PORT":                 "5432",
		"DB_USER":                 "storeflow",
		"DB_PASSWORD":             "storeflow_dev_2026",
		"DB_NAME":                 "storeflow",
		"DB_SSL_MODE":             "disable",
		"DB_MAX_CONNECTIONS":      25,
		"DB_MIN_CONNECTIONS":      5,
		"DB_CONNECTION_LIFETIME":  time.Hour,
		"DB_IDLE_TIME":            30 * time.Minute,
		"DB_HEALTH_CHECK_PERIOD":  time.Minute,
		"DB_CONNECT_TIMEOUT":      10 * time.Second,
		"DB_STATEMENT_CACHE_MODE": "describe",
		"DB_QUERY_LOGGING":        dev,
		"DB_MIGRATION_PATH":       "migrations",

		"REDIS_HOST":              "localhost",
		"REDIS_PORT":              "6379",
		"REDIS_PASSWORD":          "",
		"REDIS_DB":                0,
		"REDIS_MAX_RETRIES":       3,
		"REDIS_MIN_RETRY_BACKOFF": 8 * time.Millisecond,
		"REDIS_MAX_RETRY_BACKOFF": 512 * time.Millisecond,
		"REDIS_DIAL_TIMEOUT":      5 * time.Second,
		"REDIS_READ_TIMEOUT":      3 * time.Second,
		"REDIS_WRITE_TIMEOUT":     3 * time.Second,
		"REDIS_POOL_SIZE":         10,
		"REDIS_MIN_IDLE_CONNS":    2,
		"REDIS_MAX_CONN_AGE":      time.Duration(0),
		"REDIS_POOL_TIMEOUT":      4 * time.Second,
		"REDIS_IDLE_TIMEOUT":      5 * time.Minute,
		"REDIS_TTL":               time.Hour,

		"ASYNQ_REDIS_DB":              0,
		"ASYNQ_CONCURRENCY":           10,
		"ASYNQ_QUEUES":                "critical:6,default:3,low:1",
		"ASYNQ_STRICT_PRIORITY":       false,
		"ASYNQ_RETRY_MAX":             3,
		"ASYNQ_SHUTDOWN_TIMEOUT":      30 * time.Second,
		"ASYNQ_HEALTH_CHECK_INTERVAL": 30 * time.Second,
		"ASYNQ_DELAYED_TASK_CHECK":    5 * time.Second,

		"AWS_REGION":            "us-east-1",
		"AWS_ACCESS_KEY_ID":     "minioadmin",
		"AWS_SECRET_ACCESS_KEY": "minioadmin123",
		"AWS_S3_BUCKET":         "storeflow-exports",
		"AWS_S3_ENDPOINT":       "",
		"AWS_S3_PATH_STYLE":     dev,
		"AWS_SECRETS_NAME":      "",

		"CHECK_DUE_SOON_WINDOW": 72 * time.Hour,
		"RECONCILE_INTERVAL":    6 * time.Hour,

		"EXCEL_MAX_SIZE_MB": 100,
		"EXPORT_TIMEOUT":    5 * time.Minute,
		"TEMP_DIR":          "/tmp",
		"EXPORT_RETENTION":  30 * 24 * time.Hour,

		"SMTP_HOST":     "",
		"SMTP_PORT":     "587",
		"SMTP_USERNAME": "",
		"SMTP_PASSWORD": "",
		"SMTP_FROM":     "noreply@storeflow.io",

		"JWT_SECRET":             defaultJWTSecret(env),
		"JWT_EXPIRATION":         24 * time.Hour,
		"JWT_REFRESH_EXPIRATION": 7 * 24 * time.Hour,
		"BCRYPT_COST":            10,
		"RATE_LIMIT_REQUESTS":    100,
		"RATE_LIMIT_DURATION":    time.Minute,
		"ALLOWED_ORIGINS":        "*",
		"TRUSTED_PROXIES":        "",
		"SECURE_HEADERS":         env == "production",
		"CSRF_PROTECTION":        env == "production",
		"REQUEST_ID_HEADER":      "X-Request-ID",

		"SERVER_HOST":             "0.0.0.0",
		"SERVER_PORT":             "8080",
		"SERVER_READ_TIMEOUT":     15 * time.Second,
		"SERVER_WRITE_TIMEOUT":    15 * time.Second,
		"SERVER_IDLE_TIMEOUT":     60 * time.Second,
		"SERVER_MAX_HEADER_BYTES": 1 << 20,
		"SERVER_GRACEFUL_TIMEOUT": 30 * time.Second,
		"ENABLE_PPROF":            dev,
		"ENABLE_METRICS":          true,
		"ENABLE_HEALTH_CHECK":     true,
		"TLS_ENABLED":             false,
		"TLS_CERT_FILE":           "",
		"TLS_KEY_FILE":            "",
	}

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

func build(v *viper.Viper, env string) *Config {
	return &Config{
		App: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Environment: env,
			Version:     v.GetString("APP_VERSION"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			LogFormat:   v.GetString("LOG_FORMAT"),
			Debug:       v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSL_MODE"),
			MaxConnections:     v.GetInt32("DB_MAX_CONNECTIONS"),
			MinConnections:     v.GetInt32("DB_MIN_CONNECTIONS"),
			MaxConnLifetime:    v.GetDuration("DB_CONNECTION_LIFETIME"),
			MaxConnIdleTime:    v.GetDuration("DB_IDLE_TIME"),
			HealthCheckPeriod:  v.GetDuration("DB_HEALTH_CHECK_PERIOD"),
			ConnectTimeout:     v.GetDuration("DB_CONNECT_TIMEOUT"),
			StatementCacheMode: v.GetString("DB_STATEMENT_CACHE_MODE"),
			EnableQueryLogging: v.GetBool("DB_QUERY_LOGGING"),
			MigrationPath:      v.GetString("DB_MIGRATION_PATH"),
		},
		Redis: RedisConfig{
			Host:            v.GetString("REDIS_HOST"),
			Port:            v.GetString("REDIS_PORT"),
			Password:        v.GetString("REDIS_PASSWORD"),
			DB:              v.GetInt("REDIS_DB"),
			MaxRetries:      v.GetInt("REDIS_MAX_RETRIES"),
			MinRetryBackoff: v.GetDuration("REDIS_MIN_RETRY_BACKOFF"),
			MaxRetryBackoff: v.GetDuration("REDIS_MAX_RETRY_BACKOFF"),
			DialTimeout:     v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:     v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:        v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns:    v.GetInt("REDIS_MIN_IDLE_CONNS"),
			MaxConnAge:      v.GetDuration("REDIS_MAX_CONN_AGE"),
			PoolTimeout:     v.GetDuration("REDIS_POOL_TIMEOUT"),
			IdleTimeout:     v.GetDuration("REDIS_IDLE_TIMEOUT"),
			TTL:             v.GetDuration("REDIS_TTL"),
		},
		Asynq: AsynqConfig{
			RedisAddr:            fmt.Sprintf("%s:%s", v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT")),
			RedisPassword:        v.GetString("REDIS_PASSWORD"),
			RedisDB:              v.GetInt("ASYNQ_REDIS_DB"),
			Concurrency:          v.GetInt("ASYNQ_CONCURRENCY"),
			Queues:               parseQueues(v.GetString("ASYNQ_QUEUES")),
			StrictPriority:       v.GetBool("ASYNQ_STRICT_PRIORITY"),
			RetryMax:             v.GetInt("ASYNQ_RETRY_MAX"),
			ShutdownTimeout:      v.GetDuration("ASYNQ_SHUTDOWN_TIMEOUT"),
			HealthCheckInterval:  v.GetDuration("ASYNQ_HEALTH_CHECK_INTERVAL"),
			DelayedTaskCheckTime: v.GetDuration("ASYNQ_DELAYED_TASK_CHECK"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("AWS_REGION"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			S3Bucket:        v.GetString("AWS_S3_BUCKET"),
			S3Endpoint:      v.GetString("AWS_S3_ENDPOINT"),
			UsePathStyle:    v.GetBool("AWS_S3_PATH_STYLE"),
			SecretsName:     v.GetString("AWS_SECRETS_NAME"),
		},
		Sales: SalesConfig{
			CheckDueSoonWindow: v.GetDuration("CHECK_DUE_SOON_WINDOW"),
			ReconcileInterval:  v.GetDuration("RECONCILE_INTERVAL"),
		},
		Export: ExportConfig{
			ExcelMaxSizeMB:    v.GetInt("EXCEL_MAX_SIZE_MB"),
			ExportTimeout:     v.GetDuration("EXPORT_TIMEOUT"),
			TempDir:           v.GetString("TEMP_DIR"),
			ArtifactRetention: v.GetDuration("EXPORT_RETENTION"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		Security: SecurityConfig{
			JWTSecret:            v.GetString("JWT_SECRET"),
			JWTExpiration:        v.GetDuration("JWT_EXPIRATION"),
			JWTRefreshExpiration: v.GetDuration("JWT_REFRESH_EXPIRATION"),
			BcryptCost:           v.GetInt("BCRYPT_COST"),
			RateLimitRequests:    v.GetInt("RATE_LIMIT_REQUESTS"),
			RateLimitDuration:    v.GetDuration("RATE_LIMIT_DURATION"),
			AllowedOrigins:       splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
			TrustedProxies:       splitAndTrim(v.GetString("TRUSTED_PROXIES")),
			SecureHeaders:        v.GetBool("SECURE_HEADERS"),
			CSRFProtection:       v.GetBool("CSRF_PROTECTION"),
			RequestIDHeader:      v.GetString("REQUEST_ID_HEADER"),
		},
		Server: ServerConfig{
			Host:              v.GetString("SERVER_HOST"),
			Port:              v.GetString("SERVER_PORT"),
			ReadTimeout:       v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:      v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:       v.GetDuration("SERVER_IDLE_TIMEOUT"),
			MaxHeaderBytes:    v.GetInt("SERVER_MAX_HEADER_BYTES"),
			GracefulTimeout:   v.GetDuration("SERVER_GRACEFUL_TIMEOUT"),
			EnablePprof:       v.GetBool("ENABLE_PPROF"),
			EnableMetrics:     v.GetBool("ENABLE_METRICS"),
			EnableHealthCheck: v.GetBool("ENABLE_HEALTH_CHECK"),
			TLSEnabled:        v.GetBool("TLS_ENABLED"),
			TLSCertFile:       v.GetString("TLS_CERT_FILE"),
			TLSKeyFile:        v.GetString("TLS_KEY_FILE"),
		},
	}
}

// GetDatabaseURL builds the postgres URL used by migrations and tooling.
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetServerAddress is the host:port pair the HTTP server binds.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the production validators ran at load.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment reports whether dev conveniences like .env are active.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

func defaultJWTSecret(env string) string {
	if env == "production" {
		// No default in production, the validator demands a real value.
		return ""
	}
	return devJWTSecret
}

// splitAndTrim breaks a comma-separated env value into a slice,
// dropping empty entries.
func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseQueues turns "critical:6,default:3" into the priority map asynq
// expects, falling back to a single default queue on nonsense input.
func parseQueues(raw string) map[string]int {
	queues := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		name, prio, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		p, err := strconv.Atoi(strings.TrimSpace(prio))
		if err != nil {
			continue
		}
		queues[strings.TrimSpace(name)] = p
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}
	return queues
}
