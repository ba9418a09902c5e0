// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	redis_a "github.com/emartell/storeflow-be/internal/adapters/redis_adapter"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/core/services"
	"github.com/emartell/storeflow-be/internal/handlers"
	"github.com/emartell/storeflow-be/internal/handlers/middleware"
	"github.com/emartell/storeflow-be/internal/pkg/config"
	"github.com/emartell/storeflow-be/internal/pkg/logger"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	slogger := logger.SetupLogger("debug", "json")

	if err := run(slogger); err != nil {
		slogger.Error("api exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(slogger *slog.Logger) error {
	slogger.Info("starting storeflow sales and inventory system",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion),
	)

	cfg, err := config.Load(slogger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Swap in the logger the config asks for; the bootstrap one only
	// covers the window before config is available.
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slogger.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.App.LogLevel),
	)

	ctx := context.Background()

	app, err := buildApp(ctx, cfg, slogger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.cleanup()

	// Migrations run in-process outside production; production deploys
	// apply them as a separate release step.
	if cfg.App.Environment != "production" {
		if err := runMigrations(ctx, cfg, slogger); err != nil {
			slogger.Warn("migrations failed, continuing anyway", slog.String("error", err.Error()))
		}
	}

	server := newHTTPServer(cfg, app, slogger)

	serverErrors := make(chan error, 1)
	go func() {
		slogger.Info("starting HTTP server",
			slog.String("address", cfg.GetServerAddress()),
			slog.Bool("tls", cfg.Server.TLSEnabled),
		)
		if cfg.Server.TLSEnabled {
			serverErrors <- server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-stopCtx.Done():
		slogger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("graceful shutdown failed, forcing close", slog.String("error", err.Error()))
			server.Close()
		}
	}

	slogger.Info("server shutdown complete")
	return nil
}

// application bundles everything the HTTP layer needs, built once at
// startup and torn down in reverse order on exit.
type application struct {
	database       *db.Database
	redisClient    *redis.Client
	cache          ports.CacheRepository
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector

	saleService  *services.SaleService
	stockService *services.StockService

	saleHandler      *handlers.SaleHandler
	stockHandler     *handlers.StockHandler
	productHandler   *handlers.ProductHandler
	customerHandler  *handlers.CustomerHandler
	supplierHandler  *handlers.SupplierHandler
	healthHandler    *handlers.HealthHandler
	dashboardHandler *handlers.DashboardHandler
	exportHandler    *handlers.ExportHandler
}

func (a *application) cleanup() {
	if a.asynqClient != nil {
		a.asynqClient.Close()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	logger.Info("connecting to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Name),
	)
	database, err := db.NewDatabase(ctx, databaseConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app.database = database

	logger.Info("connecting to Redis",
		slog.String("host", cfg.Redis.Host),
		slog.String("port", cfg.Redis.Port),
	)
	redisClient := redis.NewClient(redisOptions(cfg))
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	app.redisClient = redisClient
	app.cache = redis_a.NewCache(redisClient, cfg.Redis.TTL, logger)

	asynqRedisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}
	app.asynqClient = asynq.NewClient(asynqRedisOpt)
	app.asynqInspector = asynq.NewInspector(asynqRedisOpt)

	productRepo := db.NewProductRepository(database, logger)
	movementRepo := db.NewMovementRepository(database, logger)
	saleRepo := db.NewSaleRepository(database, logger)
	customerRepo := db.NewCustomerRepository(database, logger)
	supplierRepo := db.NewSupplierRepository(database, logger)

	app.saleService = services.NewSaleService(
		database, saleRepo, movementRepo, productRepo, customerRepo, app.cache, logger)
	app.stockService = services.NewStockService(
		database, movementRepo, productRepo, supplierRepo, app.cache, logger)

	app.saleHandler = handlers.NewSaleHandler(app.saleService, logger)
	app.stockHandler = handlers.NewStockHandler(app.stockService, logger)
	app.productHandler = handlers.NewProductHandler(productRepo, logger)
	app.customerHandler = handlers.NewCustomerHandler(customerRepo, logger)
	app.supplierHandler = handlers.NewSupplierHandler(supplierRepo, logger)
	app.healthHandler = handlers.NewHealthHandler(database, redisClient, app.asynqInspector, cfg, logger)
	app.dashboardHandler = handlers.NewDashboardHandler(
		database, app.cache, cfg.Sales.CheckDueSoonWindow, logger)
	app.exportHandler = handlers.NewExportHandler(database, app.cache, logger)

	logger.Info("all dependencies initialized")
	return app, nil
}

func databaseConfig(cfg *config.Config) *db.Config {
	return &db.Config{
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		User:               cfg.Database.User,
		Password:           cfg.Database.Password,
		Database:           cfg.Database.Name,
		SSLMode:            cfg.Database.SSLMode,
		MaxConnections:     cfg.Database.MaxConnections,
		MinConnections:     cfg.Database.MinConnections,
		MaxConnLifetime:    cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:    cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod:  cfg.Database.HealthCheckPeriod,
		ConnectTimeout:     cfg.Database.ConnectTimeout,
		StatementCacheMode: cfg.Database.StatementCacheMode,
		EnableQueryLogging: cfg.Database.EnableQueryLogging,
	}
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:            fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: cfg.Redis.MinRetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
		DialTimeout:     cfg.Redis.DialTimeout,
		ReadTimeout:     cfg.Redis.ReadTimeout,
		WriteTimeout:    cfg.Redis.WriteTimeout,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		ConnMaxLifetime: cfg.Redis.MaxConnAge,
		PoolTimeout:     cfg.Redis.PoolTimeout,
		ConnMaxIdleTime: cfg.Redis.IdleTimeout,
	}
}

func newHTTPServer(cfg *config.Config, app *application, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	registerRoutes(mux, app, cfg)

	// Wrapped outermost-last, so secure headers and CORS run before
	// rate limiting and request logging.
	var handler http.Handler = mux
	if cfg.App.Environment != "test" {
		handler = middleware.RequestID(handler)
		handler = middleware.Logger(logger)(handler)
		handler = middleware.Recovery(logger)(handler)
	}
	if cfg.Security.RateLimitRequests > 0 {
		handler = middleware.RateLimit(cfg.Security.RateLimitRequests, cfg.Security.RateLimitDuration)(handler)
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		handler = middleware.CORS(cfg.Security.AllowedOrigins)(handler)
	}
	if cfg.Security.SecureHeaders {
		handler = middleware.SecureHeaders(handler)
	}

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

func registerRoutes(mux *http.ServeMux, app *application, cfg *config.Config) {
	apiV1 := "/api/v1"

	if cfg.Server.EnableHealthCheck {
		mux.HandleFunc("GET /health", app.healthHandler.Health)
		mux.HandleFunc("GET /ready", app.healthHandler.Readiness)
		mux.HandleFunc("GET "+apiV1+"/health", app.healthHandler.Health)
	}

	mux.HandleFunc("POST "+apiV1+"/sales", app.saleHandler.CreateSale)
	mux.HandleFunc("GET "+apiV1+"/sales/{id}", app.saleHandler.GetSale)
	mux.HandleFunc("GET "+apiV1+"/sales", app.saleHandler.ListSales)
	mux.HandleFunc("DELETE "+apiV1+"/sales/{id}", app.saleHandler.DeleteSale)
	mux.HandleFunc("POST "+apiV1+"/sales/availability", app.saleHandler.CheckAvailability)
	mux.HandleFunc("POST "+apiV1+"/sales/{id}/pay", app.saleHandler.MarkPaid)
	mux.HandleFunc("POST "+apiV1+"/sales/{id}/bounce", app.saleHandler.MarkBounced)
	mux.HandleFunc("POST "+apiV1+"/sales/{id}/clear-bounce", app.saleHandler.ClearBounced)

	mux.HandleFunc("POST "+apiV1+"/stock/movements", app.stockHandler.RecordMovement)
	mux.HandleFunc("GET "+apiV1+"/stock/movements", app.stockHandler.ListMovements)
	mux.HandleFunc("GET "+apiV1+"/stock/{product_id}/available", app.stockHandler.GetAvailability)
	mux.HandleFunc("GET "+apiV1+"/stock/{product_id}", app.stockHandler.GetStockDetail)

	mux.HandleFunc("POST "+apiV1+"/products", app.productHandler.CreateProduct)
	mux.HandleFunc("GET "+apiV1+"/products/{id}", app.productHandler.GetProduct)
	mux.HandleFunc("PUT "+apiV1+"/products/{id}", app.productHandler.UpdateProduct)
	mux.HandleFunc("GET "+apiV1+"/products", app.productHandler.ListProducts)
	mux.HandleFunc("GET "+apiV1+"/products/low-stock", app.productHandler.LowStock)
	mux.HandleFunc("DELETE "+apiV1+"/products/{id}", app.productHandler.DeactivateProduct)

	mux.HandleFunc("POST "+apiV1+"/customers", app.customerHandler.CreateCustomer)
	mux.HandleFunc("GET "+apiV1+"/customers/{id}", app.customerHandler.GetCustomer)
	mux.HandleFunc("POST "+apiV1+"/suppliers", app.supplierHandler.CreateSupplier)
	mux.HandleFunc("GET "+apiV1+"/suppliers/{id}", app.supplierHandler.GetSupplier)

	mux.HandleFunc("GET "+apiV1+"/export/excel", app.exportHandler.ExportExcel)
	mux.HandleFunc("GET "+apiV1+"/export/json", app.exportHandler.ExportJSON)

	mux.HandleFunc("GET "+apiV1+"/dashboard", app.dashboardHandler.GetDashboard)

	if cfg.Server.EnablePprof && cfg.IsDevelopment() {
		mux.HandleFunc("GET /debug/pprof/", http.HandlerFunc(http.DefaultServeMux.ServeHTTP))
	}
}

func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("running database migrations")

	return db.RunMigrationsWithRetry(ctx, &db.MigrationConfig{
		DatabaseURL: cfg.GetDatabaseURL(),
		SourcePath:  cfg.Database.MigrationPath,
		TableName:   "schema_migrations",
		SchemaName:  "public",
	}, logger, 3)
}
