// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/adapters/storage"
	"github.com/emartell/storeflow-be/internal/pkg/config"
	"github.com/emartell/storeflow-be/internal/pkg/logger"
	"github.com/emartell/storeflow-be/internal/workers"
)

func main() {
	slogger := logger.SetupLogger("info", "json")

	if err := run(slogger); err != nil {
		slogger.Error("worker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(slogger *slog.Logger) error {
	cfg, err := config.Load(slogger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slogger.Info("starting worker",
		slog.String("environment", cfg.App.Environment),
		slog.String("redis_addr", cfg.Asynq.RedisAddr))

	ctx := context.Background()

	// The worker shares the API's pool settings except for size; task
	// handlers hold few connections at a time.
	workerDBConfig := databaseConfig(cfg)
	workerDBConfig.MaxConnections = 10
	workerDBConfig.MinConnections = 2

	database, err := db.NewDatabase(ctx, workerDBConfig, slogger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	// Object storage holds generated export artifacts.
	storageClient, err := storage.NewS3Storage(ctx, &storage.S3Config{
		Region:          cfg.AWS.Region,
		Bucket:          cfg.AWS.S3Bucket,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.S3Endpoint,
		UsePathStyle:    cfg.AWS.UsePathStyle,
	}, slogger)
	if err != nil {
		return fmt.Errorf("connect object storage: %w", err)
	}

	saleRepo := db.NewSaleRepository(database, slogger)
	customerRepo := db.NewCustomerRepository(database, slogger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}

	// The reminder handler enqueues email tasks through this client.
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Asynq.Concurrency,
		Queues:          cfg.Asynq.Queues,
		StrictPriority:  cfg.Asynq.StrictPriority,
		ErrorHandler:    asynq.ErrorHandlerFunc(logTaskError),
		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: cfg.Asynq.ShutdownTimeout,
		HealthCheckFunc: logUnhealthy,
		Logger:          newAsynqLogger(slogger),
	})

	mux := asynq.NewServeMux()

	excelProcessor := workers.NewExcelProcessor(database, storageClient, slogger)
	mux.HandleFunc(workers.TypeExportExcel, excelProcessor.GenerateExport)

	reminderProcessor := workers.NewReminderProcessor(
		saleRepo, customerRepo, client, cfg.Sales.CheckDueSoonWindow, slogger)
	mux.HandleFunc(workers.TypeCheckReminders, reminderProcessor.RemindDueChecks)

	notificationProcessor := workers.NewNotificationProcessor(cfg, slogger)
	mux.HandleFunc(workers.TypeSendEmail, notificationProcessor.SendEmail)

	cleanupProcessor := workers.NewCleanupProcessor(database, storageClient, cfg, slogger)
	mux.HandleFunc(workers.TypeReconcileLedger, cleanupProcessor.ReconcileLedger)
	mux.HandleFunc(workers.TypeCleanupTempFiles, cleanupProcessor.CleanupTempFiles)
	mux.HandleFunc(workers.TypeCleanupExports, cleanupProcessor.CleanupExportArtifacts)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: newAsynqLogger(slogger),
	})
	if err := registerSchedules(scheduler, cfg); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Run(mux); err != nil {
			slogger.Error("worker server stopped", slog.String("error", err.Error()))
			shutdown <- syscall.SIGTERM
		}
	}()
	go func() {
		if err := scheduler.Run(); err != nil {
			slogger.Error("scheduler stopped", slog.String("error", err.Error()))
			shutdown <- syscall.SIGTERM
		}
	}()

	slogger.Info("worker started",
		slog.Int("concurrency", cfg.Asynq.Concurrency),
		slog.Any("queues", cfg.Asynq.Queues))

	sig := <-shutdown
	slogger.Info("shutdown signal received", slog.String("signal", sig.String()))

	scheduler.Shutdown()
	srv.Shutdown()
	slogger.Info("worker shutdown complete")
	return nil
}

// registerSchedules wires the periodic tasks: check reminders daily,
// ledger reconciliation on its configured interval, and the two cleanup
// passes overnight.
func registerSchedules(scheduler *asynq.Scheduler, cfg *config.Config) error {
	schedules := []struct {
		spec     string
		taskType string
	}{
		{"@daily", workers.TypeCheckReminders},
		{fmt.Sprintf("@every %s", cfg.Sales.ReconcileInterval), workers.TypeReconcileLedger},
		{"0 3 * * *", workers.TypeCleanupTempFiles},
		{"30 3 * * *", workers.TypeCleanupExports},
	}

	for _, s := range schedules {
		if _, err := scheduler.Register(s.spec, asynq.NewTask(s.taskType, nil)); err != nil {
			return fmt.Errorf("register schedule %q for %s: %w", s.spec, s.taskType, err)
		}
	}
	return nil
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

func logTaskError(ctx context.Context, task *asynq.Task, err error) {
	slog.ErrorContext(ctx, "task processing failed",
		slog.String("type", task.Type()),
		slog.String("payload", string(task.Payload())),
		slog.String("error", err.Error()))
}

// retryDelay doubles per attempt from one second, capped at ten minutes.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Second << uint(n)
	if delay > 10*time.Minute || delay <= 0 {
		return 10 * time.Minute
	}
	return delay
}

func logUnhealthy(err error) {
	if err != nil {
		slog.Error("worker health check failed", slog.String("error", err.Error()))
	}
}

// asynqLogger adapts slog to asynq's Logger interface.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(logger *slog.Logger) *asynqLogger {
	return &asynqLogger{logger: logger.With(slog.String("component", "asynq"))}
}

func (l *asynqLogger) log(level slog.Level, args []interface{}) {
	l.logger.Log(context.Background(), level, fmt.Sprint(args...))
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log(slog.LevelDebug, args) }
func (l *asynqLogger) Info(args ...interface{})  { l.log(slog.LevelInfo, args) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log(slog.LevelWarn, args) }
func (l *asynqLogger) Error(args ...interface{}) { l.log(slog.LevelError, args) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log(slog.LevelError, args)
	os.Exit(1)
}
