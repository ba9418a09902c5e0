// internal/workers/cleanup_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/adapters/storage"
	"github.com/emartell/storeflow-be/internal/pkg/config"
	"github.com/hibiken/asynq"
)

// CleanupProcessor handles periodic housekeeping tasks.
type CleanupProcessor struct {
	db      *db.Database
	storage storage.StorageClient
	config  *config.Config
	logger  *slog.Logger
}

// NewCleanupProcessor creates a new cleanup processor
func NewCleanupProcessor(db *db.Database, storageClient storage.StorageClient, config *config.Config, logger *slog.Logger) *CleanupProcessor {
	return &CleanupProcessor{
		db:      db,
		storage: storageClient,
		config:  config,
		logger:  logger.With(slog.String("processor", "cleanup")),
	}
}

// ReconcileLedger compares every product's stock counter against the sum of
// remaining batch quantities and logs any row where the two disagree. Drift
// here means a transaction committed a partial update, which should be
// impossible; every hit needs investigation.
func (p *CleanupProcessor) ReconcileLedger(ctx context.Context, t *asynq.Task) error {
	p.logger.InfoContext(ctx, "reconciling stock counters against the ledger")

	query := `
		SELECT p.id, p.code, p.current_stock, COALESCE(SUM(m.remaining_quantity), 0) AS ledger_stock
		FROM products p
		LEFT JOIN stock_movements m
		       ON m.product_id = p.id AND m.movement_type = 'IN'
		GROUP BY p.id, p.code, p.current_stock
		HAVING p.current_stock <> COALESCE(SUM(m.remaining_quantity), 0)
	`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to scan for ledger drift: %w", err)
	}
	defer rows.Close()

	driftCount := 0
	for rows.Next() {
		var (
			id, code             string
			counter, ledgerStock int
		)
		if err := rows.Scan(&id, &code, &counter, &ledgerStock); err != nil {
			return fmt.Errorf("failed to scan drift row: %w", err)
		}

		driftCount++
		p.logger.ErrorContext(ctx, "stock counter drifted from ledger",
			slog.String("product_id", id),
			slog.String("product_code", code),
			slog.Int("counter", counter),
			slog.Int("ledger", ledgerStock))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed reading drift rows: %w", err)
	}

	p.logger.InfoContext(ctx, "ledger reconciliation finished",
		slog.Int("drifted_products", driftCount))

	return nil
}

// CleanupTempFiles removes stale export scratch files.
func (p *CleanupProcessor) CleanupTempFiles(ctx context.Context, t *asynq.Task) error {
	p.logger.InfoContext(ctx, "cleaning up temp files")

	const maxAge = 24 * time.Hour

	var deleted int
	walkErr := filepath.WalkDir(p.config.Export.TempDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if time.Since(info.ModTime()) <= maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil {
			p.logger.WarnContext(ctx, "failed to delete temp file",
				slog.String("file", path),
				slog.String("error", err.Error()))
			return nil
		}
		deleted++
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk temp directory: %w", walkErr)
	}

	p.logger.InfoContext(ctx, "temp files cleaned up", slog.Int("files_deleted", deleted))
	return nil
}

// CleanupExportArtifacts drops generated exports from the bucket once
// they age past the retention window.
func (p *CleanupProcessor) CleanupExportArtifacts(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().Add(-p.config.Export.ArtifactRetention)

	pruned, err := p.storage.PruneOlderThan(ctx, "exports/", cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune export artifacts: %w", err)
	}

	p.logger.InfoContext(ctx, "export artifacts cleaned up",
		slog.Int("artifacts_deleted", pruned),
		slog.Time("cutoff", cutoff))

	return nil
}
