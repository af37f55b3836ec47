package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valmeida/chatvault/internal/database"
)

// SQLMaintenanceTaskName is the registry key for the maintenance task.
const SQLMaintenanceTaskName = "sql_maintenance"

// NewSQLMaintenanceTask creates the scheduled task that vacuums and
// optimizes the archive database.
func NewSQLMaintenanceTask(store database.Store, logger *slog.Logger) TaskFunc {
	log := logger.With("task", SQLMaintenanceTaskName)

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task...")
		startTime := time.Now()

		err := store.RunSQLMaintenance(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", duration)
		return nil
	}
}
