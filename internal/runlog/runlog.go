// Package runlog records every pipeline run in the etl_run_log table of the
// warehouse. The table survives rebuilds.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const createTable = "CREATE TABLE IF NOT EXISTS `etl_run_log` (\n" +
	"  `id` BIGINT NOT NULL AUTO_INCREMENT,\n" +
	"  `run_id` CHAR(36) NOT NULL,\n" +
	"  `started_at` DATETIME(6) NOT NULL,\n" +
	"  `finished_at` DATETIME(6) NULL,\n" +
	"  `status` VARCHAR(16) NOT NULL,\n" +
	"  `failed_stage` VARCHAR(16) NULL,\n" +
	"  `error_message` TEXT NULL,\n" +
	"  `row_counts` JSON NULL,\n" +
	"  PRIMARY KEY (`id`),\n" +
	"  UNIQUE KEY `uq_run_id` (`run_id`),\n" +
	"  INDEX `idx_started_at` (`started_at`)\n" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

const (
	insertRun = "INSERT INTO `etl_run_log` (`run_id`, `started_at`, `status`) VALUES (?, ?, ?)"

	finishRun = "UPDATE `etl_run_log` SET `finished_at` = ?, `status` = ?, `failed_stage` = ?, " +
		"`error_message` = ?, `row_counts` = ? WHERE `run_id` = ?"
)

// Execer is the subset of *sql.DB the repository needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Outcome is how a run ended.
type Outcome struct {
	FinishedAt  time.Time
	FailedStage string
	Err         error
	RowCounts   map[string]int
}

// Repository writes etl_run_log rows.
type Repository struct {
	db Execer
}

// NewRepository returns a repository over db.
func NewRepository(db Execer) *Repository {
	return &Repository{db: db}
}

// EnsureTable creates etl_run_log if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create etl_run_log: %w", err)
	}
	return nil
}

// Start records a running run.
func (r *Repository) Start(ctx context.Context, runID string, startedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, insertRun, runID, startedAt.UTC(), StatusRunning); err != nil {
		return fmt.Errorf("failed to record start of run %s: %w", runID, err)
	}
	return nil
}

// Finish records the outcome of a run.
func (r *Repository) Finish(ctx context.Context, runID string, o Outcome) error {
	counts, err := json.Marshal(o.RowCounts)
	if err != nil {
		return fmt.Errorf("failed to encode row counts: %w", err)
	}

	status := StatusSuccess
	var stage, message interface{}
	if o.Err != nil {
		status = StatusFailed
		message = o.Err.Error()
		if o.FailedStage != "" {
			stage = o.FailedStage
		}
	}

	if _, err := r.db.ExecContext(ctx, finishRun, o.FinishedAt.UTC(), status, stage, message, string(counts), runID); err != nil {
		return fmt.Errorf("failed to record end of run %s: %w", runID, err)
	}
	return nil
}
