// Package audit durably records one row per completed lookup Job,
// independent of cache state, so an operator can answer "what was
// asked and what happened" after a cache entry expires or a job
// errors. It never stores phone or email — those are projection
// output, not audit input.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lookup-gateway/internal/classifier"
	"lookup-gateway/internal/db"
)

// Record is one audit row.
type Record struct {
	ID        uuid.UUID
	INN       string
	FIO       string
	Status    classifier.Status
	CreatedAt time.Time
}

// Trail writes audit Records. A Trail backed by no database (empty
// AUDIT_DATABASE_URL) is a no-op sink so the feature stays optional.
type Trail struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to url and applies migrationsPath. An empty url
// yields a Trail whose Record/Close calls are no-ops.
func Open(ctx context.Context, url, migrationsPath string, logger *zap.Logger) (*Trail, error) {
	if url == "" {
		logger.Info("audit trail disabled (AUDIT_DATABASE_URL is empty)")
		return &Trail{logger: logger}, nil
	}

	pg, err := db.NewPostgres(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}

	if migrationsPath != "" {
		if err := pg.RunMigrations(migrationsPath); err != nil {
			pg.Close()
			return nil, fmt.Errorf("audit: migrate: %w", err)
		}
	}

	return &Trail{db: pg.DB, logger: logger}, nil
}

// Record appends one audit row. It never blocks the caller on
// failure beyond logging — an audit write failure must not fail the
// Job it describes.
func (t *Trail) Record(ctx context.Context, inn, fio string, status classifier.Status) {
	if t.db == nil {
		return
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, inn, fio, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), inn, fio, string(status), time.Now().UTC(),
	)
	if err != nil {
		t.logger.Error("audit record write failed", zap.Error(err), zap.String("status", string(status)))
	}
}

// Close releases the underlying connection, if any.
func (t *Trail) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}
