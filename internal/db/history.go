package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"consultacnpj/internal/models"
	"consultacnpj/internal/validation"
)

const historyColumns = `id, tipo, cnpjs, arquivo_nome, resultado, created_at`

// SaveHistory stores a finished batch. ID and CreatedAt are filled in when
// zero.
func (d *DB) SaveHistory(ctx context.Context, h *models.History) error {
	prepareHistory(h)
	if _, err := insertHistory(ctx, d.Pool, h); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// GetHistory retrieves one record by ID.
func (d *DB) GetHistory(ctx context.Context, id uuid.UUID) (*models.History, error) {
	query := `SELECT ` + historyColumns + ` FROM lookup_history WHERE id = $1`

	h, err := scanHistory(d.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListHistory returns the most recent records, newest first. A non-positive
// limit returns every record.
func (d *DB) ListHistory(ctx context.Context, limit int) ([]models.History, error) {
	query := `SELECT ` + historyColumns + ` FROM lookup_history ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, *h)
	}
	return records, rows.Err()
}

// ClearHistory deletes every record and reports how many were removed.
func (d *DB) ClearHistory(ctx context.Context) (int64, error) {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM lookup_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindDetails returns the stored upstream document for an identifier from the
// scanLimit most recent records, newest first.
func (d *DB) FindDetails(ctx context.Context, cnpj string, scanLimit int) (map[string]any, error) {
	records, err := d.ListHistory(ctx, scanLimit)
	if err != nil {
		return nil, err
	}
	if details := DetailsIn(records, cnpj); details != nil {
		return details, nil
	}
	return nil, ErrDetailsNotFound
}

// DetailsIn searches records in order for a result carrying details for cnpj.
func DetailsIn(records []models.History, cnpj string) map[string]any {
	target := validation.Digits(cnpj)
	for _, h := range records {
		if details := DetailsInResults(h.Results, target); details != nil {
			return details
		}
	}
	return nil
}

// DetailsInResults searches results in order for one carrying details for cnpj.
func DetailsInResults(results []models.LookupResult, cnpj string) map[string]any {
	target := validation.Digits(cnpj)
	for _, r := range results {
		if r.Details != nil && validation.Digits(r.CNPJ) == target {
			return r.Details
		}
	}
	return nil
}

// ImportHistory inserts records in one transaction, optionally deleting the
// existing ones first. Records keep their IDs; duplicates are skipped.
func (d *DB) ImportHistory(ctx context.Context, records []models.History, truncate bool) (int, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	if truncate {
		if _, err := tx.Exec(ctx, `DELETE FROM lookup_history`); err != nil {
			return 0, fmt.Errorf("failed to truncate history: %w", err)
		}
	}

	imported := 0
	for i := range records {
		h := &records[i]
		prepareHistory(h)
		inserted, err := insertHistory(ctx, tx, h)
		if err != nil {
			return 0, fmt.Errorf("failed to import record %s: %w", h.ID, err)
		}
		if inserted {
			imported++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return imported, nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertHistory(ctx context.Context, q execer, h *models.History) (bool, error) {
	query := `
		INSERT INTO lookup_history (id, tipo, cnpjs, arquivo_nome, resultado, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := q.Exec(ctx, query, h.ID, h.Kind, h.CNPJs, h.Filename, h.Results, h.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func prepareHistory(h *models.History) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	if h.Kind == "" {
		h.Kind = models.SourceManual
	}
	if h.Results == nil {
		h.Results = []models.LookupResult{}
	}
}

func scanHistory(row pgx.Row) (*models.History, error) {
	var h models.History
	if err := row.Scan(&h.ID, &h.Kind, &h.CNPJs, &h.Filename, &h.Results, &h.CreatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// CountHistory returns the number of stored records.
func (d *DB) CountHistory(ctx context.Context) (int64, error) {
	var n int64
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM lookup_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
