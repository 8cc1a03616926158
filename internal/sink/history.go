package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/lib/pq"
)

const historyTableName = "visit_history"

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresHistory is the historical log store. The connection and schema
// are initialized lazily on first write so a down Postgres at boot does not
// block the service.
type PostgresHistory struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresHistory creates a history store for the given DSN.
func NewPostgresHistory(dsn string) (*PostgresHistory, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty history DSN")
	}
	return &PostgresHistory{dsn: dsn, openDB: sql.Open}, nil
}

// Upsert writes the denormalized row, last write wins on the record id.
func (h *PostgresHistory) Upsert(ctx context.Context, row HistoryRow) error {
	if err := h.ensureReady(ctx); err != nil {
		return err
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO `+historyTableName+`
			(record_id, notification_id, community_id, day, house_number, visitor_name, reason, status, resolved_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (record_id) DO UPDATE SET
			notification_id = EXCLUDED.notification_id,
			status = EXCLUDED.status,
			resolved_by = EXCLUDED.resolved_by,
			updated_at = EXCLUDED.updated_at`,
		row.RecordID, row.NotificationID, row.CommunityID, row.Day, row.HouseNumber,
		row.VisitorName, row.Reason, row.Status, row.ResolvedBy, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting history row %d: %w", row.RecordID, err)
	}
	return nil
}

// ListByDay returns the history rows for one community and day, oldest
// first. Range scans ride the (community_id, day) index.
func (h *PostgresHistory) ListByDay(ctx context.Context, communityID int64, day string) ([]HistoryRow, error) {
	if err := h.ensureReady(ctx); err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT record_id, notification_id, community_id, day, house_number, visitor_name, reason, status, resolved_by, created_at, updated_at
		 FROM `+historyTableName+`
		 WHERE community_id = $1 AND day = $2
		 ORDER BY created_at`,
		communityID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var result []HistoryRow
	for rows.Next() {
		var r HistoryRow
		if err := rows.Scan(&r.RecordID, &r.NotificationID, &r.CommunityID, &r.Day,
			&r.HouseNumber, &r.VisitorName, &r.Reason, &r.Status, &r.ResolvedBy,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return result, nil
}

// Close closes the underlying connection if it was ever opened.
func (h *PostgresHistory) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *PostgresHistory) ensureReady(ctx context.Context) error {
	h.initOnce.Do(func() {
		db, err := h.openDB("postgres", h.dsn)
		if err != nil {
			h.initErr = fmt.Errorf("opening history store: %w", err)
			return
		}

		statements := []string{
			`CREATE TABLE IF NOT EXISTS ` + historyTableName + ` (
				record_id       BIGINT PRIMARY KEY,
				notification_id TEXT NOT NULL DEFAULT '',
				community_id    BIGINT NOT NULL,
				day             DATE NOT NULL,
				house_number    TEXT NOT NULL,
				visitor_name    TEXT NOT NULL,
				reason          TEXT NOT NULL DEFAULT '',
				status          TEXT NOT NULL,
				resolved_by     TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL,
				updated_at      TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_visit_history_community_day
				ON ` + historyTableName + ` (community_id, day)`,
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				h.initErr = fmt.Errorf("initializing history schema: %w", err)
				closeErr := db.Close()
				if closeErr != nil {
					h.initErr = fmt.Errorf("%w (also failed to close: %v)", h.initErr, closeErr)
				}
				return
			}
		}

		h.db = db
	})
	return h.initErr
}
