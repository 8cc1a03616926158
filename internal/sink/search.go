package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteSearch is the pending-visit search index, backed by a terms table
// in the primary database file. Lookups are substring matches over the
// normalized visitor-name and reason text.
type SQLiteSearch struct {
	db *sql.DB
}

// NewSQLiteSearch creates a search index over an open database handle.
func NewSQLiteSearch(db *sql.DB) *SQLiteSearch {
	return &SQLiteSearch{db: db}
}

// Index stores (or overwrites) the terms for a pending notification.
func (s *SQLiteSearch) Index(ctx context.Context, notificationID string, communityID int64, terms string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visit_search (notification_id, community_id, terms) VALUES (?, ?, ?)
		 ON CONFLICT(notification_id) DO UPDATE SET terms = excluded.terms`,
		notificationID, communityID, strings.ToLower(terms),
	)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", notificationID, err)
	}
	return nil
}

// Remove drops a notification from the index. Removing an absent entry is
// a no-op.
func (s *SQLiteSearch) Remove(ctx context.Context, notificationID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM visit_search WHERE notification_id = ?", notificationID); err != nil {
		return fmt.Errorf("removing %s: %w", notificationID, err)
	}
	return nil
}

// Search returns the notification ids whose terms contain the query,
// scoped to one community.
func (s *SQLiteSearch) Search(ctx context.Context, communityID int64, query string) ([]string, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT notification_id FROM visit_search
		 WHERE community_id = ? AND terms LIKE ?
		 ORDER BY notification_id`,
		communityID, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search hits: %w", err)
	}

	return ids, nil
}
