package visit

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository provides persistence for visit records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a visit record repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, notification_id, community_id, house_number, visitor_name, reason, photo_ref, status, resolved_by, resolved_by_user_id, resolved_at, created_at`

// Fields holds the caller-supplied attributes for a new record.
type Fields struct {
	NotificationID string // empty for the walk-up/no-push path
	CommunityID    int64
	HouseNumber    string
	VisitorName    string
	Reason         string
	PhotoRef       string
	Status         Status // empty defaults to pending
}

// Create inserts a new visit record. A duplicate notification ID fails with
// ErrDuplicateNotificationID.
func (r *Repository) Create(f Fields) (*Record, error) {
	status := f.Status
	if status == "" {
		status = StatusPending
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status: %q", status)
	}

	var notificationID interface{}
	if f.NotificationID != "" {
		notificationID = f.NotificationID
	}

	result, err := r.db.Exec(
		`INSERT INTO visit_records
			(notification_id, community_id, house_number, visitor_name, reason, photo_ref, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notificationID, f.CommunityID, f.HouseNumber, f.VisitorName, f.Reason, f.PhotoRef,
		string(status), time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("notification id %s: %w", f.NotificationID, ErrDuplicateNotificationID)
		}
		return nil, fmt.Errorf("inserting visit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a record by its numeric ID.
func (r *Repository) GetByID(id int64) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM visit_records WHERE id = ?", selectColumns)
	rec, err := scanRecord(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %d: %w", id, err)
	}
	return rec, nil
}

// GetByNotificationID returns a record by its notification idempotency key.
func (r *Repository) GetByNotificationID(notificationID string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM visit_records WHERE notification_id = ?", selectColumns)
	rec, err := scanRecord(r.db.QueryRow(query, notificationID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification %s: %w", notificationID, err)
	}
	return rec, nil
}

// Get resolves a Ref to a record.
func (r *Repository) Get(ref Ref) (*Record, error) {
	if ref.NotificationID != "" {
		return r.GetByNotificationID(ref.NotificationID)
	}
	return r.GetByID(ref.ID)
}

// Resolve transitions a pending record to the given terminal status. The
// update is conditional on the current status still being pending, so two
// racing resolutions serialize on the row: the loser gets
// AlreadyAnsweredError carrying the winning resolution.
func (r *Repository) Resolve(id int64, status Status, resolvedBy string, resolvedByUserID int64, at time.Time) (*Record, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("resolve to non-terminal status %q", status)
	}

	var userID interface{}
	if resolvedByUserID != 0 {
		userID = resolvedByUserID
	}

	result, err := r.db.Exec(
		`UPDATE visit_records
		 SET status = ?, resolved_by = ?, resolved_by_user_id = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status), resolvedBy, userID, at.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving record %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		existing, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		return nil, &AlreadyAnsweredError{Existing: existing}
	}

	return r.GetByID(id)
}

// FindRecentDuplicate returns the most recent pending record matching the
// arrival tuple within the window, or nil if none exists.
func (r *Repository) FindRecentDuplicate(communityID int64, houseNumber, visitorName, reason string, window time.Duration) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM visit_records
		 WHERE community_id = ? AND house_number = ? AND visitor_name = ? AND reason = ?
		   AND status = 'pending' AND created_at > ?
		 ORDER BY created_at DESC LIMIT 1`, selectColumns)

	rec, err := scanRecord(r.db.QueryRow(query,
		communityID, houseNumber, visitorName, reason, time.Now().UTC().Add(-window)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying recent duplicate: %w", err)
	}
	return rec, nil
}

// CountRecentMatches counts records matching the arrival tuple within the
// window regardless of status.
func (r *Repository) CountRecentMatches(communityID int64, houseNumber, visitorName, reason string, window time.Duration) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM visit_records
		 WHERE community_id = ? AND house_number = ? AND visitor_name = ? AND reason = ?
		   AND created_at > ?`,
		communityID, houseNumber, visitorName, reason, time.Now().UTC().Add(-window),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent matches: %w", err)
	}
	return n, nil
}

// ListPending returns the pending records for a house, newest first.
func (r *Repository) ListPending(communityID int64, houseNumber string) ([]*Record, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM visit_records
		 WHERE community_id = ? AND house_number = ? AND status = 'pending'
		 ORDER BY created_at DESC`, selectColumns)
	return r.queryRecords(query, communityID, houseNumber)
}

// RescanPending returns every pending record that carries a notification ID.
// Used at startup to re-arm expiration timers lost to a restart.
func (r *Repository) RescanPending() ([]*Record, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM visit_records
		 WHERE status = 'pending' AND notification_id IS NOT NULL
		 ORDER BY created_at`, selectColumns)
	return r.queryRecords(query)
}

// Delete removes a record. Deletion is administrative; the lifecycle never
// deletes records.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM visit_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting record %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}

	return nil
}

func (r *Repository) queryRecords(query string, args ...interface{}) ([]*Record, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var notificationID, resolvedBy sql.NullString
	var resolvedByUserID sql.NullInt64
	var resolvedAt sql.NullTime
	var status string

	err := s.Scan(&rec.ID, &notificationID, &rec.CommunityID, &rec.HouseNumber,
		&rec.VisitorName, &rec.Reason, &rec.PhotoRef, &status,
		&resolvedBy, &resolvedByUserID, &resolvedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.NotificationID = notificationID.String
	rec.Status = Status(status)
	rec.ResolvedBy = resolvedBy.String
	rec.ResolvedByUserID = resolvedByUserID.Int64
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}

	return &rec, nil
}
