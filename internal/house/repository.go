package house

import (
	"database/sql"
	"fmt"
)

// Repository provides CRUD operations for houses.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a house repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, community_id, number, active, created_at`

// Create adds a house to a community and returns it with its generated ID.
func (r *Repository) Create(communityID int64, number string) (*House, error) {
	result, err := r.db.Exec(
		"INSERT INTO houses (community_id, number) VALUES (?, ?)",
		communityID, number,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting house: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a house by its ID.
func (r *Repository) GetByID(id int64) (*House, error) {
	query := fmt.Sprintf("SELECT %s FROM houses WHERE id = ?", selectColumns)
	h, err := scanHouse(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("house %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying house %d: %w", id, err)
	}
	return h, nil
}

// GetByNumber returns the house with the given number within a community.
func (r *Repository) GetByNumber(communityID int64, number string) (*House, error) {
	query := fmt.Sprintf("SELECT %s FROM houses WHERE community_id = ? AND number = ?", selectColumns)
	h, err := scanHouse(r.db.QueryRow(query, communityID, number))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("house %s not found in community %d", number, communityID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying house %s: %w", number, err)
	}
	return h, nil
}

// ListByCommunity returns all houses in a community ordered by number.
func (r *Repository) ListByCommunity(communityID int64) ([]*House, error) {
	query := fmt.Sprintf("SELECT %s FROM houses WHERE community_id = ? ORDER BY number", selectColumns)
	rows, err := r.db.Query(query, communityID)
	if err != nil {
		return nil, fmt.Errorf("listing houses: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var houses []*House
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning house: %w", err)
		}
		houses = append(houses, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating houses: %w", err)
	}

	return houses, nil
}

// SetActive activates or deactivates a house.
func (r *Repository) SetActive(id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}

	result, err := r.db.Exec("UPDATE houses SET active = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("updating house: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("house %d not found", id)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanHouse.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHouse(s scanner) (*House, error) {
	var h House
	var active int
	if err := s.Scan(&h.ID, &h.CommunityID, &h.Number, &active, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.Active = active != 0
	return &h, nil
}
