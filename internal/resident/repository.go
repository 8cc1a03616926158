package resident

import (
	"database/sql"
	"fmt"
)

// Repository provides CRUD operations for residents.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a resident repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, house_id, name, device_token, active, created_at`

// Create adds a resident to a house and returns it with its generated ID.
func (r *Repository) Create(houseID int64, name, deviceToken string) (*Resident, error) {
	result, err := r.db.Exec(
		"INSERT INTO residents (house_id, name, device_token) VALUES (?, ?, ?)",
		houseID, name, deviceToken,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting resident: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a resident by ID.
func (r *Repository) GetByID(id int64) (*Resident, error) {
	query := fmt.Sprintf("SELECT %s FROM residents WHERE id = ?", selectColumns)
	res, err := scanResident(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resident %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying resident %d: %w", id, err)
	}
	return res, nil
}

// ListByHouse returns all residents of a house.
func (r *Repository) ListByHouse(houseID int64) ([]*Resident, error) {
	query := fmt.Sprintf("SELECT %s FROM residents WHERE house_id = ? ORDER BY name", selectColumns)
	rows, err := r.db.Query(query, houseID)
	if err != nil {
		return nil, fmt.Errorf("listing residents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var residents []*Resident
	for rows.Next() {
		res, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resident: %w", err)
		}
		residents = append(residents, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating residents: %w", err)
	}

	return residents, nil
}

// TokensForHouse returns the device tokens of the active residents of the
// house with the given number in a community. Residents without a device
// token are skipped.
func (r *Repository) TokensForHouse(communityID int64, houseNumber string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT res.device_token
		 FROM residents res
		 INNER JOIN houses h ON h.id = res.house_id
		 WHERE h.community_id = ? AND h.number = ? AND res.active = 1 AND res.device_token != ''
		 ORDER BY res.id`,
		communityID, houseNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device tokens: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning device token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device tokens: %w", err)
	}

	return tokens, nil
}

// MemberOfCommunity reports whether the resident belongs to a house in the
// given community and is active.
func (r *Repository) MemberOfCommunity(residentID, communityID int64) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*)
		 FROM residents res
		 INNER JOIN houses h ON h.id = res.house_id
		 WHERE res.id = ? AND h.community_id = ? AND res.active = 1`,
		residentID, communityID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return n > 0, nil
}

// SetActive activates or deactivates a resident.
func (r *Repository) SetActive(id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}

	result, err := r.db.Exec("UPDATE residents SET active = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("updating resident: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resident %d not found", id)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanResident.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResident(s scanner) (*Resident, error) {
	var res Resident
	var active int
	if err := s.Scan(&res.ID, &res.HouseID, &res.Name, &res.DeviceToken, &active, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.Active = active != 0
	return &res, nil
}
