package community

import (
	"database/sql"
	"fmt"
)

// Repository provides CRUD operations for communities.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a community repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, name, gate_open, created_at`

// Create adds a new community and returns it with its generated ID.
func (r *Repository) Create(name string) (*Community, error) {
	result, err := r.db.Exec("INSERT INTO communities (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("inserting community: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetByID(id)
}

// GetByID returns a community by its ID.
func (r *Repository) GetByID(id int64) (*Community, error) {
	query := fmt.Sprintf("SELECT %s FROM communities WHERE id = ?", selectColumns)

	var c Community
	var gateOpen int
	err := r.db.QueryRow(query, id).Scan(&c.ID, &c.Name, &gateOpen, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("community %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying community %d: %w", id, err)
	}
	c.GateOpen = gateOpen != 0

	return &c, nil
}

// List returns all communities ordered by name.
func (r *Repository) List() ([]*Community, error) {
	query := fmt.Sprintf("SELECT %s FROM communities ORDER BY name", selectColumns)
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing communities: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var communities []*Community
	for rows.Next() {
		var c Community
		var gateOpen int
		if err := rows.Scan(&c.ID, &c.Name, &gateOpen, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning community: %w", err)
		}
		c.GateOpen = gateOpen != 0
		communities = append(communities, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating communities: %w", err)
	}

	return communities, nil
}

// SetGateOpen persists the gate state for a community.
// Setting an already-set state is a harmless no-op.
func (r *Repository) SetGateOpen(id int64, open bool) error {
	v := 0
	if open {
		v = 1
	}

	result, err := r.db.Exec("UPDATE communities SET gate_open = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("updating gate state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("community %d not found", id)
	}

	return nil
}

// GateOpen returns the persisted gate state for a community.
func (r *Repository) GateOpen(id int64) (bool, error) {
	var open int
	err := r.db.QueryRow("SELECT gate_open FROM communities WHERE id = ?", id).Scan(&open)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("community %d not found", id)
	}
	if err != nil {
		return false, fmt.Errorf("querying gate state: %w", err)
	}
	return open != 0, nil
}
