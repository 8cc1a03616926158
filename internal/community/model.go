// Package community provides the gated community domain model and data access.
package community

import "time"

// Community represents a gated residential development.
type Community struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	GateOpen  bool      `json:"gate_open"`
	CreatedAt time.Time `json:"created_at"`
}
