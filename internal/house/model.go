// Package house provides the house domain model and data access.
package house

import "time"

// House represents an addressable residence within a community.
type House struct {
	ID          int64     `json:"id"`
	CommunityID int64     `json:"community_id"`
	Number      string    `json:"number"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
