// Package resident provides the resident domain model and data access.
package resident

import "time"

// Resident represents a person registered to a house, optionally holding
// a push-capable device token.
type Resident struct {
	ID          int64     `json:"id"`
	HouseID     int64     `json:"house_id"`
	Name        string    `json:"name"`
	DeviceToken string    `json:"device_token,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
