// Package visit implements the visitor notification lifecycle: arrival
// admission, durable recording, resident resolution, expiration, and the
// fan-out to realtime subscribers, the gate, and best-effort sinks.
package visit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Status is the lifecycle state of a visit record. A record starts pending
// and transitions exactly once to a terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsValid checks if a status is recognized.
func (s Status) IsValid() bool {
	return s == StatusPending || s.Terminal()
}

// Decision is a resident's answer to a pending visit.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
	DecisionCancel Decision = "cancel"
)

// Status maps a decision to the terminal status it produces.
func (d Decision) Status() (Status, error) {
	switch d {
	case DecisionAccept:
		return StatusAccepted, nil
	case DecisionReject:
		return StatusRejected, nil
	case DecisionCancel:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, d)
}

// SystemResolver is the resolved_by sentinel for timer-driven expirations.
const SystemResolver = "system"

// Record tracks one visitor-arrival-to-resolution lifecycle.
type Record struct {
	ID               int64      `json:"id"`
	NotificationID   string     `json:"notificationId,omitempty"` // idempotency key, push path only
	CommunityID      int64      `json:"communityId"`
	HouseNumber      string     `json:"houseNumber"`
	VisitorName      string     `json:"visitorName"`
	Reason           string     `json:"reason"`
	PhotoRef         string     `json:"photoRef,omitempty"`
	Status           Status     `json:"status"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	ResolvedByUserID int64      `json:"resolvedByUserId,omitempty"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Ref identifies a record by numeric ID or by notification ID.
// Exactly one field should be set.
type Ref struct {
	ID             int64
	NotificationID string
}

// NewNotificationID generates an opaque notification identifier.
func NewNotificationID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating notification id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
