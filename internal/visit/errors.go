package visit

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a missing visit record.
var ErrNotFound = errors.New("visit record not found")

// ErrInvalidDecision reports a decision outside accept/reject/cancel.
var ErrInvalidDecision = errors.New("invalid decision")

// ErrDuplicateNotificationID reports a uniqueness violation on the
// notification idempotency key.
var ErrDuplicateNotificationID = errors.New("duplicate notification id")

// AlreadyAnsweredError reports that a record already reached a terminal
// state. It carries the winning resolution so the losing caller can surface
// who answered first.
type AlreadyAnsweredError struct {
	Existing *Record
}

func (e *AlreadyAnsweredError) Error() string {
	resolver := e.Existing.ResolvedBy
	if resolver == "" {
		resolver = "unknown"
	}
	return fmt.Sprintf("visit record %d already %s by %s", e.Existing.ID, e.Existing.Status, resolver)
}

// DuplicateArrivalError reports that a matching arrival is already pending
// within the duplicate window.
type DuplicateArrivalError struct {
	Existing     *Record
	CurrentCount int
	NextAllowed  time.Time
}

func (e *DuplicateArrivalError) Error() string {
	return fmt.Sprintf("duplicate arrival for %q at house %s (count %d)",
		e.Existing.VisitorName, e.Existing.HouseNumber, e.CurrentCount)
}
