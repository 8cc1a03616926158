package visit

import (
	"errors"
	"fmt"
	"time"
)

// Guard decides whether an incoming arrival or resident response is a new
// event, an update to a pending one, or a rejected duplicate. It re-reads
// current state at decision time; caller-supplied state is never trusted.
type Guard struct {
	records *Repository
	window  time.Duration
	limit   int
}

// NewGuard creates a guard over the record store. window is the duplicate
// suppression window, limit the hard cap of matching arrivals inside it.
func NewGuard(records *Repository, window time.Duration, limit int) *Guard {
	if limit <= 0 {
		limit = 3
	}
	return &Guard{records: records, window: window, limit: limit}
}

// AdmitArrival admits a visitor arrival or rejects it as a duplicate.
// Rejection returns a *DuplicateArrivalError carrying the existing pending
// record, the count of matching requests in the window, and when the next
// identical arrival will be admitted.
func (g *Guard) AdmitArrival(communityID int64, houseNumber, visitorName, reason string) error {
	existing, err := g.records.FindRecentDuplicate(communityID, houseNumber, visitorName, reason, g.window)
	if err != nil {
		return fmt.Errorf("checking recent duplicate: %w", err)
	}

	count, err := g.records.CountRecentMatches(communityID, houseNumber, visitorName, reason, g.window)
	if err != nil {
		return fmt.Errorf("counting recent matches: %w", err)
	}

	// A pending twin always throttles; resolved twins only once they reach
	// the hard cap.
	if existing == nil && count < g.limit {
		return nil
	}
	if existing == nil {
		// Cap reached on resolved matches: report the newest one.
		existing, err = g.newestMatch(communityID, houseNumber, visitorName, reason)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
	}

	return &DuplicateArrivalError{
		Existing:     existing,
		CurrentCount: count,
		NextAllowed:  existing.CreatedAt.Add(g.window),
	}
}

// AdmitResponse loads the record for a resident response and admits it if
// still pending. A missing record admits as the create-then-resolve path
// (returns nil record, nil error). A non-pending record rejects with
// *AlreadyAnsweredError.
func (g *Guard) AdmitResponse(ref Ref) (*Record, error) {
	rec, err := g.records.Get(ref)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return nil, &AlreadyAnsweredError{Existing: rec}
	}
	return rec, nil
}

func (g *Guard) newestMatch(communityID int64, houseNumber, visitorName, reason string) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM visit_records
		 WHERE community_id = ? AND house_number = ? AND visitor_name = ? AND reason = ?
		   AND created_at > ?
		 ORDER BY created_at DESC LIMIT 1`, selectColumns)

	records, err := g.records.queryRecords(query,
		communityID, houseNumber, visitorName, reason, time.Now().UTC().Add(-g.window))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
