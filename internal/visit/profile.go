package visit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profile aggregates arrival and resolution statistics for one distinct
// visitor name within a community.
type Profile struct {
	ID              int64          `json:"id"`
	CommunityID     int64          `json:"communityId"`
	Name            string         `json:"name"`
	NormalizedName  string         `json:"normalizedName"`
	TotalVisits     int            `json:"totalVisits"`
	AcceptedCount   int            `json:"acceptedCount"`
	RejectedCount   int            `json:"rejectedCount"`
	HousesVisited   []string       `json:"housesVisited"`
	FrequentReasons map[string]int `json:"frequentReasons"`
	FirstSeenAt     time.Time      `json:"firstSeenAt"`
	LastSeenAt      time.Time      `json:"lastSeenAt"`
}

// NormalizeName lowercases and trims a visitor name for profile keying.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ProfileRepository provides persistence for visitor profiles.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a visitor profile repository.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, community_id, name, normalized_name, total_visits, accepted_count, rejected_count, houses_visited, frequent_reasons, first_seen_at, last_seen_at`

// RecordArrival creates the profile lazily on first sight and bumps the
// visit counter, house set, and reason counts.
func (r *ProfileRepository) RecordArrival(communityID int64, name, houseNumber, reason string) error {
	normalized := NormalizeName(name)
	if normalized == "" {
		return fmt.Errorf("empty visitor name")
	}
	now := time.Now().UTC()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	p, err := getProfile(tx, communityID, normalized)
	if err != nil {
		return err
	}

	if p == nil {
		houses, _ := json.Marshal([]string{houseNumber})
		reasons, _ := json.Marshal(map[string]int{reason: 1})
		_, err = tx.Exec(
			`INSERT INTO visitor_profiles
				(community_id, name, normalized_name, total_visits, houses_visited, frequent_reasons, first_seen_at, last_seen_at)
			 VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
			communityID, strings.TrimSpace(name), normalized, string(houses), string(reasons), now, now,
		)
		if err != nil {
			return fmt.Errorf("inserting profile: %w", err)
		}
		return tx.Commit()
	}

	if !containsString(p.HousesVisited, houseNumber) {
		p.HousesVisited = append(p.HousesVisited, houseNumber)
	}
	if p.FrequentReasons == nil {
		p.FrequentReasons = map[string]int{}
	}
	p.FrequentReasons[reason]++

	houses, _ := json.Marshal(p.HousesVisited)
	reasons, _ := json.Marshal(p.FrequentReasons)
	_, err = tx.Exec(
		`UPDATE visitor_profiles
		 SET total_visits = total_visits + 1, houses_visited = ?, frequent_reasons = ?, last_seen_at = ?
		 WHERE id = ?`,
		string(houses), string(reasons), now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	return tx.Commit()
}

// RecordResolution bumps the accepted or rejected counter. The update is
// conditional on accepted + rejected staying within total_visits, so the
// invariant holds even under overlapping resolutions. A missing profile is
// a no-op.
func (r *ProfileRepository) RecordResolution(communityID int64, name string, status Status) error {
	var column string
	switch status {
	case StatusAccepted:
		column = "accepted_count"
	case StatusRejected:
		column = "rejected_count"
	default:
		return nil
	}

	query := fmt.Sprintf(
		`UPDATE visitor_profiles
		 SET %s = %s + 1
		 WHERE community_id = ? AND normalized_name = ?
		   AND accepted_count + rejected_count < total_visits`, column, column)

	if _, err := r.db.Exec(query, communityID, NormalizeName(name)); err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	return nil
}

// Get returns the profile for a visitor name in a community, or nil.
func (r *ProfileRepository) Get(communityID int64, name string) (*Profile, error) {
	return getProfile(r.db, communityID, NormalizeName(name))
}

// FrequentVisitors returns profiles with at least min total visits, sorted
// descending by count, capped at limit.
func (r *ProfileRepository) FrequentVisitors(communityID int64, min, limit int) ([]*Profile, error) {
	if min <= 0 {
		min = 1
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(
		`SELECT %s FROM visitor_profiles
		 WHERE community_id = ? AND total_visits >= ?
		 ORDER BY total_visits DESC, normalized_name
		 LIMIT ?`, profileColumns)

	rows, err := r.db.Query(query, communityID, min, limit)
	if err != nil {
		return nil, fmt.Errorf("querying frequent visitors: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	return profiles, nil
}

// TopReasons returns a profile's reasons sorted by count descending.
func (p *Profile) TopReasons() []string {
	reasons := make([]string, 0, len(p.FrequentReasons))
	for reason := range p.FrequentReasons {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if p.FrequentReasons[reasons[i]] != p.FrequentReasons[reasons[j]] {
			return p.FrequentReasons[reasons[i]] > p.FrequentReasons[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func getProfile(q querier, communityID int64, normalized string) (*Profile, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM visitor_profiles WHERE community_id = ? AND normalized_name = ?",
		profileColumns)

	p, err := scanProfile(q.QueryRow(query, communityID, normalized))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

func scanProfile(s scanner) (*Profile, error) {
	var p Profile
	var houses, reasons string

	err := s.Scan(&p.ID, &p.CommunityID, &p.Name, &p.NormalizedName,
		&p.TotalVisits, &p.AcceptedCount, &p.RejectedCount,
		&houses, &reasons, &p.FirstSeenAt, &p.LastSeenAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(houses), &p.HousesVisited); err != nil {
		return nil, fmt.Errorf("decoding houses visited: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &p.FrequentReasons); err != nil {
		return nil, fmt.Errorf("decoding frequent reasons: %w", err)
	}

	return &p, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
