package visit

import (
	"errors"
	"log/slog"
	"time"
)

// Scheduler enforces the response timeout on unanswered notifications. One
// deferred action is armed per notification; it fires unconditionally and
// re-checks status at fire time, which is how cancellation is achieved
// without explicit timer cancellation.
type Scheduler struct {
	records *Repository
	fanout  Fanout
	sinks   SinkWriter
	timeout time.Duration
}

// NewScheduler creates a scheduler with the given response timeout.
func NewScheduler(records *Repository, fanout Fanout, sinks SinkWriter, timeout time.Duration) *Scheduler {
	return &Scheduler{records: records, fanout: fanout, sinks: sinks, timeout: timeout}
}

// Arm schedules the expiration check for one notification.
func (s *Scheduler) Arm(notificationID string) {
	time.AfterFunc(s.timeout, func() {
		s.expire(notificationID)
	})
}

// ArmPending rescans pending notifications and re-arms their timers with the
// remaining window. Covers timers lost to a process restart.
func (s *Scheduler) ArmPending() error {
	records, err := s.records.RescanPending()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, rec := range records {
		remaining := s.timeout - now.Sub(rec.CreatedAt)
		if remaining < 0 {
			remaining = 0
		}
		id := rec.NotificationID
		time.AfterFunc(remaining, func() {
			s.expire(id)
		})
	}

	if len(records) > 0 {
		slog.Info("re-armed expiration timers", "count", len(records))
	}
	return nil
}

// expire transitions a still-pending record to expired. A record already
// resolved makes the fire a no-op. Store failures are logged and dropped:
// an unanswered request staying pending beats crashing the process.
func (s *Scheduler) expire(notificationID string) {
	rec, err := s.records.GetByNotificationID(notificationID)
	if err != nil {
		slog.Warn("expiration re-fetch failed", "notification", notificationID, "error", err)
		return
	}
	if rec.Status != StatusPending {
		return
	}

	expired, err := s.records.Resolve(rec.ID, StatusExpired, SystemResolver, 0, time.Now())
	if err != nil {
		var answered *AlreadyAnsweredError
		if errors.As(err, &answered) {
			// Lost the race to a resident response between the re-fetch
			// and the update. The human decision stands.
			return
		}
		slog.Warn("expiration update failed", "notification", notificationID, "error", err)
		return
	}

	slog.Info("notification expired", "notification", notificationID, "record", expired.ID)

	if s.fanout != nil {
		s.fanout.Publish(expired.CommunityID, expired.HouseNumber, EventExpired, map[string]interface{}{
			"notificationId": expired.NotificationID,
			"reportId":       expired.ID,
			"status":         expired.Status,
			"message":        resolutionMessage(expired),
		})
	}

	if s.sinks != nil {
		s.sinks.RecordUpdated(expired)
	}
}
