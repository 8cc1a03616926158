package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rvaldez/porteria/internal/visit"
)

// handleNotifications routes /notifications/* requests.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/notifications")

	if len(parts) == 1 && parts[0] == "send-notification" {
		if r.Method != http.MethodPost {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleSendNotification(w, r)
		return
	}

	// /notifications/pending/{communityId}/{houseNumber}
	if len(parts) == 3 && parts[0] == "pending" {
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		communityID, err := parseID(parts[1])
		if err != nil {
			apiError(w, "invalid community ID", http.StatusBadRequest)
			return
		}
		s.handlePendingList(w, communityID, parts[2])
		return
	}

	apiError(w, "not found", http.StatusNotFound)
}

// handleSendNotification is the push-path visitor arrival: guard, record
// creation, timer, push dispatch, realtime fanout, sink propagation.
func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		apiError(w, "reading request body", http.StatusBadRequest)
		return
	}

	if err := validateArrival(s.arrival, raw); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Body        string `json:"body"`
		CommunityID int64  `json:"communityId"`
		HouseNumber string `json:"houseNumber"`
		Photo       string `json:"photo"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Communities.GetByID(req.CommunityID); err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}

	h, err := s.deps.Houses.GetByNumber(req.CommunityID, req.HouseNumber)
	if err != nil {
		apiError(w, "house not found", http.StatusNotFound)
		return
	}
	if !h.Active {
		apiError(w, "house is deactivated", http.StatusForbidden)
		return
	}

	tokens, err := s.deps.Residents.TokensForHouse(req.CommunityID, req.HouseNumber)
	if err != nil {
		apiError(w, fmt.Sprintf("listing devices: %v", err), http.StatusInternalServerError)
		return
	}
	if len(tokens) == 0 {
		apiError(w, "no active resident devices", http.StatusBadRequest)
		return
	}

	// On the push path the prompt title is the visitor name and the body
	// the stated reason.
	visitorName, reason := req.Title, req.Body

	if err := s.deps.Guard.AdmitArrival(req.CommunityID, req.HouseNumber, visitorName, reason); err != nil {
		var dup *visit.DuplicateArrivalError
		if errors.As(err, &dup) {
			apiJSON(w, map[string]interface{}{
				"error":           "duplicate arrival",
				"currentCount":    dup.CurrentCount,
				"nextAllowedTime": dup.NextAllowed.UTC().Format(time.RFC3339),
			}, http.StatusTooManyRequests)
			return
		}
		apiError(w, fmt.Sprintf("admitting arrival: %v", err), http.StatusInternalServerError)
		return
	}

	notificationID, err := visit.NewNotificationID()
	if err != nil {
		apiError(w, fmt.Sprintf("generating notification id: %v", err), http.StatusInternalServerError)
		return
	}

	rec, err := s.deps.Records.Create(visit.Fields{
		NotificationID: notificationID,
		CommunityID:    req.CommunityID,
		HouseNumber:    req.HouseNumber,
		VisitorName:    visitorName,
		Reason:         reason,
		PhotoRef:       req.Photo,
	})
	if err != nil {
		apiError(w, fmt.Sprintf("creating visit record: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.deps.Profiles.RecordArrival(req.CommunityID, visitorName, req.HouseNumber, reason); err != nil {
		slog.Warn("profile arrival update failed", "visitor", visitorName, "error", err)
	}

	s.deps.Scheduler.Arm(notificationID)

	// Provider failure is logged, never fatal: delivery is not guaranteed.
	deliveryID := ""
	result, err := s.deps.Push.Send(r.Context(), tokens, req.Title, req.Body, map[string]interface{}{
		"type":           "visit",
		"notificationId": notificationID,
		"communityId":    req.CommunityID,
		"houseNumber":    req.HouseNumber,
	})
	if err != nil {
		slog.Warn("push dispatch failed", "notification", notificationID, "error", err)
	} else {
		deliveryID = result.DeliveryID
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Publish(rec.CommunityID, rec.HouseNumber, visit.EventReportUpdated, rec)
	}
	if s.deps.Sinks != nil {
		s.deps.Sinks.RecordCreated(rec)
	}

	apiJSON(w, map[string]interface{}{
		"notificationId":     notificationID,
		"providerDeliveryId": deliveryID,
		"deviceCount":        len(tokens),
	}, http.StatusCreated)
}

// handlePendingList returns the pending records for a house, each with the
// derived security hash.
func (s *Server) handlePendingList(w http.ResponseWriter, communityID int64, houseNumber string) {
	records, err := s.deps.Records.ListPending(communityID, houseNumber)
	if err != nil {
		apiError(w, fmt.Sprintf("listing pending: %v", err), http.StatusInternalServerError)
		return
	}

	type entry struct {
		*visit.Record
		SecurityHash string `json:"securityHash"`
	}

	entries := make([]entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, entry{
			Record:       rec,
			SecurityHash: securityHash(s.deps.HMACSecret, communityID, houseNumber, rec.NotificationID),
		})
	}

	apiJSON(w, entries, http.StatusOK)
}
