package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rvaldez/porteria/internal/visit"
)

// handleReports handles POST /reports: the walk-up/no-push arrival path.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CommunityID int64  `json:"communityId"`
		HouseNumber string `json:"houseNumber"`
		VisitorName string `json:"visitorName"`
		Reason      string `json:"reason"`
		Photo       string `json:"photo"`
		Status      string `json:"status"` // optional terminal status for the legacy resolved-on-create path
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.CommunityID <= 0 || req.HouseNumber == "" || req.VisitorName == "" {
		apiError(w, "communityId, houseNumber and visitorName are required", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Communities.GetByID(req.CommunityID); err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}

	status := visit.Status(req.Status)
	if req.Status != "" && !status.IsValid() {
		apiError(w, fmt.Sprintf("invalid status %q", req.Status), http.StatusBadRequest)
		return
	}

	// Walk-up duplicates surface the existing record, not a throttle hint.
	if status == "" || status == visit.StatusPending {
		if err := s.deps.Guard.AdmitArrival(req.CommunityID, req.HouseNumber, req.VisitorName, req.Reason); err != nil {
			var dup *visit.DuplicateArrivalError
			if errors.As(err, &dup) {
				apiJSON(w, map[string]interface{}{
					"error":  "duplicate arrival",
					"record": dup.Existing,
				}, http.StatusConflict)
				return
			}
			apiError(w, fmt.Sprintf("admitting arrival: %v", err), http.StatusInternalServerError)
			return
		}
	}

	rec, err := s.deps.Records.Create(visit.Fields{
		CommunityID: req.CommunityID,
		HouseNumber: req.HouseNumber,
		VisitorName: req.VisitorName,
		Reason:      req.Reason,
		PhotoRef:    req.Photo,
		Status:      status,
	})
	if err != nil {
		apiError(w, fmt.Sprintf("creating report: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.deps.Profiles.RecordArrival(req.CommunityID, req.VisitorName, req.HouseNumber, req.Reason); err != nil {
		slog.Warn("profile arrival update failed", "visitor", req.VisitorName, "error", err)
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Publish(rec.CommunityID, rec.HouseNumber, visit.EventReportUpdated, rec)
	}
	if s.deps.Sinks != nil {
		s.deps.Sinks.RecordCreated(rec)
	}

	apiJSON(w, rec, http.StatusCreated)
}

// handleReportRoute routes /reports/{...} requests.
func (s *Server) handleReportRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/reports")

	if len(parts) == 1 && parts[0] == "actualizarReporte" {
		if r.Method != http.MethodPut {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleRespond(w, r)
		return
	}

	if len(parts) == 1 {
		id, err := parseID(parts[0])
		if err != nil {
			apiError(w, "invalid report ID", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleGetReport(w, id)
		case http.MethodDelete:
			s.handleDeleteReport(w, id)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	apiError(w, "not found", http.StatusNotFound)
}

// decisionFromResultado maps the client vocabulary to a decision.
func decisionFromResultado(resultado string) (visit.Decision, bool) {
	switch resultado {
	case "ACEPTADO":
		return visit.DecisionAccept, true
	case "RECHAZADO":
		return visit.DecisionReject, true
	case "CANCELADO":
		return visit.DecisionCancel, true
	}
	return "", false
}

// handleRespond records a resident's decision through the orchestrator.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resultado string          `json:"resultado"`
		IDReporte json.RawMessage `json:"idReporte"`
		UserID    int64           `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	decision, ok := decisionFromResultado(req.Resultado)
	if !ok {
		apiError(w, fmt.Sprintf("invalid resultado %q", req.Resultado), http.StatusBadRequest)
		return
	}

	ref, err := parseReportRef(req.IDReporte)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resolverName := fmt.Sprintf("user %d", req.UserID)
	if res, err := s.deps.Residents.GetByID(req.UserID); err == nil {
		resolverName = res.Name
	}

	result, err := s.deps.Orchestrator.Respond(ref, decision, resolverName, req.UserID)
	if err != nil {
		var answered *visit.AlreadyAnsweredError
		switch {
		case errors.As(err, &answered):
			resolvedAt := ""
			if answered.Existing.ResolvedAt != nil {
				resolvedAt = answered.Existing.ResolvedAt.UTC().Format(time.RFC3339)
			}
			apiJSON(w, map[string]interface{}{
				"error":      "already answered",
				"status":     answered.Existing.Status,
				"resolvedBy": answered.Existing.ResolvedBy,
				"resolvedAt": resolvedAt,
			}, http.StatusConflict)
		case errors.Is(err, visit.ErrNotFound):
			apiError(w, "report not found", http.StatusNotFound)
		case errors.Is(err, visit.ErrInvalidDecision):
			apiError(w, err.Error(), http.StatusBadRequest)
		default:
			apiError(w, fmt.Sprintf("resolving report: %v", err), http.StatusInternalServerError)
		}
		return
	}

	apiJSON(w, map[string]interface{}{
		"status":     result.Record.Status,
		"resolvedBy": result.Record.ResolvedBy,
		"gateOpened": result.GateOpened,
	}, http.StatusOK)
}

// parseReportRef accepts a numeric record id or a string notification id.
func parseReportRef(raw json.RawMessage) (visit.Ref, error) {
	if len(raw) == 0 {
		return visit.Ref{}, fmt.Errorf("idReporte is required")
	}

	var notificationID string
	if err := json.Unmarshal(raw, &notificationID); err == nil {
		if notificationID == "" {
			return visit.Ref{}, fmt.Errorf("idReporte is required")
		}
		if id, err := strconv.ParseInt(notificationID, 10, 64); err == nil {
			return visit.Ref{ID: id}, nil
		}
		return visit.Ref{NotificationID: notificationID}, nil
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err == nil && id > 0 {
		return visit.Ref{ID: id}, nil
	}

	return visit.Ref{}, fmt.Errorf("idReporte must be a record id or notification id")
}

func (s *Server) handleGetReport(w http.ResponseWriter, id int64) {
	rec, err := s.deps.Records.GetByID(id)
	if errors.Is(err, visit.ErrNotFound) {
		apiError(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		apiError(w, fmt.Sprintf("loading report: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, rec, http.StatusOK)
}

// handleDeleteReport is the administrative delete. The search index entry
// is removed; the history sink keeps the row for audit.
func (s *Server) handleDeleteReport(w http.ResponseWriter, id int64) {
	rec, err := s.deps.Records.GetByID(id)
	if errors.Is(err, visit.ErrNotFound) {
		apiError(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		apiError(w, fmt.Sprintf("loading report: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.deps.Records.Delete(id); err != nil {
		apiError(w, fmt.Sprintf("deleting report: %v", err), http.StatusInternalServerError)
		return
	}

	if s.deps.Sinks != nil {
		s.deps.Sinks.RecordDeleted(rec)
	}

	apiJSON(w, map[string]interface{}{"id": id, "removed": true}, http.StatusOK)
}

// handleFrequentVisitors returns profiles with at least ?min visits.
func (s *Server) handleFrequentVisitors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := splitPath(r.URL.Path, "/analytics/frequent-visitors")
	if len(parts) != 1 {
		apiError(w, "not found", http.StatusNotFound)
		return
	}
	communityID, err := parseID(parts[0])
	if err != nil {
		apiError(w, "invalid community ID", http.StatusBadRequest)
		return
	}

	min := 3
	if v := r.URL.Query().Get("min"); v != "" {
		min, err = strconv.Atoi(v)
		if err != nil || min < 1 {
			apiError(w, "min must be a positive integer", http.StatusBadRequest)
			return
		}
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			apiError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	profiles, err := s.deps.Profiles.FrequentVisitors(communityID, min, limit)
	if err != nil {
		apiError(w, fmt.Sprintf("querying frequent visitors: %v", err), http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = make([]*visit.Profile, 0)
	}

	apiJSON(w, profiles, http.StatusOK)
}
