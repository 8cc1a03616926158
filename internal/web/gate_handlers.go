package web

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
)

// handleGateRoute routes /{communityId}/abrir-puerta and
// /{communityId}/estado-puerta.
func (s *Server) handleGateRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "")
	if len(parts) != 2 {
		apiError(w, "not found", http.StatusNotFound)
		return
	}

	communityID, err := parseID(parts[0])
	if err != nil {
		apiError(w, "not found", http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "abrir-puerta":
		if r.Method != http.MethodPost {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleOpenGate(w, r, communityID)
	case "estado-puerta":
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleGateState(w, communityID)
	default:
		apiError(w, "not found", http.StatusNotFound)
	}
}

// handleOpenGate validates the QR binding and resident membership, then
// pulses the gate.
func (s *Server) handleOpenGate(w http.ResponseWriter, r *http.Request, communityID int64) {
	var req struct {
		UserID int64  `json:"userId"`
		QRCode string `json:"qrCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 || req.QRCode == "" {
		apiError(w, "userId and qrCode are required", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Communities.GetByID(communityID); err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}

	expected := GateQRCode(s.deps.HMACSecret, communityID, req.UserID)
	if !hmac.Equal([]byte(req.QRCode), []byte(expected)) {
		apiError(w, "invalid QR code", http.StatusForbidden)
		return
	}

	member, err := s.deps.Residents.MemberOfCommunity(req.UserID, communityID)
	if err != nil {
		apiError(w, fmt.Sprintf("checking membership: %v", err), http.StatusInternalServerError)
		return
	}
	if !member {
		apiError(w, "resident is not a member of this community", http.StatusForbidden)
		return
	}

	if err := s.deps.Gate.Pulse(communityID); err != nil {
		apiError(w, fmt.Sprintf("opening gate: %v", err), http.StatusInternalServerError)
		return
	}

	apiJSON(w, map[string]interface{}{
		"opened":           true,
		"autoCloseSeconds": int(s.deps.Gate.PulseDuration().Seconds()),
	}, http.StatusOK)
}

// handleGateState returns the persisted gate state.
func (s *Server) handleGateState(w http.ResponseWriter, communityID int64) {
	open, err := s.deps.Gate.State(communityID)
	if err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}
	apiJSON(w, map[string]bool{"open": open}, http.StatusOK)
}
