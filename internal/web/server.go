// Package web provides the HTTP server and handlers for the porteria API.
package web

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rvaldez/porteria/internal/community"
	"github.com/rvaldez/porteria/internal/gate"
	"github.com/rvaldez/porteria/internal/house"
	"github.com/rvaldez/porteria/internal/push"
	"github.com/rvaldez/porteria/internal/realtime"
	"github.com/rvaldez/porteria/internal/resident"
	"github.com/rvaldez/porteria/internal/visit"
)

// Sender dispatches visible push prompts to resident devices.
type Sender interface {
	Send(ctx context.Context, deviceTokens []string, title, body string, data map[string]interface{}) (*push.SendResult, error)
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Communities  *community.Repository
	Houses       *house.Repository
	Residents    *resident.Repository
	Records      *visit.Repository
	Profiles     *visit.ProfileRepository
	Guard        *visit.Guard
	Orchestrator *visit.Orchestrator
	Scheduler    *visit.Scheduler
	Gate         *gate.Actuator
	Push         Sender
	Hub          *realtime.Hub
	Sinks        visit.SinkWriter
	HMACSecret   string
}

// Server is the porteria HTTP server.
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	arrival *jsonschema.Schema
}

// NewServer creates the API server.
func NewServer(deps Deps) (*Server, error) {
	s := &Server{deps: deps, mux: http.NewServeMux()}

	schema, err := compileArrivalSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling arrival schema: %w", err)
	}
	s.arrival = schema

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/notifications/", s.handleNotifications)
	s.mux.HandleFunc("/reports", s.handleReports)
	s.mux.HandleFunc("/reports/", s.handleReportRoute)
	s.mux.HandleFunc("/analytics/frequent-visitors/", s.handleFrequentVisitors)
	s.mux.HandleFunc("/api/communities", s.handleAPICommunities)
	s.mux.HandleFunc("/api/communities/", s.handleAPICommunityRoute)
	s.mux.HandleFunc("/api/houses/", s.handleAPIHouseRoute)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/", s.handleGateRoute)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// securityHash derives the truncated HMAC clients use to prove a pending
// entry is legitimate without holding the signing secret.
func securityHash(secret string, communityID int64, houseNumber, notificationID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d|%s|%s", communityID, houseNumber, notificationID)
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// GateQRCode derives the QR payload binding a resident to a community gate.
func GateQRCode(secret string, communityID, residentID int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "gate|%d|%d", communityID, residentID)
	return hex.EncodeToString(mac.Sum(nil))[:20]
}

func parseID(segment string) (int64, error) {
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", segment)
	}
	return id, nil
}

func splitPath(path, prefix string) []string {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
