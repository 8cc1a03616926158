package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// handleAPICommunities handles /api/communities — list or create.
func (s *Server) handleAPICommunities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		communities, err := s.deps.Communities.List()
		if err != nil {
			apiError(w, fmt.Sprintf("listing communities: %v", err), http.StatusInternalServerError)
			return
		}
		apiJSON(w, communities, http.StatusOK)
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			apiError(w, "name is required", http.StatusBadRequest)
			return
		}
		c, err := s.deps.Communities.Create(strings.TrimSpace(req.Name))
		if err != nil {
			apiError(w, fmt.Sprintf("creating community: %v", err), http.StatusInternalServerError)
			return
		}
		apiJSON(w, c, http.StatusCreated)
	default:
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPICommunityRoute routes /api/communities/{id}/houses.
func (s *Server) handleAPICommunityRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/communities")

	if len(parts) == 2 && parts[1] == "houses" {
		communityID, err := parseID(parts[0])
		if err != nil {
			apiError(w, "invalid community ID", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.apiListHouses(w, communityID)
		case http.MethodPost:
			s.apiAddHouse(w, r, communityID)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	apiError(w, "not found", http.StatusNotFound)
}

// handleAPIHouseRoute routes /api/houses/{id}/residents.
func (s *Server) handleAPIHouseRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/houses")

	if len(parts) == 2 && parts[1] == "residents" {
		houseID, err := parseID(parts[0])
		if err != nil {
			apiError(w, "invalid house ID", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.apiListResidents(w, houseID)
		case http.MethodPost:
			s.apiAddResident(w, r, houseID)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	apiError(w, "not found", http.StatusNotFound)
}

func (s *Server) apiListHouses(w http.ResponseWriter, communityID int64) {
	houses, err := s.deps.Houses.ListByCommunity(communityID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing houses: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, houses, http.StatusOK)
}

func (s *Server) apiAddHouse(w http.ResponseWriter, r *http.Request, communityID int64) {
	var req struct {
		Number string `json:"number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Number) == "" {
		apiError(w, "number is required", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Communities.GetByID(communityID); err != nil {
		apiError(w, "community not found", http.StatusNotFound)
		return
	}

	h, err := s.deps.Houses.Create(communityID, strings.TrimSpace(req.Number))
	if err != nil {
		apiError(w, fmt.Sprintf("creating house: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, h, http.StatusCreated)
}

func (s *Server) apiListResidents(w http.ResponseWriter, houseID int64) {
	residents, err := s.deps.Residents.ListByHouse(houseID)
	if err != nil {
		apiError(w, fmt.Sprintf("listing residents: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, residents, http.StatusOK)
}

func (s *Server) apiAddResident(w http.ResponseWriter, r *http.Request, houseID int64) {
	var req struct {
		Name        string `json:"name"`
		DeviceToken string `json:"deviceToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		apiError(w, "name is required", http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Houses.GetByID(houseID); err != nil {
		apiError(w, "house not found", http.StatusNotFound)
		return
	}

	res, err := s.deps.Residents.Create(houseID, strings.TrimSpace(req.Name), req.DeviceToken)
	if err != nil {
		apiError(w, fmt.Sprintf("creating resident: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, res, http.StatusCreated)
}
