package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"saylau.org/internal/audit"
	"saylau.org/internal/election"
)

type positionRequest struct {
	ElectionID       int      `json:"electionId"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SeatsCount       *int     `json:"seatsCount"`
	GradeEligibility []string `json:"gradeEligibility"`
	OrderIndex       int      `json:"orderIndex"`
}

func (req *positionRequest) validate(requireElection bool) (int, []fieldIssue) {
	var issues []fieldIssue
	if requireElection && req.ElectionID <= 0 {
		issues = append(issues, fieldIssue{Field: "electionId", Message: "must be a positive integer"})
	}
	if strings.TrimSpace(req.Name) == "" {
		issues = append(issues, fieldIssue{Field: "name", Message: "is required"})
	}
	seats := 1
	if req.SeatsCount != nil {
		seats = *req.SeatsCount
	}
	if seats < 1 {
		issues = append(issues, fieldIssue{Field: "seatsCount", Message: "must be at least 1"})
	}
	return seats, issues
}

func (a *API) handleAdminPositionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		electionID, err := queryInt(r, "electionId")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		items, err := a.catalog.ListPositions(r.Context(), electionID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, items)
	case http.MethodPost:
		var req positionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		seats, issues := req.validate(true)
		if len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		created, err := a.catalog.CreatePosition(r.Context(), election.Position{
			ElectionID:       req.ElectionID,
			Name:             strings.TrimSpace(req.Name),
			Description:      strings.TrimSpace(req.Description),
			SeatsCount:       seats,
			GradeEligibility: req.GradeEligibility,
			OrderIndex:       req.OrderIndex,
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "position", strconv.Itoa(created.ID), map[string]any{
			"electionId": created.ElectionID,
			"name":       created.Name,
		})
		writeData(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminPositionResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := pathID(r.URL.Path, "/admin/positions/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := a.catalog.GetPosition(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, p)
	case http.MethodPut:
		var req positionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		seats, issues := req.validate(false)
		if len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		updated, err := a.catalog.UpdatePosition(r.Context(), election.Position{
			ID:               id,
			Name:             strings.TrimSpace(req.Name),
			Description:      strings.TrimSpace(req.Description),
			SeatsCount:       seats,
			GradeEligibility: req.GradeEligibility,
			OrderIndex:       req.OrderIndex,
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "position", strconv.Itoa(id), map[string]any{
			"name": updated.Name,
		})
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := a.catalog.DeletePosition(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "position", strconv.Itoa(id), nil)
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type partyRequest struct {
	Name       string `json:"name"`
	Color      string `json:"color"`
	ElectionID *int   `json:"electionId"`
}

func (req *partyRequest) validate() []fieldIssue {
	var issues []fieldIssue
	if strings.TrimSpace(req.Name) == "" {
		issues = append(issues, fieldIssue{Field: "name", Message: "is required"})
	}
	if len(req.Color) > 32 {
		issues = append(issues, fieldIssue{Field: "color", Message: "must be at most 32 characters"})
	}
	return issues
}

func (a *API) handleAdminPartiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.catalog.ListParties(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, items)
	case http.MethodPost:
		var req partyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if issues := req.validate(); len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		created, err := a.catalog.CreateParty(r.Context(), election.Party{
			Name:       strings.TrimSpace(req.Name),
			Color:      strings.TrimSpace(req.Color),
			ElectionID: req.ElectionID,
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "party", strconv.Itoa(created.ID), map[string]any{
			"name": created.Name,
		})
		writeData(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminPartyResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := pathID(r.URL.Path, "/admin/parties/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req partyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if issues := req.validate(); len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		updated, err := a.catalog.UpdateParty(r.Context(), election.Party{
			ID:         id,
			Name:       strings.TrimSpace(req.Name),
			Color:      strings.TrimSpace(req.Color),
			ElectionID: req.ElectionID,
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "party", strconv.Itoa(id), map[string]any{
			"name": updated.Name,
		})
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := a.catalog.DeleteParty(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "party", strconv.Itoa(id), nil)
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

type candidateRequest struct {
	PositionID int    `json:"positionId"`
	PartyID    *int   `json:"partyId"`
	Name       string `json:"name"`
	Grade      string `json:"grade"`
	Bio        string `json:"bio"`
	ImageURL   string `json:"imageUrl"`
}

func (req *candidateRequest) validate(requirePosition bool) []fieldIssue {
	var issues []fieldIssue
	if requirePosition && req.PositionID <= 0 {
		issues = append(issues, fieldIssue{Field: "positionId", Message: "must be a positive integer"})
	}
	if strings.TrimSpace(req.Name) == "" {
		issues = append(issues, fieldIssue{Field: "name", Message: "is required"})
	}
	return issues
}

func (a *API) handleAdminCandidatesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		positionID, err := queryInt(r, "positionId")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		items, err := a.catalog.ListCandidates(r.Context(), positionID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, items)
	case http.MethodPost:
		var req candidateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if issues := req.validate(true); len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		created, err := a.catalog.CreateCandidate(r.Context(), election.Candidate{
			PositionID: req.PositionID,
			PartyID:    req.PartyID,
			Name:       strings.TrimSpace(req.Name),
			Grade:      strings.TrimSpace(req.Grade),
			Bio:        strings.TrimSpace(req.Bio),
			ImageURL:   strings.TrimSpace(req.ImageURL),
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "candidate", strconv.Itoa(created.ID), map[string]any{
			"positionId": created.PositionID,
			"name":       created.Name,
		})
		writeData(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminCandidateResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := pathID(r.URL.Path, "/admin/candidates/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req candidateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if issues := req.validate(false); len(issues) > 0 {
			writeValidationError(w, r, issues)
			return
		}
		updated, err := a.catalog.UpdateCandidate(r.Context(), election.Candidate{
			ID:       id,
			PartyID:  req.PartyID,
			Name:     strings.TrimSpace(req.Name),
			Grade:    strings.TrimSpace(req.Grade),
			Bio:      strings.TrimSpace(req.Bio),
			ImageURL: strings.TrimSpace(req.ImageURL),
		})
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "candidate", strconv.Itoa(id), map[string]any{
			"name": updated.Name,
		})
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := a.catalog.DeleteCandidate(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "candidate", strconv.Itoa(id), nil)
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
