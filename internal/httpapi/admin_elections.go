package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"saylau.org/internal/audit"
	"saylau.org/internal/election"
)

// joinCodeAttempts bounds retries when a generated code collides.
const joinCodeAttempts = 20

type electionRequest struct {
	Name         string `json:"name"`
	AcademicYear string `json:"academicYear"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	IsActive     bool   `json:"isActive"`
}

func (req *electionRequest) validate() (start, end time.Time, issues []fieldIssue) {
	if strings.TrimSpace(req.Name) == "" {
		issues = append(issues, fieldIssue{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(req.AcademicYear) == "" {
		issues = append(issues, fieldIssue{Field: "academicYear", Message: "is required"})
	}
	var err error
	start, err = time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		issues = append(issues, fieldIssue{Field: "startDate", Message: "must be an RFC3339 timestamp"})
	}
	end, err = time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		issues = append(issues, fieldIssue{Field: "endDate", Message: "must be an RFC3339 timestamp"})
	}
	if len(issues) == 0 && !end.After(start) {
		issues = append(issues, fieldIssue{Field: "endDate", Message: "must be after startDate"})
	}
	return start, end, issues
}

func (a *API) handleAdminElectionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.catalog.ListElections(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		now := time.Now().UTC()
		views := make([]electionView, 0, len(items))
		for _, e := range items {
			views = append(views, viewElection(e, now))
		}
		writeData(w, http.StatusOK, views)
	case http.MethodPost:
		a.createElection(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createElection(w http.ResponseWriter, r *http.Request) {
	var req electionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, end, issues := req.validate()
	if len(issues) > 0 {
		writeValidationError(w, r, issues)
		return
	}

	var created election.Election
	for attempt := 0; ; attempt++ {
		code, err := election.RandomJoinCode()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		created, err = a.catalog.CreateElection(r.Context(), election.Election{
			Name:         strings.TrimSpace(req.Name),
			AcademicYear: strings.TrimSpace(req.AcademicYear),
			StartDate:    start.UTC(),
			EndDate:      end.UTC(),
			IsActive:     req.IsActive,
			Code:         code,
		})
		if err == nil {
			break
		}
		if errors.Is(err, election.ErrDuplicateCode) && attempt < joinCodeAttempts {
			continue
		}
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), audit.ActionCreate, "election", strconv.Itoa(created.ID), map[string]any{
		"name":         created.Name,
		"academicYear": created.AcademicYear,
	})
	writeData(w, http.StatusCreated, viewElection(created, time.Now().UTC()))
}

func (a *API) handleAdminElectionResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := pathID(r.URL.Path, "/admin/elections/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if sub == "allowed-groups" {
		a.handleAllowedGroups(w, r, id)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, err := a.catalog.GetElection(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, viewElection(e, time.Now().UTC()))
	case http.MethodPut:
		a.updateElection(w, r, id)
	case http.MethodDelete:
		a.deleteElection(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateElection(w http.ResponseWriter, r *http.Request, id int) {
	var req electionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, end, issues := req.validate()
	if len(issues) > 0 {
		writeValidationError(w, r, issues)
		return
	}

	existing, err := a.catalog.GetElection(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	existing.Name = strings.TrimSpace(req.Name)
	existing.AcademicYear = strings.TrimSpace(req.AcademicYear)
	existing.StartDate = start.UTC()
	existing.EndDate = end.UTC()
	existing.IsActive = req.IsActive

	updated, err := a.catalog.UpdateElection(r.Context(), existing)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), audit.ActionUpdate, "election", strconv.Itoa(id), map[string]any{
		"name":     updated.Name,
		"isActive": updated.IsActive,
	})
	writeData(w, http.StatusOK, viewElection(updated, time.Now().UTC()))
}

func (a *API) deleteElection(w http.ResponseWriter, r *http.Request, id int) {
	if err := a.catalog.DeleteElection(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionDelete, "election", strconv.Itoa(id), nil)
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

type allowedGroupsRequest struct {
	GroupIDs []int `json:"groupIds"`
}

func (a *API) handleAllowedGroups(w http.ResponseWriter, r *http.Request, electionID int) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.roster.ListAllowedGroups(r.Context(), electionID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, groups)
	case http.MethodPut:
		var req allowedGroupsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		// Replace semantics: an empty list clears the restriction and makes
		// the election open to every voter.
		if err := a.roster.SetAllowedGroups(r.Context(), electionID, req.GroupIDs); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionSetAllowed, "election", strconv.Itoa(electionID), map[string]any{
			"groupIds": req.GroupIDs,
		})
		groups, err := a.roster.ListAllowedGroups(r.Context(), electionID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, groups)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
