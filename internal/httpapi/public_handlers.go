package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"saylau.org/internal/election"
)

type electionView struct {
	election.Election
	Status      election.StatusValue `json:"status"`
	StatusLabel string               `json:"statusLabel"`
}

func viewElection(e election.Election, now time.Time) electionView {
	s := election.Status(e, now)
	return electionView{Election: e, Status: s, StatusLabel: election.StatusLabel(s)}
}

func (a *API) handleElections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	now := time.Now().UTC()

	if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
		e, err := a.catalog.GetElectionByCode(r.Context(), code)
		if err != nil {
			if errors.Is(err, election.ErrNotFound) {
				writeError(w, r, http.StatusNotFound, "no election found for this code")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, viewElection(e, now))
		return
	}

	items, err := a.catalog.ListElections(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]electionView, 0, len(items))
	for _, e := range items {
		views = append(views, viewElection(e, now))
	}
	writeData(w, http.StatusOK, views)
}

func (a *API) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
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
}

func (a *API) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("positionId")); raw != "" {
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
		return
	}

	electionID, err := queryInt(r, "electionId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "positionId or electionId query parameter is required")
		return
	}
	items, err := a.catalog.ListCandidatesByElection(r.Context(), electionID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, http.StatusOK, items)
}

func (a *API) handleParties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.catalog.ListParties(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("electionId")); raw != "" {
		electionID, err := queryInt(r, "electionId")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filtered := items[:0]
		for _, p := range items {
			if p.ElectionID == nil || *p.ElectionID == electionID {
				filtered = append(filtered, p)
			}
		}
		items = filtered
	}
	writeData(w, http.StatusOK, items)
}

func (a *API) handleSiteSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	settings, err := a.catalog.GetSiteSettings(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, http.StatusOK, settings)
}
