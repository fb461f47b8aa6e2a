package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"saylau.org/internal/audit"
	"saylau.org/internal/election"
)

// Ballot secrecy: the admin surface keeps the vote endpoints visible but
// refuses them unconditionally, before any store access. Nothing is audited
// because nothing happens.

func (a *API) handleAdminVotesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeError(w, r, http.StatusForbidden,
		"individual votes are not accessible: ballot privacy is enforced at the API level")
}

func (a *API) handleAdminVoteResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	writeError(w, r, http.StatusForbidden,
		"votes cannot be deleted: election integrity requires an immutable ballot ledger")
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	entries, err := a.recorder.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, http.StatusOK, entries)
}

type siteSettingsRequest struct {
	SchoolName string `json:"schoolName"`
	LogoURL    string `json:"logoUrl"`
}

func (a *API) handleAdminSiteSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.catalog.GetSiteSettings(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, settings)
	case http.MethodPut:
		var req siteSettingsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.SchoolName)
		if name == "" {
			writeValidationError(w, r, []fieldIssue{{Field: "schoolName", Message: "is required"}})
			return
		}
		updated, err := a.catalog.UpdateSiteSettings(r.Context(), election.SiteSettings{
			SchoolName: name,
			LogoURL:    strings.TrimSpace(req.LogoURL),
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "site_settings", strconv.Itoa(updated.ID), map[string]any{
			"schoolName": updated.SchoolName,
		})
		writeData(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
