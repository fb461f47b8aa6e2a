package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"saylau.org/internal/audit"
)

type groupRequest struct {
	Name string `json:"name"`
}

func (a *API) handleAdminGroupsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.roster.ListGroups(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeData(w, http.StatusOK, items)
	case http.MethodPost:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeValidationError(w, r, []fieldIssue{{Field: "name", Message: "is required"}})
			return
		}
		created, err := a.roster.CreateGroup(r.Context(), name)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "group", strconv.Itoa(created.ID), map[string]any{
			"name": created.Name,
		})
		writeData(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminGroupResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := pathID(r.URL.Path, "/admin/groups/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if sub == "members" {
		a.handleGroupMembers(w, r, id)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g, err := a.roster.GetGroup(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, g)
	case http.MethodPut:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeValidationError(w, r, []fieldIssue{{Field: "name", Message: "is required"}})
			return
		}
		updated, err := a.roster.RenameGroup(r.Context(), id, name)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "group", strconv.Itoa(id), map[string]any{
			"name": updated.Name,
		})
		writeData(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := a.roster.DeleteGroup(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "group", strconv.Itoa(id), nil)
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type groupMembersRequest struct {
	UserIDs []int `json:"userIds"`
}

func (a *API) handleGroupMembers(w http.ResponseWriter, r *http.Request, groupID int) {
	switch r.Method {
	case http.MethodGet:
		members, err := a.roster.ListGroupMembers(r.Context(), groupID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		views := make([]userView, 0, len(members))
		for _, u := range members {
			views = append(views, viewUser(u))
		}
		writeData(w, http.StatusOK, views)
	case http.MethodPut:
		var req groupMembersRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.roster.SetGroupMembers(r.Context(), groupID, req.UserIDs); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionSetMembers, "group", strconv.Itoa(groupID), map[string]any{
			"memberCount": len(req.UserIDs),
		})
		writeData(w, http.StatusOK, map[string]any{"members": len(req.UserIDs)})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
