package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"saylau.org/internal/auth"
	"saylau.org/internal/roster"
)

type loginRequest struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
}

type userView struct {
	ID              int    `json:"id"`
	StudentID       string `json:"studentId"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role"`
	PasswordChanged bool   `json:"passwordChanged"`
}

func viewUser(u roster.User) userView {
	return userView{
		ID:              u.ID,
		StudentID:       u.StudentID,
		Name:            u.Name,
		Role:            u.Role,
		PasswordChanged: u.PasswordChanged,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.StudentID == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "studentId and password are required")
		return
	}

	u, err := a.roster.FindByStudentID(r.Context(), req.StudentID)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			// Same message as a bad password so logins cannot probe for
			// valid student ids.
			writeError(w, r, http.StatusUnauthorized, "invalid student ID or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid student ID or password")
		return
	}

	token, err := auth.GenerateToken(u.ID, u.StudentID, u.Role, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": time.Now().UTC().Add(a.sessionTTL).Format(time.RFC3339),
		"user":      viewUser(u),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.NewPassword) < auth.MinPasswordLength {
		writeValidationError(w, r, []fieldIssue{{
			Field:   "newPassword",
			Message: "must be at least 6 characters",
		}})
		return
	}

	u, err := a.roster.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := auth.VerifyPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, r, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.roster.UpdatePassword(r.Context(), uid, hash, true); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeData(w, http.StatusOK, map[string]any{"passwordChanged": true})
}
