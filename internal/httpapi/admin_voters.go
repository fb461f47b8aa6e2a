package httpapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"saylau.org/internal/audit"
	"saylau.org/internal/auth"
	"saylau.org/internal/roster"
)

type createVoterRequest struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

func (a *API) handleAdminVotersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.roster.ListUsers(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, viewUser(u))
		}
		writeData(w, http.StatusOK, views)
	case http.MethodPost:
		a.createVoter(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createVoter(w http.ResponseWriter, r *http.Request) {
	var req createVoterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req.StudentID = strings.TrimSpace(req.StudentID)
	role := strings.TrimSpace(strings.ToLower(req.Role))
	if role == "" {
		role = auth.RoleVoter
	}
	var issues []fieldIssue
	if req.StudentID == "" {
		issues = append(issues, fieldIssue{Field: "studentId", Message: "is required"})
	}
	if len(req.Password) < auth.MinPasswordLength {
		issues = append(issues, fieldIssue{Field: "password", Message: "must be at least 6 characters"})
	}
	if role != auth.RoleVoter && role != auth.RoleAdmin {
		issues = append(issues, fieldIssue{Field: "role", Message: "must be voter or admin"})
	}
	if len(issues) > 0 {
		writeValidationError(w, r, issues)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	created, err := a.roster.CreateUser(r.Context(), roster.User{
		StudentID:    req.StudentID,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), audit.ActionCreate, "user", strconv.Itoa(created.ID), map[string]any{
		"studentId": created.StudentID,
		"role":      created.Role,
	})
	writeData(w, http.StatusCreated, viewUser(created))
}

func (a *API) handleAdminVoterResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/voters/")
	switch rest {
	case "bulk-range":
		a.bulkRangeVoters(w, r)
		return
	case "upload":
		a.uploadVoters(w, r)
		return
	}

	id, sub, ok := pathID(r.URL.Path, "/admin/voters/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if sub == "reset-password" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.resetVoterPassword(w, r, id)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		u, err := a.roster.GetUser(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, viewUser(u))
	case http.MethodDelete:
		u, err := a.roster.GetUser(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		if err := a.roster.DeleteUser(r.Context(), id); err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "user", strconv.Itoa(id), map[string]any{
			"studentId": u.StudentID,
		})
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) resetVoterPassword(w http.ResponseWriter, r *http.Request, id int) {
	u, err := a.roster.GetUser(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	password, err := roster.RandomPassword(8)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.roster.UpdatePassword(r.Context(), id, hash, false); err != nil {
		handleStoreError(w, r, err)
		return
	}

	// The plaintext goes to the admin once and never into the audit trail.
	a.audit(r.Context(), audit.ActionResetPassword, "user", strconv.Itoa(id), map[string]any{
		"studentId": u.StudentID,
	})
	writeData(w, http.StatusOK, map[string]any{
		"studentId": u.StudentID,
		"password":  password,
	})
}

type bulkRangeRequest struct {
	YearPrefix int  `json:"yearPrefix"`
	Start      int  `json:"start"`
	End        int  `json:"end"`
	GroupID    *int `json:"groupId"`
}

type bulkCredential struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
}

func (a *API) bulkRangeVoters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req bulkRangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var issues []fieldIssue
	if req.YearPrefix < 0 || req.YearPrefix > 99 {
		issues = append(issues, fieldIssue{Field: "yearPrefix", Message: "must be between 0 and 99"})
	}
	if req.Start < 1 || req.Start > 9999 {
		issues = append(issues, fieldIssue{Field: "start", Message: "must be between 1 and 9999"})
	}
	if req.End < req.Start || req.End > 9999 {
		issues = append(issues, fieldIssue{Field: "end", Message: "must be between start and 9999"})
	}
	if len(issues) == 0 && req.End-req.Start+1 > roster.BulkRangeMax {
		issues = append(issues, fieldIssue{Field: "end", Message: fmt.Sprintf("range exceeds %d accounts", roster.BulkRangeMax)})
	}
	if len(issues) > 0 {
		writeValidationError(w, r, issues)
		return
	}

	created := make([]bulkCredential, 0, req.End-req.Start+1)
	skipped := make([]string, 0)
	createdIDs := make([]int, 0, req.End-req.Start+1)
	for seq := req.Start; seq <= req.End; seq++ {
		studentID := roster.FormatStudentID(req.YearPrefix, seq)
		password, err := roster.RandomPassword(8)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		u, err := a.roster.CreateUser(r.Context(), roster.User{
			StudentID:    studentID,
			Role:         auth.RoleVoter,
			PasswordHash: hash,
		})
		if err != nil {
			if errors.Is(err, roster.ErrDuplicateStudentID) {
				skipped = append(skipped, studentID)
				continue
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		created = append(created, bulkCredential{StudentID: studentID, Password: password})
		createdIDs = append(createdIDs, u.ID)
	}

	if req.GroupID != nil && len(createdIDs) > 0 {
		if err := a.roster.AddGroupMembers(r.Context(), *req.GroupID, createdIDs); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}

	a.audit(r.Context(), audit.ActionBulkCreate, "user", "range", map[string]any{
		"yearPrefix": req.YearPrefix,
		"start":      req.Start,
		"end":        req.End,
		"created":    len(created),
		"skipped":    len(skipped),
	})
	writeData(w, http.StatusCreated, map[string]any{
		"created": created,
		"skipped": skipped,
	})
}

type uploadRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (a *API) uploadVoters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "csv header row is required")
		return
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}
	sidCol, ok := cols["student_id"]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "csv must contain a student_id column")
		return
	}
	pwCol, ok := cols["password"]
	if !ok {
		writeError(w, r, http.StatusBadRequest, "csv must contain a password column")
		return
	}
	nameCol, hasName := cols["name"]
	roleCol, hasRole := cols["role"]

	createdCount := 0
	skippedCount := 0
	rowErrors := make([]uploadRowError, 0)
	line := 1
	for {
		line++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "malformed csv row"})
			continue
		}

		studentID := strings.TrimSpace(field(record, sidCol))
		password := field(record, pwCol)
		if studentID == "" {
			rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "student_id is required"})
			continue
		}
		if len(password) < auth.MinPasswordLength {
			rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "password must be at least 6 characters"})
			continue
		}
		role := auth.RoleVoter
		if hasRole {
			if v := strings.TrimSpace(strings.ToLower(field(record, roleCol))); v != "" {
				if v != auth.RoleVoter && v != auth.RoleAdmin {
					rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "role must be voter or admin"})
					continue
				}
				role = v
			}
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "could not hash password"})
			continue
		}
		u := roster.User{StudentID: studentID, Role: role, PasswordHash: hash}
		if hasName {
			u.Name = strings.TrimSpace(field(record, nameCol))
		}
		if _, err := a.roster.CreateUser(r.Context(), u); err != nil {
			if errors.Is(err, roster.ErrDuplicateStudentID) {
				skippedCount++
				continue
			}
			rowErrors = append(rowErrors, uploadRowError{Line: line, Message: "could not create user"})
			continue
		}
		createdCount++
	}

	a.audit(r.Context(), audit.ActionBulkCreate, "user", "upload", map[string]any{
		"created": createdCount,
		"skipped": skippedCount,
		"errors":  len(rowErrors),
	})
	writeData(w, http.StatusCreated, map[string]any{
		"created": createdCount,
		"skipped": skippedCount,
		"errors":  rowErrors,
	})
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
