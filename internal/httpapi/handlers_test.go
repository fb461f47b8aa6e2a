package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"saylau.org/internal/audit"
	"saylau.org/internal/auth"
	"saylau.org/internal/ballot"
	"saylau.org/internal/election"
	"saylau.org/internal/roster"
	"saylau.org/internal/store/memory"
	"saylau.org/internal/stream"
)

type testEnv struct {
	t      *testing.T
	store  *memory.Store
	base   string
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	t.Setenv("SAYLAU_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := memory.New()
	votes := ballot.NewService(store, store, store)
	results := ballot.NewAggregator(store, store, store)
	feed := stream.NewFeed(results, 20*time.Millisecond)

	api := New(Config{
		Catalog:    store,
		Roster:     store,
		Votes:      votes,
		Results:    results,
		Feed:       feed,
		Recorder:   audit.NewRecorder(store),
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		api.Close()
	})

	return &testEnv{
		t:      t,
		store:  store,
		base:   srv.URL,
		client: srv.Client(),
	}
}

// seedUser writes directly to the store with a cheap bcrypt cost so test
// setup stays fast; login still goes through the real verifier.
func (env *testEnv) seedUser(studentID, password, role string) roster.User {
	env.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		env.t.Fatalf("hash password: %v", err)
	}
	u, err := env.store.CreateUser(context.Background(), roster.User{
		StudentID:    studentID,
		Role:         role,
		PasswordHash: string(hash),
	})
	if err != nil {
		env.t.Fatalf("seed user %s: %v", studentID, err)
	}
	return u
}

func (env *testEnv) seedOpenElection() (election.Election, election.Position, []election.Candidate) {
	env.t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	e, err := env.store.CreateElection(ctx, election.Election{
		Name:         "Student Council",
		AcademicYear: "2026-2027",
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(time.Hour),
		IsActive:     true,
		Code:         "123456",
	})
	if err != nil {
		env.t.Fatalf("seed election: %v", err)
	}
	p, err := env.store.CreatePosition(ctx, election.Position{
		ElectionID: e.ID,
		Name:       "President",
		SeatsCount: 1,
	})
	if err != nil {
		env.t.Fatalf("seed position: %v", err)
	}
	var candidates []election.Candidate
	for _, name := range []string{"Aigerim", "Dias"} {
		c, err := env.store.CreateCandidate(ctx, election.Candidate{
			PositionID: p.ID,
			Name:       name,
		})
		if err != nil {
			env.t.Fatalf("seed candidate %s: %v", name, err)
		}
		candidates = append(candidates, c)
	}
	return e, p, candidates
}

func (env *testEnv) do(method, path, token string, body any) *http.Response {
	env.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			env.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, env.base+path, reader)
	if err != nil {
		env.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.client.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (env *testEnv) login(studentID, password string) string {
	env.t.Helper()
	resp := env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"studentId": studentID,
		"password":  password,
	})
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("login %s: unexpected status %d", studentID, resp.StatusCode)
	}
	payload := decode[struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}](env.t, resp)
	if payload.Data.Token == "" {
		env.t.Fatal("login returned empty token")
	}
	return payload.Data.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLoginIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)

	resp := env.do(http.MethodPost, "/auth/login", "", map[string]any{
		"studentId": "21-0001",
		"password":  "Secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	payload := decode[struct {
		Data struct {
			Token     string `json:"token"`
			ExpiresAt string `json:"expiresAt"`
			User      struct {
				StudentID string `json:"studentId"`
				Role      string `json:"role"`
			} `json:"user"`
		} `json:"data"`
	}](t, resp)
	if payload.Data.Token == "" {
		t.Fatal("expected a token")
	}
	if payload.Data.User.StudentID != "21-0001" || payload.Data.User.Role != "voter" {
		t.Fatalf("unexpected user view: %+v", payload.Data.User)
	}
	if _, err := time.Parse(time.RFC3339, payload.Data.ExpiresAt); err != nil {
		t.Fatalf("expiresAt is not RFC3339: %v", err)
	}

	claims, err := auth.ParseAndValidate(payload.Data.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Role != auth.RoleVoter {
		t.Fatalf("unexpected role claim: %s", claims.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)

	// Wrong password and unknown student id must be indistinguishable.
	var messages []string
	for _, body := range []map[string]any{
		{"studentId": "21-0001", "password": "wrong"},
		{"studentId": "99-9999", "password": "Secret1"},
	} {
		resp := env.do(http.MethodPost, "/auth/login", "", body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		payload := decode[map[string]any](t, resp)
		messages = append(messages, payload["error"].(string))
	}
	if messages[0] != messages[1] {
		t.Fatalf("error messages differ: %q vs %q", messages[0], messages[1])
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	token := env.login("21-0001", "Secret1")

	resp := env.do(http.MethodPost, "/auth/change-password", token, map[string]any{
		"currentPassword": "nope",
		"newPassword":     "NewSecret1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/auth/change-password", token, map[string]any{
		"currentPassword": "Secret1",
		"newPassword":     "ab",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/auth/change-password", token, map[string]any{
		"currentPassword": "Secret1",
		"newPassword":     "NewSecret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	env.login("21-0001", "NewSecret1")
}

func TestCastVoteFlow(t *testing.T) {
	env := newTestEnv(t)
	e, p, candidates := env.seedOpenElection()
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	token := env.login("21-0001", "Secret1")

	ballotBody := map[string]any{
		"electionId":  e.ID,
		"positionId":  p.ID,
		"candidateId": candidates[0].ID,
	}

	resp := env.do(http.MethodPost, "/votes", "", ballotBody)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated vote: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/votes", token, ballotBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cast vote: expected 201, got %d", resp.StatusCode)
	}
	created := decode[struct {
		Data ballot.Vote `json:"data"`
	}](t, resp)
	if created.Data.CandidateID != candidates[0].ID {
		t.Fatalf("unexpected vote payload: %+v", created.Data)
	}

	resp = env.do(http.MethodGet, fmt.Sprintf("/votes/check?electionId=%d", e.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("votes/check: expected 200, got %d", resp.StatusCode)
	}
	check := decode[struct {
		Data struct {
			HasVoted bool `json:"hasVoted"`
		} `json:"data"`
	}](t, resp)
	if !check.Data.HasVoted {
		t.Fatal("expected hasVoted true after casting")
	}

	// Same position again, even for another candidate, is a conflict.
	resp = env.do(http.MethodPost, "/votes", token, map[string]any{
		"electionId":  e.ID,
		"positionId":  p.ID,
		"candidateId": candidates[1].ID,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate vote: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, fmt.Sprintf("/results?electionId=%d", e.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", resp.StatusCode)
	}
	// Like every other success response, the payload sits under "data".
	results := decode[struct {
		Data ballot.ResultsPayload `json:"data"`
	}](t, resp)
	if results.Data.Election.ID != e.ID {
		t.Fatalf("expected data envelope with the election, got %+v", results.Data)
	}
	if results.Data.TotalVotes != 1 {
		t.Fatalf("expected 1 counted voter, got %d", results.Data.TotalVotes)
	}
	if len(results.Data.ByPosition) != 1 || results.Data.ByPosition[0].Candidates[0].Votes != 1 {
		t.Fatalf("unexpected aggregation: %+v", results.Data.ByPosition)
	}
}

func TestCastVoteValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpenElection()
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	token := env.login("21-0001", "Secret1")

	resp := env.do(http.MethodPost, "/votes", token, map[string]any{
		"electionId":  0,
		"positionId":  0,
		"candidateId": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	payload := decode[struct {
		Issues []fieldIssue `json:"issues"`
	}](t, resp)
	if len(payload.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(payload.Issues))
	}
}

func TestCastVoteOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ended, err := env.store.CreateElection(ctx, election.Election{
		Name: "Last Year", AcademicYear: "2025-2026",
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour),
		IsActive: true, Code: "111111",
	})
	if err != nil {
		t.Fatalf("seed ended election: %v", err)
	}
	inactive, err := env.store.CreateElection(ctx, election.Election{
		Name: "Paused", AcademicYear: "2026-2027",
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		IsActive: false, Code: "222222",
	})
	if err != nil {
		t.Fatalf("seed inactive election: %v", err)
	}

	seedPositionAndCandidate := func(electionID int) (int, int) {
		p, err := env.store.CreatePosition(ctx, election.Position{ElectionID: electionID, Name: "President", SeatsCount: 1})
		if err != nil {
			t.Fatalf("seed position: %v", err)
		}
		c, err := env.store.CreateCandidate(ctx, election.Candidate{PositionID: p.ID, Name: "Aigerim"})
		if err != nil {
			t.Fatalf("seed candidate: %v", err)
		}
		return p.ID, c.ID
	}

	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	token := env.login("21-0001", "Secret1")

	for _, tc := range []struct {
		name       string
		electionID int
		wantErr    string
	}{
		{"ended", ended.ID, "not open"},
		{"inactive", inactive.ID, "not active"},
	} {
		pid, cid := seedPositionAndCandidate(tc.electionID)
		resp := env.do(http.MethodPost, "/votes", token, map[string]any{
			"electionId":  tc.electionID,
			"positionId":  pid,
			"candidateId": cid,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.StatusCode)
		}
		payload := decode[map[string]any](t, resp)
		if msg, _ := payload["error"].(string); !strings.Contains(msg, tc.wantErr) {
			t.Fatalf("%s: unexpected error message %q", tc.name, msg)
		}
	}
}

func TestEligibilityEnforcedViaAdminAPI(t *testing.T) {
	env := newTestEnv(t)
	e, p, candidates := env.seedOpenElection()
	env.seedUser("admin", "AdminPass1", auth.RoleAdmin)
	voter := env.seedUser("21-0001", "Secret1", auth.RoleVoter)

	adminToken := env.login("admin", "AdminPass1")
	voterToken := env.login("21-0001", "Secret1")

	resp := env.do(http.MethodPost, "/admin/groups", adminToken, map[string]any{"name": "Grade 11"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d", resp.StatusCode)
	}
	group := decode[struct {
		Data roster.Group `json:"data"`
	}](t, resp)

	resp = env.do(http.MethodPut, fmt.Sprintf("/admin/elections/%d/allowed-groups", e.ID), adminToken,
		map[string]any{"groupIds": []int{group.Data.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set allowed groups: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	ballotBody := map[string]any{
		"electionId":  e.ID,
		"positionId":  p.ID,
		"candidateId": candidates[0].ID,
	}
	resp = env.do(http.MethodPost, "/votes", voterToken, ballotBody)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member vote: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPut, fmt.Sprintf("/admin/groups/%d/members", group.Data.ID), adminToken,
		map[string]any{"userIds": []int{voter.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set members: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/votes", voterToken, ballotBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("member vote: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Clearing the allow-list reopens the election to everyone.
	resp = env.do(http.MethodPut, fmt.Sprintf("/admin/elections/%d/allowed-groups", e.ID), adminToken,
		map[string]any{"groupIds": []int{}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear allowed groups: expected 200, got %d", resp.StatusCode)
	}
	cleared := decode[struct {
		Data []roster.Group `json:"data"`
	}](t, resp)
	if len(cleared.Data) != 0 {
		t.Fatalf("expected empty allow-list, got %d groups", len(cleared.Data))
	}
}

func TestElectionLookupByCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedOpenElection()

	resp := env.do(http.MethodGet, "/elections?code=123456", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	found := decode[struct {
		Data struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"data"`
	}](t, resp)
	if found.Data.Name != "Student Council" || found.Data.Status != "open" {
		t.Fatalf("unexpected view: %+v", found.Data)
	}

	resp = env.do(http.MethodGet, "/elections?code=000000", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown code: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminVotesAlwaysRefused(t *testing.T) {
	env := newTestEnv(t)
	e, p, candidates := env.seedOpenElection()
	env.seedUser("admin", "AdminPass1", auth.RoleAdmin)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)

	voterToken := env.login("21-0001", "Secret1")
	resp := env.do(http.MethodPost, "/votes", voterToken, map[string]any{
		"electionId":  e.ID,
		"positionId":  p.ID,
		"candidateId": candidates[0].ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cast vote: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	adminToken := env.login("admin", "AdminPass1")
	auditBefore := env.store.AuditCount()

	resp = env.do(http.MethodGet, "/admin/votes", adminToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("list votes: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodDelete, "/admin/votes/1", adminToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("delete vote: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if env.store.VoteCount() != 1 {
		t.Fatalf("ballot ledger changed: %d votes", env.store.VoteCount())
	}
	if env.store.AuditCount() != auditBefore {
		t.Fatal("refused vote access must not generate audit entries")
	}
}

func TestAdminElectionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("admin", "AdminPass1", auth.RoleAdmin)
	token := env.login("admin", "AdminPass1")

	resp := env.do(http.MethodPost, "/admin/elections", token, map[string]any{
		"name":         "",
		"academicYear": "2026-2027",
		"startDate":    "not-a-date",
		"endDate":      "2026-09-10T00:00:00Z",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid create: expected 400, got %d", resp.StatusCode)
	}
	invalid := decode[struct {
		Issues []fieldIssue `json:"issues"`
	}](t, resp)
	if len(invalid.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %+v", invalid.Issues)
	}

	resp = env.do(http.MethodPost, "/admin/elections", token, map[string]any{
		"name":         "Student Council",
		"academicYear": "2026-2027",
		"startDate":    "2026-09-01T00:00:00Z",
		"endDate":      "2026-09-10T00:00:00Z",
		"isActive":     true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decode[struct {
		Data struct {
			ID     int    `json:"id"`
			Code   string `json:"code"`
			Status string `json:"status"`
		} `json:"data"`
	}](t, resp)
	if len(created.Data.Code) != election.JoinCodeLength {
		t.Fatalf("expected %d-digit join code, got %q", election.JoinCodeLength, created.Data.Code)
	}
	if created.Data.Status != "scheduled" {
		t.Fatalf("expected scheduled status, got %q", created.Data.Status)
	}

	resp = env.do(http.MethodPut, fmt.Sprintf("/admin/elections/%d", created.Data.ID), token, map[string]any{
		"name":         "Student Council 2026",
		"academicYear": "2026-2027",
		"startDate":    "2026-09-01T00:00:00Z",
		"endDate":      "2026-09-15T00:00:00Z",
		"isActive":     false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	updated := decode[struct {
		Data struct {
			Name   string `json:"name"`
			Code   string `json:"code"`
			Status string `json:"status"`
		} `json:"data"`
	}](t, resp)
	if updated.Data.Code != created.Data.Code {
		t.Fatal("update must preserve the join code")
	}
	if updated.Data.Status != "inactive" {
		t.Fatalf("expected inactive status, got %q", updated.Data.Status)
	}

	resp = env.do(http.MethodGet, "/admin/audit", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", resp.StatusCode)
	}
	trail := decode[struct {
		Data []audit.Entry `json:"data"`
	}](t, resp)
	if len(trail.Data) < 2 {
		t.Fatalf("expected audit entries for create and update, got %d", len(trail.Data))
	}
	// Newest first.
	if trail.Data[0].Action != audit.ActionUpdate || trail.Data[1].Action != audit.ActionCreate {
		t.Fatalf("unexpected trail order: %s, %s", trail.Data[0].Action, trail.Data[1].Action)
	}
	if trail.Data[0].UserID == nil {
		t.Fatal("audit entry must record the acting admin")
	}

	resp = env.do(http.MethodDelete, fmt.Sprintf("/admin/elections/%d", created.Data.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminVoterProvisioning(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("admin", "AdminPass1", auth.RoleAdmin)
	token := env.login("admin", "AdminPass1")

	resp := env.do(http.MethodPost, "/admin/voters", token, map[string]any{
		"studentId": "21-0001",
		"password":  "Secret1",
		"name":      "Aruzhan",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create voter: expected 201, got %d", resp.StatusCode)
	}
	created := decode[struct {
		Data userView `json:"data"`
	}](t, resp)
	if created.Data.Role != "voter" {
		t.Fatalf("expected default voter role, got %q", created.Data.Role)
	}

	resp = env.do(http.MethodPost, fmt.Sprintf("/admin/voters/%d/reset-password", created.Data.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset password: expected 200, got %d", resp.StatusCode)
	}
	reset := decode[struct {
		Data struct {
			StudentID string `json:"studentId"`
			Password  string `json:"password"`
		} `json:"data"`
	}](t, resp)
	if reset.Data.Password == "" {
		t.Fatal("expected a generated password")
	}
	env.login(reset.Data.StudentID, reset.Data.Password)

	resp = env.do(http.MethodPost, "/admin/voters/bulk-range", token, map[string]any{
		"yearPrefix": 21,
		"start":      1,
		"end":        3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bulk-range: expected 201, got %d", resp.StatusCode)
	}
	bulk := decode[struct {
		Data struct {
			Created []struct {
				StudentID string `json:"studentId"`
				Password  string `json:"password"`
			} `json:"created"`
			Skipped []string `json:"skipped"`
		} `json:"data"`
	}](t, resp)
	// 21-0001 already exists, so the range creates two and skips one.
	if len(bulk.Data.Created) != 2 || len(bulk.Data.Skipped) != 1 {
		t.Fatalf("unexpected bulk result: created=%d skipped=%d",
			len(bulk.Data.Created), len(bulk.Data.Skipped))
	}
	if bulk.Data.Skipped[0] != "21-0001" {
		t.Fatalf("expected 21-0001 skipped, got %s", bulk.Data.Skipped[0])
	}
	env.login(bulk.Data.Created[0].StudentID, bulk.Data.Created[0].Password)

	// Plaintext credentials never reach the audit trail.
	resp = env.do(http.MethodGet, "/admin/audit", token, nil)
	trail := decode[struct {
		Data []audit.Entry `json:"data"`
	}](t, resp)
	for _, entry := range trail.Data {
		if _, ok := entry.Payload["password"]; ok {
			t.Fatalf("audit entry %s/%s leaks a password", entry.Action, entry.EntityType)
		}
	}
}

func TestAdminVoterUpload(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("admin", "AdminPass1", auth.RoleAdmin)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	token := env.login("admin", "AdminPass1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "voters.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	csvBody := strings.Join([]string{
		"Student ID,Password,Name,Role",
		"21-0002,Secret2,Dana,voter",
		"21-0001,Secret1,Duplicate,voter",
		"21-0003,ab,TooShort,voter",
		"21-0004,Secret4,BadRole,principal",
	}, "\n")
	if _, err := fw.Write([]byte(csvBody)); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.base+"/admin/voters/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", resp.StatusCode)
	}
	result := decode[struct {
		Data struct {
			Created int              `json:"created"`
			Skipped int              `json:"skipped"`
			Errors  []uploadRowError `json:"errors"`
		} `json:"data"`
	}](t, resp)
	if result.Data.Created != 1 || result.Data.Skipped != 1 || len(result.Data.Errors) != 2 {
		t.Fatalf("unexpected upload result: %+v", result.Data)
	}
	env.login("21-0002", "Secret2")
}

func TestAdminRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser("21-0001", "Secret1", auth.RoleVoter)
	voterToken := env.login("21-0001", "Secret1")

	resp := env.do(http.MethodGet, "/admin/elections", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/admin/elections", voterToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("voter token: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestResultsSSEStreamsFrames(t *testing.T) {
	env := newTestEnv(t)
	e, _, _ := env.seedOpenElection()

	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("%s/results-sse?electionId=%d", env.base, e.ID), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := env.client.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var frame string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frame = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if frame == "" {
		t.Fatalf("no data frame received: %v", scanner.Err())
	}

	var payload ballot.ResultsPayload
	if err := json.Unmarshal([]byte(frame), &payload); err != nil {
		t.Fatalf("frame is not a results payload: %v", err)
	}
	if payload.Election.ID != e.ID {
		t.Fatalf("frame for wrong election: %d", payload.Election.ID)
	}
}

func TestResultsSSEOutlivesServerWriteTimeout(t *testing.T) {
	t.Setenv("SAYLAU_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	ctx := context.Background()
	store := memory.New()
	now := time.Now().UTC()
	e, err := store.CreateElection(ctx, election.Election{
		Name: "Student Council", AcademicYear: "2026-2027",
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		IsActive: true, Code: "123456",
	})
	if err != nil {
		t.Fatalf("seed election: %v", err)
	}

	results := ballot.NewAggregator(store, store, store)
	feed := stream.NewFeed(results, 50*time.Millisecond)
	api := New(Config{
		Catalog:    store,
		Roster:     store,
		Votes:      ballot.NewService(store, store, store),
		Results:    results,
		Feed:       feed,
		Recorder:   audit.NewRecorder(store),
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})

	// A write timeout shorter than the stream: frames must keep flowing
	// past it because the handler lifts the per-response deadline.
	srv := httptest.NewUnstartedServer(api.Handler())
	srv.Config.WriteTimeout = 250 * time.Millisecond
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		api.Close()
	})

	reqCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		fmt.Sprintf("%s/results-sse?electionId=%d", srv.URL, e.ID), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	start := time.Now()
	var lastFrame time.Time
	frames := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			frames++
			lastFrame = time.Now()
		}
		if time.Since(start) > 600*time.Millisecond {
			break
		}
	}
	if frames < 2 {
		t.Fatalf("expected a steady stream, got %d frames", frames)
	}
	if lastFrame.Sub(start) < 400*time.Millisecond {
		t.Fatalf("stream stopped %v in, before outliving the write timeout", lastFrame.Sub(start))
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "saylau-api" {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = env.do(http.MethodGet, "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
