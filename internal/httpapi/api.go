// Package httpapi is the HTTP surface of the election portal: public voter
// endpoints, the authenticated ballot endpoints, and the admin API.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"saylau.org/internal/audit"
	"saylau.org/internal/auth"
	"saylau.org/internal/ballot"
	"saylau.org/internal/election"
	"saylau.org/internal/obs"
	"saylau.org/internal/roster"
	"saylau.org/internal/stream"
)

// DefaultSessionTTL bounds how long a login token stays valid.
const DefaultSessionTTL = 12 * time.Hour

// ReadyProbe pings the database for /readyz. A nil DB always reports ready,
// which keeps in-memory test setups green.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the wired services for New.
type Config struct {
	Catalog    election.Store
	Roster     roster.Store
	Votes      *ballot.Service
	Results    *ballot.Aggregator
	Feed       *stream.Feed
	Recorder   *audit.Recorder
	Probe      ReadyProbe
	Version    string
	SessionTTL time.Duration
	RateBurst  int
	RatePerSec int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	catalog    election.Store
	roster     roster.Store
	votes      *ballot.Service
	results    *ballot.Aggregator
	feed       *stream.Feed
	recorder   *audit.Recorder
	probe      ReadyProbe
	version    string
	sessionTTL time.Duration
	rateBurst  int
	ratePerSec int

	stopRateLimiter func()
}

// New builds the API and registers all routes.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		catalog:    cfg.Catalog,
		roster:     cfg.Roster,
		votes:      cfg.Votes,
		results:    cfg.Results,
		feed:       cfg.Feed,
		recorder:   cfg.Recorder,
		probe:      cfg.Probe,
		version:    cfg.Version,
		sessionTTL: cfg.SessionTTL,
		rateBurst:  cfg.RateBurst,
		ratePerSec: cfg.RatePerSec,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = DefaultSessionTTL
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 25
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/change-password", a.handleChangePassword)

	a.mux.HandleFunc("/elections", a.handleElections)
	a.mux.HandleFunc("/positions", a.handlePositions)
	a.mux.HandleFunc("/candidates", a.handleCandidates)
	a.mux.HandleFunc("/parties", a.handleParties)
	a.mux.HandleFunc("/results", a.handleResults)
	a.mux.HandleFunc("/results-sse", a.handleResultsSSE)
	a.mux.HandleFunc("/site-settings", a.handleSiteSettings)

	a.mux.HandleFunc("/votes", a.handleVotes)
	a.mux.HandleFunc("/votes/check", a.handleVotesCheck)

	a.mux.HandleFunc("/admin/elections", a.handleAdminElectionsCollection)
	a.mux.HandleFunc("/admin/elections/", a.handleAdminElectionResource)
	a.mux.HandleFunc("/admin/positions", a.handleAdminPositionsCollection)
	a.mux.HandleFunc("/admin/positions/", a.handleAdminPositionResource)
	a.mux.HandleFunc("/admin/parties", a.handleAdminPartiesCollection)
	a.mux.HandleFunc("/admin/parties/", a.handleAdminPartyResource)
	a.mux.HandleFunc("/admin/candidates", a.handleAdminCandidatesCollection)
	a.mux.HandleFunc("/admin/candidates/", a.handleAdminCandidateResource)
	a.mux.HandleFunc("/admin/groups", a.handleAdminGroupsCollection)
	a.mux.HandleFunc("/admin/groups/", a.handleAdminGroupResource)
	a.mux.HandleFunc("/admin/voters", a.handleAdminVotersCollection)
	a.mux.HandleFunc("/admin/voters/", a.handleAdminVoterResource)
	a.mux.HandleFunc("/admin/votes", a.handleAdminVotesCollection)
	a.mux.HandleFunc("/admin/votes/", a.handleAdminVoteResource)
	a.mux.HandleFunc("/admin/audit", a.handleAdminAudit)
	a.mux.HandleFunc("/admin/site-settings", a.handleAdminSiteSettings)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	limited, stop := RateLimit(a.withAuth(a.mux), a.rateBurst, a.ratePerSec)
	a.stopRateLimiter = stop
	h := MaxBodyBytes(limited, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// Close releases background resources held by the handler chain.
func (a *API) Close() {
	if a.stopRateLimiter != nil {
		a.stopRateLimiter()
	}
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "saylau-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// audit records one admin mutation with the acting user from context.
func (a *API) audit(ctx context.Context, action, entityType, entityID string, payload map[string]any) {
	if a.recorder == nil {
		return
	}
	entry := audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	}
	if uid, ok := auth.UserIDFromContext(ctx); ok {
		entry.UserID = &uid
	}
	a.recorder.Record(ctx, entry)
}

// --- helpers ---

type fieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, issues []fieldIssue) {
	payload := map[string]any{
		"error":  "validation failed",
		"issues": issues,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// pathID extracts the numeric id segment after the given prefix, plus any
// trailing sub-path.
func pathID(path, prefix string) (int, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" {
		return 0, "", false
	}
	seg := rest
	sub := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		seg = rest[:i]
		sub = strings.Trim(rest[i+1:], "/")
	}
	id, err := strconv.Atoi(seg)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, sub, true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, errors.New(name + " query parameter is required")
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}

// handleCatalogError maps catalog/roster store errors for admin CRUD paths.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, election.ErrNotFound), errors.Is(err, roster.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, election.ErrDuplicateCode):
		writeError(w, r, http.StatusConflict, "join code already exists")
	case errors.Is(err, roster.ErrDuplicateStudentID):
		writeError(w, r, http.StatusConflict, "student id already exists")
	case errors.Is(err, roster.ErrDuplicateGroup):
		writeError(w, r, http.StatusConflict, "group name already exists")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
