package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"saylau.org/internal/auth"
	"saylau.org/internal/ballot"
	"saylau.org/internal/obs"
)

type castVoteRequest struct {
	ElectionID  int `json:"electionId"`
	PositionID  int `json:"positionId"`
	CandidateID int `json:"candidateId"`
}

func (a *API) handleVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req castVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	issues := make([]fieldIssue, 0, 3)
	if req.ElectionID <= 0 {
		issues = append(issues, fieldIssue{Field: "electionId", Message: "must be a positive integer"})
	}
	if req.PositionID <= 0 {
		issues = append(issues, fieldIssue{Field: "positionId", Message: "must be a positive integer"})
	}
	if req.CandidateID <= 0 {
		issues = append(issues, fieldIssue{Field: "candidateId", Message: "must be a positive integer"})
	}
	if len(issues) > 0 {
		writeValidationError(w, r, issues)
		return
	}

	v, err := a.votes.Cast(r.Context(), uid, req.ElectionID, req.PositionID, req.CandidateID)
	if err != nil {
		handleBallotError(w, r, err)
		return
	}

	obs.VotesCast.WithLabelValues(strconv.Itoa(req.ElectionID)).Inc()
	writeData(w, http.StatusCreated, v)
}

func (a *API) handleVotesCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	electionID, err := queryInt(r, "electionId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	voted, err := a.votes.HasVoted(r.Context(), uid, electionID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"hasVoted": voted})
}

func handleBallotError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ballot.ErrElectionNotFound),
		errors.Is(err, ballot.ErrPositionNotFound),
		errors.Is(err, ballot.ErrCandidateNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ballot.ErrElectionInactive),
		errors.Is(err, ballot.ErrElectionNotOpen),
		errors.Is(err, ballot.ErrPositionMismatch),
		errors.Is(err, ballot.ErrCandidateMismatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ballot.ErrNotEligible):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ballot.ErrAlreadyVoted):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
