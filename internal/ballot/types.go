// Package ballot implements the vote ledger: casting with full server-side
// validation, the eligibility gate, and read-only result aggregation.
package ballot

import (
	"context"
	"errors"
	"time"

	"saylau.org/internal/election"
	"saylau.org/internal/roster"
)

// Validation and conflict errors surfaced by Cast, in the order the checks
// run. The HTTP layer maps them onto the status taxonomy.
var (
	ErrElectionNotFound  = errors.New("election not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrElectionInactive  = errors.New("election is not active")
	ErrElectionNotOpen   = errors.New("election is not open for voting")
	ErrPositionMismatch  = errors.New("position does not belong to election")
	ErrCandidateMismatch = errors.New("candidate does not belong to position")
	ErrNotEligible       = errors.New("voter is not eligible for this election")
	ErrAlreadyVoted      = errors.New("already voted for this position")
)

// Vote is one immutable ballot row. There is no update or delete path.
type Vote struct {
	ID          int       `json:"id"`
	ElectionID  int       `json:"electionId"`
	PositionID  int       `json:"positionId"`
	CandidateID int       `json:"candidateId"`
	UserID      int       `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ledger is the persistence contract for votes. It deliberately exposes no
// per-voter listing and no deletion; counts are the only read surface.
type Ledger interface {
	// CastVote inserts the row, returning ErrAlreadyVoted when the voter
	// already holds a ballot for the position in this election.
	CastVote(ctx context.Context, v Vote) (Vote, error)
	HasVoted(ctx context.Context, userID, electionID int) (bool, error)
	HasVotedForPosition(ctx context.Context, userID, positionID, electionID int) (bool, error)
	CountDistinctVoters(ctx context.Context, electionID int) (int, error)
	CountVotesByCandidate(ctx context.Context, electionID int) (map[int]int, error)
}

// Catalog provides the election structure reads casting and aggregation need.
type Catalog interface {
	GetElection(ctx context.Context, id int) (election.Election, error)
	GetPosition(ctx context.Context, id int) (election.Position, error)
	GetCandidate(ctx context.Context, id int) (election.Candidate, error)
	GetParty(ctx context.Context, id int) (election.Party, error)
	ListPositions(ctx context.Context, electionID int) ([]election.Position, error)
	ListCandidates(ctx context.Context, positionID int) ([]election.Candidate, error)
}

// Eligibility is the slice of the roster store the gate needs.
// roster.Store satisfies it.
type Eligibility interface {
	ListAllowedGroups(ctx context.Context, electionID int) ([]roster.Group, error)
	IsMemberOfAny(ctx context.Context, userID int, groupIDs []int) (bool, error)
	CountVoters(ctx context.Context) (int, error)
}
