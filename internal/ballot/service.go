package ballot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saylau.org/internal/election"
)

// Service validates and records ballots.
type Service struct {
	catalog Catalog
	ledger  Ledger
	roster  Eligibility
	now     func() time.Time
}

// NewService wires a cast-vote service over the given stores.
func NewService(catalog Catalog, ledger Ledger, eligibility Eligibility) *Service {
	return &Service{
		catalog: catalog,
		ledger:  ledger,
		roster:  eligibility,
		now:     time.Now,
	}
}

// SetClock overrides the service clock. Only intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Cast records one ballot for the voter. Every check runs server-side on
// every call; the client is never trusted to have validated anything. The
// checks run in a fixed order: election and voting window, candidate,
// position, eligibility, duplicate ballot.
func (s *Service) Cast(ctx context.Context, userID, electionID, positionID, candidateID int) (Vote, error) {
	e, err := s.catalog.GetElection(ctx, electionID)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			return Vote{}, ErrElectionNotFound
		}
		return Vote{}, fmt.Errorf("load election: %w", err)
	}
	switch election.Status(e, s.now().UTC()) {
	case election.StatusOpen:
	case election.StatusInactive:
		return Vote{}, ErrElectionInactive
	default:
		return Vote{}, ErrElectionNotOpen
	}

	c, err := s.catalog.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			return Vote{}, ErrCandidateNotFound
		}
		return Vote{}, fmt.Errorf("load candidate: %w", err)
	}
	if c.PositionID != positionID {
		return Vote{}, ErrCandidateMismatch
	}

	p, err := s.catalog.GetPosition(ctx, positionID)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			return Vote{}, ErrPositionNotFound
		}
		return Vote{}, fmt.Errorf("load position: %w", err)
	}
	if p.ElectionID != electionID {
		return Vote{}, ErrPositionMismatch
	}

	eligible, err := s.Eligible(ctx, userID, electionID)
	if err != nil {
		return Vote{}, err
	}
	if !eligible {
		return Vote{}, ErrNotEligible
	}

	// Friendly pre-check; the unique index remains the authority under
	// concurrent submissions.
	voted, err := s.ledger.HasVotedForPosition(ctx, userID, positionID, electionID)
	if err != nil {
		return Vote{}, fmt.Errorf("check existing vote: %w", err)
	}
	if voted {
		return Vote{}, ErrAlreadyVoted
	}

	v, err := s.ledger.CastVote(ctx, Vote{
		ElectionID:  electionID,
		PositionID:  positionID,
		CandidateID: candidateID,
		UserID:      userID,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			return Vote{}, ErrAlreadyVoted
		}
		return Vote{}, fmt.Errorf("insert vote: %w", err)
	}
	return v, nil
}

// HasVoted reports whether the voter holds at least one ballot in the
// election.
func (s *Service) HasVoted(ctx context.Context, userID, electionID int) (bool, error) {
	return s.ledger.HasVoted(ctx, userID, electionID)
}

// Eligible applies the group gate: an empty allow-list means every voter is
// eligible, otherwise membership in any listed group is required.
func (s *Service) Eligible(ctx context.Context, userID, electionID int) (bool, error) {
	groups, err := s.roster.ListAllowedGroups(ctx, electionID)
	if err != nil {
		return false, fmt.Errorf("load allowed groups: %w", err)
	}
	if len(groups) == 0 {
		return true, nil
	}
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	ok, err := s.roster.IsMemberOfAny(ctx, userID, ids)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}
