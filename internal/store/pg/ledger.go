package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"saylau.org/internal/audit"
	"saylau.org/internal/ballot"
)

// CastVote inserts one ballot row. The unique index on
// (user_id, position_id, election_id) is the concurrency authority: a
// violation means the voter already holds a ballot for this position.
func (s *Store) CastVote(ctx context.Context, v ballot.Vote) (ballot.Vote, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO votes (election_id, position_id, candidate_id, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		v.ElectionID, v.PositionID, v.CandidateID, v.UserID).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ballot.Vote{}, ballot.ErrAlreadyVoted
		}
		return ballot.Vote{}, fmt.Errorf("insert vote: %w", err)
	}
	return v, nil
}

func (s *Store) HasVoted(ctx context.Context, userID, electionID int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM votes WHERE user_id = $1 AND election_id = $2
		)`, userID, electionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voted: %w", err)
	}
	return exists, nil
}

func (s *Store) HasVotedForPosition(ctx context.Context, userID, positionID, electionID int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM votes WHERE user_id = $1 AND position_id = $2 AND election_id = $3
		)`, userID, positionID, electionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check voted for position: %w", err)
	}
	return exists, nil
}

func (s *Store) CountDistinctVoters(ctx context.Context, electionID int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM votes WHERE election_id = $1`, electionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count voters: %w", err)
	}
	return n, nil
}

func (s *Store) CountVotesByCandidate(ctx context.Context, electionID int) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, COUNT(*)
		FROM votes
		WHERE election_id = $1
		GROUP BY candidate_id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var candidateID, n int
		if err := rows.Scan(&candidateID, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[candidateID] = n
	}
	return counts, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	payload := []byte("{}")
	if len(e.Payload) > 0 {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("encode payload: %w", err)
		}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, user_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.Action, e.EntityType, e.EntityID, nullableInt(e.UserID), payload).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, user_id, payload, created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Entry, 0, limit)
	for rows.Next() {
		var e audit.Entry
		var userID *int
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &userID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.UserID = userID
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
