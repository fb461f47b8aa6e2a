package ballot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"saylau.org/internal/election"
)

// ResultsPayload is the aggregated view served by /results and the SSE feed.
// It is derived entirely from the vote ledger and can be recomputed at any
// time.
type ResultsPayload struct {
	Election       ResultsElection  `json:"election"`
	TotalVotes     int              `json:"totalVotes"`
	EligibleVoters int              `json:"eligibleVoters"`
	TurnoutRate    float64          `json:"turnoutRate"`
	ByPosition     []PositionResult `json:"byPosition"`
}

type ResultsElection struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	AcademicYear string `json:"academicYear"`
}

type PositionResult struct {
	PositionID   int               `json:"positionId"`
	PositionName string            `json:"positionName"`
	Candidates   []CandidateResult `json:"candidates"`
	TotalVotes   int               `json:"totalVotes"`
}

type CandidateResult struct {
	CandidateID int       `json:"candidateId"`
	Name        string    `json:"name"`
	Grade       string    `json:"grade,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Party       *PartyRef `json:"party"`
	Votes       int       `json:"votes"`
	Percentage  float64   `json:"percentage"`
}

type PartyRef struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Aggregator computes live results from the ledger and the catalog.
type Aggregator struct {
	catalog Catalog
	ledger  Ledger
	roster  Eligibility
}

// NewAggregator wires a results aggregator over the given stores.
func NewAggregator(catalog Catalog, ledger Ledger, eligibility Eligibility) *Aggregator {
	return &Aggregator{catalog: catalog, ledger: ledger, roster: eligibility}
}

// Results builds the full aggregated payload for one election.
func (a *Aggregator) Results(ctx context.Context, electionID int) (*ResultsPayload, error) {
	e, err := a.catalog.GetElection(ctx, electionID)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, fmt.Errorf("load election: %w", err)
	}

	positions, err := a.catalog.ListPositions(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	counts, err := a.ledger.CountVotesByCandidate(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	totalVoters, err := a.ledger.CountDistinctVoters(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("count voters: %w", err)
	}
	eligible, err := a.roster.CountVoters(ctx)
	if err != nil {
		return nil, fmt.Errorf("count eligible voters: %w", err)
	}

	payload := &ResultsPayload{
		Election: ResultsElection{
			ID:           e.ID,
			Name:         e.Name,
			AcademicYear: e.AcademicYear,
		},
		TotalVotes:     totalVoters,
		EligibleVoters: eligible,
		ByPosition:     make([]PositionResult, 0, len(positions)),
	}
	if eligible > 0 {
		payload.TurnoutRate = round1(float64(totalVoters) / float64(eligible) * 100)
	}

	parties := map[int]*PartyRef{}
	for _, p := range positions {
		candidates, err := a.catalog.ListCandidates(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list candidates for position %d: %w", p.ID, err)
		}

		pr := PositionResult{
			PositionID:   p.ID,
			PositionName: p.Name,
			Candidates:   make([]CandidateResult, 0, len(candidates)),
		}
		for _, c := range candidates {
			cr := CandidateResult{
				CandidateID: c.ID,
				Name:        c.Name,
				Grade:       c.Grade,
				ImageURL:    c.ImageURL,
				Votes:       counts[c.ID],
			}
			if c.PartyID != nil {
				ref, err := a.partyRef(ctx, parties, *c.PartyID)
				if err != nil {
					return nil, err
				}
				cr.Party = ref
			}
			pr.TotalVotes += cr.Votes
			pr.Candidates = append(pr.Candidates, cr)
		}
		for i := range pr.Candidates {
			if pr.TotalVotes > 0 {
				pr.Candidates[i].Percentage = round1(float64(pr.Candidates[i].Votes) / float64(pr.TotalVotes) * 100)
			}
		}
		// Leaders first; ties break on candidate id so ordering is stable
		// across refreshes.
		sort.SliceStable(pr.Candidates, func(i, j int) bool {
			if pr.Candidates[i].Votes != pr.Candidates[j].Votes {
				return pr.Candidates[i].Votes > pr.Candidates[j].Votes
			}
			return pr.Candidates[i].CandidateID < pr.Candidates[j].CandidateID
		})
		payload.ByPosition = append(payload.ByPosition, pr)
	}
	return payload, nil
}

func (a *Aggregator) partyRef(ctx context.Context, memo map[int]*PartyRef, id int) (*PartyRef, error) {
	if ref, ok := memo[id]; ok {
		return ref, nil
	}
	p, err := a.catalog.GetParty(ctx, id)
	if err != nil {
		if errors.Is(err, election.ErrNotFound) {
			memo[id] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("load party %d: %w", id, err)
	}
	ref := &PartyRef{Name: p.Name, Color: p.Color}
	memo[id] = ref
	return ref, nil
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
