package election

import "context"

// Store is the persistence contract for the election catalog: elections,
// positions, parties, candidates, and the singleton site settings.
type Store interface {
	CreateElection(ctx context.Context, e Election) (Election, error)
	GetElection(ctx context.Context, id int) (Election, error)
	GetElectionByCode(ctx context.Context, code string) (Election, error)
	ListElections(ctx context.Context) ([]Election, error)
	UpdateElection(ctx context.Context, e Election) (Election, error)
	DeleteElection(ctx context.Context, id int) error

	CreatePosition(ctx context.Context, p Position) (Position, error)
	GetPosition(ctx context.Context, id int) (Position, error)
	ListPositions(ctx context.Context, electionID int) ([]Position, error)
	UpdatePosition(ctx context.Context, p Position) (Position, error)
	DeletePosition(ctx context.Context, id int) error

	CreateParty(ctx context.Context, p Party) (Party, error)
	GetParty(ctx context.Context, id int) (Party, error)
	ListParties(ctx context.Context) ([]Party, error)
	UpdateParty(ctx context.Context, p Party) (Party, error)
	DeleteParty(ctx context.Context, id int) error

	CreateCandidate(ctx context.Context, c Candidate) (Candidate, error)
	GetCandidate(ctx context.Context, id int) (Candidate, error)
	ListCandidates(ctx context.Context, positionID int) ([]Candidate, error)
	ListCandidatesByElection(ctx context.Context, electionID int) ([]Candidate, error)
	UpdateCandidate(ctx context.Context, c Candidate) (Candidate, error)
	DeleteCandidate(ctx context.Context, id int) error

	GetSiteSettings(ctx context.Context) (SiteSettings, error)
	UpdateSiteSettings(ctx context.Context, s SiteSettings) (SiteSettings, error)
}
