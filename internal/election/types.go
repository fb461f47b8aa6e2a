// Package election holds the core domain types for the election portal and
// the pure status resolver used by both the API and the vote ledger.
package election

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// ErrNotFound indicates the requested election, position, candidate, or
// party does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCode indicates a join code collision on insert.
var ErrDuplicateCode = errors.New("join code already exists")

// Election is a named voting event with a scheduling window and a join code
// voters use to find it.
type Election struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	AcademicYear string    `json:"academicYear"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	IsActive     bool      `json:"isActive"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Position is a contested seat within an election.
type Position struct {
	ID               int       `json:"id"`
	ElectionID       int       `json:"electionId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	SeatsCount       int       `json:"seatsCount"`
	GradeEligibility []string  `json:"gradeEligibility"`
	OrderIndex       int       `json:"orderIndex"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Party groups candidates under a shared name and display color. ElectionID
// is nil for school-wide parties reused across elections.
type Party struct {
	ID         int       `json:"id"`
	ElectionID *int      `json:"electionId,omitempty"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Candidate runs for exactly one position and optionally belongs to a party.
type Candidate struct {
	ID         int       `json:"id"`
	PositionID int       `json:"positionId"`
	PartyID    *int      `json:"partyId,omitempty"`
	Name       string    `json:"name"`
	Grade      string    `json:"grade,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SiteSettings is the singleton branding row shown on the public portal.
type SiteSettings struct {
	ID         int       `json:"id"`
	SchoolName string    `json:"schoolName"`
	LogoURL    string    `json:"logoUrl,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// JoinCodeLength is the number of digits in a voter-facing join code.
const JoinCodeLength = 6

// RandomJoinCode returns a zero-padded numeric join code. Uniqueness is
// enforced by the store; callers retry on collision.
func RandomJoinCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < JoinCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	return fmt.Sprintf("%0*d", JoinCodeLength, n), nil
}
