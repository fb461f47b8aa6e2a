package election

import "time"

// StatusValue is the resolved lifecycle state of an election at a point in
// time. The active flag dominates: an inactive election is never open or
// scheduled regardless of its window.
type StatusValue string

const (
	StatusInactive  StatusValue = "inactive"
	StatusScheduled StatusValue = "scheduled"
	StatusOpen      StatusValue = "open"
	StatusEnded     StatusValue = "ended"
)

// Status resolves the election state for the given instant.
func Status(e Election, now time.Time) StatusValue {
	if !e.IsActive {
		return StatusInactive
	}
	if now.Before(e.StartDate) {
		return StatusScheduled
	}
	if now.After(e.EndDate) {
		return StatusEnded
	}
	return StatusOpen
}

// IsOpenForVoting reports whether ballots may be cast right now.
func IsOpenForVoting(e Election, now time.Time) bool {
	return Status(e, now) == StatusOpen
}

// IsResultsFinal reports whether the election window has closed for good.
// Inactive elections never finalize; they were withdrawn, not completed.
func IsResultsFinal(e Election, now time.Time) bool {
	return Status(e, now) == StatusEnded
}

// StatusLabel returns the human-readable label used by the portal UI.
func StatusLabel(s StatusValue) string {
	switch s {
	case StatusScheduled:
		return "Voting has not started"
	case StatusOpen:
		return "Voting open"
	case StatusEnded:
		return "Voting closed"
	default:
		return "Election inactive"
	}
}
