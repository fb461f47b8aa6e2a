// Package memory provides a mutex-guarded in-memory store implementing the
// catalog, roster, ledger, and audit contracts. It backs handler and service
// tests and mirrors the relational cascades of the SQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"saylau.org/internal/audit"
	"saylau.org/internal/ballot"
	"saylau.org/internal/election"
	"saylau.org/internal/roster"
)

type voteKey struct {
	userID     int
	positionID int
	electionID int
}

// Store keeps everything in maps behind one mutex.
type Store struct {
	mu sync.Mutex

	seq int

	elections  map[int]election.Election
	positions  map[int]election.Position
	parties    map[int]election.Party
	candidates map[int]election.Candidate
	settings   election.SiteSettings

	users   map[int]roster.User
	groups  map[int]roster.Group
	members map[int]map[int]bool // groupID -> userID set
	allowed map[int]map[int]bool // electionID -> groupID set

	votes    []ballot.Vote
	voteKeys map[voteKey]bool

	trail []audit.Entry
}

// New returns an empty store with default site settings.
func New() *Store {
	return &Store{
		elections:  map[int]election.Election{},
		positions:  map[int]election.Position{},
		parties:    map[int]election.Party{},
		candidates: map[int]election.Candidate{},
		settings:   election.SiteSettings{ID: 1, SchoolName: "School Election"},
		users:      map[int]roster.User{},
		groups:     map[int]roster.Group{},
		members:    map[int]map[int]bool{},
		allowed:    map[int]map[int]bool{},
		voteKeys:   map[voteKey]bool{},
	}
}

func (s *Store) nextID() int {
	s.seq++
	return s.seq
}

// --- election catalog ---

func (s *Store) CreateElection(_ context.Context, e election.Election) (election.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.elections {
		if existing.Code == e.Code {
			return election.Election{}, election.ErrDuplicateCode
		}
	}
	e.ID = s.nextID()
	e.CreatedAt = time.Now().UTC()
	s.elections[e.ID] = e
	return e, nil
}

func (s *Store) GetElection(_ context.Context, id int) (election.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok {
		return election.Election{}, election.ErrNotFound
	}
	return e, nil
}

func (s *Store) GetElectionByCode(_ context.Context, code string) (election.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.elections {
		if e.Code == code {
			return e, nil
		}
	}
	return election.Election{}, election.ErrNotFound
}

func (s *Store) ListElections(_ context.Context) ([]election.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]election.Election, 0, len(s.elections))
	for _, e := range s.elections {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateElection(_ context.Context, e election.Election) (election.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.elections[e.ID]
	if !ok {
		return election.Election{}, election.ErrNotFound
	}
	for _, other := range s.elections {
		if other.ID != e.ID && other.Code == e.Code {
			return election.Election{}, election.ErrDuplicateCode
		}
	}
	e.CreatedAt = existing.CreatedAt
	s.elections[e.ID] = e
	return e, nil
}

func (s *Store) DeleteElection(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[id]; !ok {
		return election.ErrNotFound
	}
	delete(s.elections, id)
	for pid, p := range s.positions {
		if p.ElectionID == id {
			s.deletePositionLocked(pid)
		}
	}
	for ptyID, pty := range s.parties {
		if pty.ElectionID != nil && *pty.ElectionID == id {
			s.deletePartyLocked(ptyID)
		}
	}
	delete(s.allowed, id)
	s.dropVotesLocked(func(v ballot.Vote) bool { return v.ElectionID == id })
	return nil
}

func (s *Store) CreatePosition(_ context.Context, p election.Position) (election.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[p.ElectionID]; !ok {
		return election.Position{}, election.ErrNotFound
	}
	p.ID = s.nextID()
	p.CreatedAt = time.Now().UTC()
	if p.GradeEligibility == nil {
		p.GradeEligibility = []string{}
	}
	s.positions[p.ID] = p
	return p, nil
}

func (s *Store) GetPosition(_ context.Context, id int) (election.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return election.Position{}, election.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPositions(_ context.Context, electionID int) ([]election.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]election.Position, 0)
	for _, p := range s.positions {
		if p.ElectionID == electionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdatePosition(_ context.Context, p election.Position) (election.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.positions[p.ID]
	if !ok {
		return election.Position{}, election.ErrNotFound
	}
	p.ElectionID = existing.ElectionID
	p.CreatedAt = existing.CreatedAt
	if p.GradeEligibility == nil {
		p.GradeEligibility = []string{}
	}
	s.positions[p.ID] = p
	return p, nil
}

func (s *Store) DeletePosition(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return election.ErrNotFound
	}
	s.deletePositionLocked(id)
	return nil
}

func (s *Store) deletePositionLocked(id int) {
	delete(s.positions, id)
	for cid, c := range s.candidates {
		if c.PositionID == id {
			delete(s.candidates, cid)
		}
	}
	s.dropVotesLocked(func(v ballot.Vote) bool { return v.PositionID == id })
}

func (s *Store) CreateParty(_ context.Context, p election.Party) (election.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	p.CreatedAt = time.Now().UTC()
	s.parties[p.ID] = p
	return p, nil
}

func (s *Store) GetParty(_ context.Context, id int) (election.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return election.Party{}, election.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListParties(_ context.Context) ([]election.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]election.Party, 0, len(s.parties))
	for _, p := range s.parties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateParty(_ context.Context, p election.Party) (election.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.parties[p.ID]
	if !ok {
		return election.Party{}, election.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	s.parties[p.ID] = p
	return p, nil
}

func (s *Store) DeleteParty(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[id]; !ok {
		return election.ErrNotFound
	}
	s.deletePartyLocked(id)
	return nil
}

func (s *Store) deletePartyLocked(id int) {
	delete(s.parties, id)
	for cid, c := range s.candidates {
		if c.PartyID != nil && *c.PartyID == id {
			c.PartyID = nil
			s.candidates[cid] = c
		}
	}
}

func (s *Store) CreateCandidate(_ context.Context, c election.Candidate) (election.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[c.PositionID]; !ok {
		return election.Candidate{}, election.ErrNotFound
	}
	if c.PartyID != nil {
		if _, ok := s.parties[*c.PartyID]; !ok {
			return election.Candidate{}, election.ErrNotFound
		}
	}
	c.ID = s.nextID()
	c.CreatedAt = time.Now().UTC()
	s.candidates[c.ID] = c
	return c, nil
}

func (s *Store) GetCandidate(_ context.Context, id int) (election.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return election.Candidate{}, election.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCandidates(_ context.Context, positionID int) ([]election.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]election.Candidate, 0)
	for _, c := range s.candidates {
		if c.PositionID == positionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListCandidatesByElection(_ context.Context, electionID int) ([]election.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]election.Candidate, 0)
	for _, c := range s.candidates {
		p, ok := s.positions[c.PositionID]
		if ok && p.ElectionID == electionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateCandidate(_ context.Context, c election.Candidate) (election.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.candidates[c.ID]
	if !ok {
		return election.Candidate{}, election.ErrNotFound
	}
	if c.PartyID != nil {
		if _, ok := s.parties[*c.PartyID]; !ok {
			return election.Candidate{}, election.ErrNotFound
		}
	}
	c.PositionID = existing.PositionID
	c.CreatedAt = existing.CreatedAt
	s.candidates[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCandidate(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[id]; !ok {
		return election.ErrNotFound
	}
	delete(s.candidates, id)
	s.dropVotesLocked(func(v ballot.Vote) bool { return v.CandidateID == id })
	return nil
}

func (s *Store) GetSiteSettings(_ context.Context) (election.SiteSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Store) UpdateSiteSettings(_ context.Context, settings election.SiteSettings) (election.SiteSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.ID = s.settings.ID
	settings.UpdatedAt = time.Now().UTC()
	s.settings = settings
	return s.settings, nil
}

// --- roster ---

func (s *Store) CreateUser(_ context.Context, u roster.User) (roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.StudentID, u.StudentID) {
			return roster.User{}, roster.ErrDuplicateStudentID
		}
	}
	u.ID = s.nextID()
	u.CreatedAt = time.Now().UTC()
	if u.Role == "" {
		u.Role = "voter"
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int) (roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return roster.User{}, roster.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindByStudentID(_ context.Context, studentID string) (roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.StudentID, studentID) {
			return u, nil
		}
	}
	return roster.User{}, roster.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return roster.ErrNotFound
	}
	delete(s.users, id)
	for _, set := range s.members {
		delete(set, id)
	}
	s.dropVotesLocked(func(v ballot.Vote) bool { return v.UserID == id })
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id int, hash string, changed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return roster.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChanged = changed
	s.users[id] = u
	return nil
}

func (s *Store) CountVoters(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Role == "voter" {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateGroup(_ context.Context, name string) (roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if strings.EqualFold(g.Name, name) {
			return roster.Group{}, roster.ErrDuplicateGroup
		}
	}
	g := roster.Group{ID: s.nextID(), Name: name, CreatedAt: time.Now().UTC()}
	s.groups[g.ID] = g
	s.members[g.ID] = map[int]bool{}
	return g, nil
}

func (s *Store) GetGroup(_ context.Context, id int) (roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return roster.Group{}, roster.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListGroups(_ context.Context) ([]roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RenameGroup(_ context.Context, id int, name string) (roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return roster.Group{}, roster.ErrNotFound
	}
	for _, other := range s.groups {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return roster.Group{}, roster.ErrDuplicateGroup
		}
	}
	g.Name = name
	s.groups[id] = g
	return g, nil
}

func (s *Store) DeleteGroup(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return roster.ErrNotFound
	}
	delete(s.groups, id)
	delete(s.members, id)
	for _, set := range s.allowed {
		delete(set, id)
	}
	return nil
}

func (s *Store) SetGroupMembers(_ context.Context, groupID int, userIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return roster.ErrNotFound
	}
	set := map[int]bool{}
	for _, id := range userIDs {
		if _, ok := s.users[id]; !ok {
			return roster.ErrNotFound
		}
		set[id] = true
	}
	s.members[groupID] = set
	return nil
}

func (s *Store) AddGroupMembers(_ context.Context, groupID int, userIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return roster.ErrNotFound
	}
	set := s.members[groupID]
	if set == nil {
		set = map[int]bool{}
		s.members[groupID] = set
	}
	for _, id := range userIDs {
		if _, ok := s.users[id]; !ok {
			return roster.ErrNotFound
		}
		set[id] = true
	}
	return nil
}

func (s *Store) ListGroupMembers(_ context.Context, groupID int) ([]roster.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, roster.ErrNotFound
	}
	out := make([]roster.User, 0)
	for id := range s.members[groupID] {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetAllowedGroups(_ context.Context, electionID int, groupIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[electionID]; !ok {
		return election.ErrNotFound
	}
	set := map[int]bool{}
	for _, id := range groupIDs {
		if _, ok := s.groups[id]; !ok {
			return roster.ErrNotFound
		}
		set[id] = true
	}
	s.allowed[electionID] = set
	return nil
}

func (s *Store) ListAllowedGroups(_ context.Context, electionID int) ([]roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.Group, 0)
	for id := range s.allowed[electionID] {
		if g, ok := s.groups[id]; ok {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsMemberOfAny(_ context.Context, userID int, groupIDs []int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gid := range groupIDs {
		if s.members[gid][userID] {
			return true, nil
		}
	}
	return false, nil
}

// --- vote ledger ---

func (s *Store) CastVote(_ context.Context, v ballot.Vote) (ballot.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{userID: v.UserID, positionID: v.PositionID, electionID: v.ElectionID}
	if s.voteKeys[key] {
		return ballot.Vote{}, ballot.ErrAlreadyVoted
	}
	v.ID = s.nextID()
	v.CreatedAt = time.Now().UTC()
	s.votes = append(s.votes, v)
	s.voteKeys[key] = true
	return v, nil
}

func (s *Store) HasVoted(_ context.Context, userID, electionID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.votes {
		if v.UserID == userID && v.ElectionID == electionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HasVotedForPosition(_ context.Context, userID, positionID, electionID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voteKeys[voteKey{userID: userID, positionID: positionID, electionID: electionID}], nil
}

func (s *Store) CountDistinctVoters(_ context.Context, electionID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int]bool{}
	for _, v := range s.votes {
		if v.ElectionID == electionID {
			seen[v.UserID] = true
		}
	}
	return len(seen), nil
}

func (s *Store) CountVotesByCandidate(_ context.Context, electionID int) (map[int]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[int]int{}
	for _, v := range s.votes {
		if v.ElectionID == electionID {
			counts[v.CandidateID]++
		}
	}
	return counts, nil
}

func (s *Store) dropVotesLocked(match func(ballot.Vote) bool) {
	kept := s.votes[:0]
	for _, v := range s.votes {
		if match(v) {
			delete(s.voteKeys, voteKey{userID: v.UserID, positionID: v.PositionID, electionID: v.ElectionID})
			continue
		}
		kept = append(kept, v)
	}
	s.votes = kept
}

// --- audit trail ---

func (s *Store) AppendAudit(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID()
	e.CreatedAt = time.Now().UTC()
	s.trail = append(s.trail, e)
	return e, nil
}

func (s *Store) ListAudit(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, 0, limit)
	for i := len(s.trail) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.trail[i])
	}
	return out, nil
}

// AuditCount reports how many audit entries exist. Test helper.
func (s *Store) AuditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trail)
}

// VoteCount reports how many ballots exist. Test helper.
func (s *Store) VoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.votes)
}
