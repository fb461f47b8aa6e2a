// Package roster manages the people side of the portal: user accounts,
// voter groups, and the group allow-lists that gate election eligibility.
package roster

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested user or group does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateStudentID indicates a user with the student id already exists.
	ErrDuplicateStudentID = errors.New("student id already exists")
	// ErrDuplicateGroup indicates a group with the name already exists.
	ErrDuplicateGroup = errors.New("group name already exists")
)

// User is an account that can sign in. Voters cast ballots; admins manage
// the portal. PasswordHash never leaves the server.
type User struct {
	ID              int       `json:"id"`
	StudentID       string    `json:"studentId"`
	Name            string    `json:"name,omitempty"`
	Email           string    `json:"email,omitempty"`
	Role            string    `json:"role"`
	PasswordHash    string    `json:"-"`
	PasswordChanged bool      `json:"passwordChanged"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Group is a named set of voters used to restrict elections.
type Group struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence contract for users, groups, membership, and the
// per-election allow-lists.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	FindByStudentID(ctx context.Context, studentID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int) error
	UpdatePassword(ctx context.Context, id int, hash string, changed bool) error
	CountVoters(ctx context.Context) (int, error)

	CreateGroup(ctx context.Context, name string) (Group, error)
	GetGroup(ctx context.Context, id int) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	RenameGroup(ctx context.Context, id int, name string) (Group, error)
	DeleteGroup(ctx context.Context, id int) error
	SetGroupMembers(ctx context.Context, groupID int, userIDs []int) error
	ListGroupMembers(ctx context.Context, groupID int) ([]User, error)
	AddGroupMembers(ctx context.Context, groupID int, userIDs []int) error

	SetAllowedGroups(ctx context.Context, electionID int, groupIDs []int) error
	ListAllowedGroups(ctx context.Context, electionID int) ([]Group, error)
	IsMemberOfAny(ctx context.Context, userID int, groupIDs []int) (bool, error)
}
