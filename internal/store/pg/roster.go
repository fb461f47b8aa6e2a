package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"saylau.org/internal/roster"
)

const userColumns = "id, student_id, name, email, role, password_hash, password_changed, created_at"

func scanUser(row interface{ Scan(...any) error }) (roster.User, error) {
	var u roster.User
	var name, email sql.NullString
	var changed int
	if err := row.Scan(&u.ID, &u.StudentID, &name, &email, &u.Role, &u.PasswordHash, &changed, &u.CreatedAt); err != nil {
		return roster.User{}, err
	}
	u.Name = name.String
	u.Email = email.String
	u.PasswordChanged = changed == 1
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u roster.User) (roster.User, error) {
	changed := 0
	if u.PasswordChanged {
		changed = 1
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (student_id, name, email, role, password_hash, password_changed)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
		RETURNING `+userColumns,
		u.StudentID, u.Name, u.Email, u.Role, u.PasswordHash, changed)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return roster.User{}, roster.ErrDuplicateStudentID
		}
		return roster.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id int) (roster.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.User{}, roster.ErrNotFound
	}
	if err != nil {
		return roster.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (s *Store) FindByStudentID(ctx context.Context, studentID string) (roster.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(student_id) = lower($1)`, studentID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.User{}, roster.ErrNotFound
	}
	if err != nil {
		return roster.User{}, fmt.Errorf("select user by student id: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]roster.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]roster.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "users", id, roster.ErrNotFound)
}

func (s *Store) UpdatePassword(ctx context.Context, id int, hash string, changed bool) error {
	changedInt := 0
	if changed {
		changedInt = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, password_changed = $3 WHERE id = $1`, id, hash, changedInt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (s *Store) CountVoters(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'voter'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count voters: %w", err)
	}
	return n, nil
}

func (s *Store) CreateGroup(ctx context.Context, name string) (roster.Group, error) {
	var g roster.Group
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO groups (name) VALUES ($1) RETURNING id, name, created_at`, name).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return roster.Group{}, roster.ErrDuplicateGroup
		}
		return roster.Group{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id int) (roster.Group, error) {
	var g roster.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Group{}, roster.ErrNotFound
	}
	if err != nil {
		return roster.Group{}, fmt.Errorf("select group: %w", err)
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]roster.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

func collectGroups(rows *sql.Rows) ([]roster.Group, error) {
	out := make([]roster.Group, 0)
	for rows.Next() {
		var g roster.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) RenameGroup(ctx context.Context, id int, name string) (roster.Group, error) {
	var g roster.Group
	err := s.db.QueryRowContext(ctx,
		`UPDATE groups SET name = $2 WHERE id = $1 RETURNING id, name, created_at`, id, name).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Group{}, roster.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return roster.Group{}, roster.ErrDuplicateGroup
		}
		return roster.Group{}, fmt.Errorf("rename group: %w", err)
	}
	return g, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "groups", id, roster.ErrNotFound)
}

// SetGroupMembers replaces the membership of one group atomically.
func (s *Store) SetGroupMembers(ctx context.Context, groupID int, userIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			uid, groupID); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) AddGroupMembers(ctx context.Context, groupID int, userIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			uid, groupID); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID int) ([]roster.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.student_id, u.name, u.email, u.role, u.password_hash, u.password_changed, u.created_at
		FROM users u
		JOIN user_groups ug ON ug.user_id = u.id
		WHERE ug.group_id = $1
		ORDER BY u.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	out := make([]roster.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetAllowedGroups replaces the election's allow-list atomically.
func (s *Store) SetAllowedGroups(ctx context.Context, electionID int, groupIDs []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM election_allowed_groups WHERE election_id = $1`, electionID); err != nil {
		return fmt.Errorf("clear allowed groups: %w", err)
	}
	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO election_allowed_groups (election_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			electionID, gid); err != nil {
			return fmt.Errorf("insert allowed group: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListAllowedGroups(ctx context.Context, electionID int) ([]roster.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_at
		FROM groups g
		JOIN election_allowed_groups eag ON eag.group_id = g.id
		WHERE eag.election_id = $1
		ORDER BY g.id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("list allowed groups: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

func (s *Store) IsMemberOfAny(ctx context.Context, userID int, groupIDs []int) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	// The pgx stdlib driver accepts Go slices for array parameters.
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_groups WHERE user_id = $1 AND group_id = ANY($2)
		)`, userID, groupIDs).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
