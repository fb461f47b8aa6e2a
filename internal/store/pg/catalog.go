package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"saylau.org/internal/election"
)

const electionColumns = "id, name, academic_year, start_date, end_date, is_active, code, created_at"

func scanElection(row interface{ Scan(...any) error }) (election.Election, error) {
	var e election.Election
	var active int
	if err := row.Scan(&e.ID, &e.Name, &e.AcademicYear, &e.StartDate, &e.EndDate, &active, &e.Code, &e.CreatedAt); err != nil {
		return election.Election{}, err
	}
	e.IsActive = active == 1
	return e, nil
}

func activeInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) CreateElection(ctx context.Context, e election.Election) (election.Election, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO elections (name, academic_year, start_date, end_date, is_active, code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+electionColumns,
		e.Name, e.AcademicYear, e.StartDate, e.EndDate, activeInt(e.IsActive), e.Code)
	created, err := scanElection(row)
	if err != nil {
		if isUniqueViolation(err) {
			return election.Election{}, election.ErrDuplicateCode
		}
		return election.Election{}, fmt.Errorf("insert election: %w", err)
	}
	return created, nil
}

func (s *Store) GetElection(ctx context.Context, id int) (election.Election, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1`, id)
	e, err := scanElection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Election{}, election.ErrNotFound
	}
	if err != nil {
		return election.Election{}, fmt.Errorf("select election: %w", err)
	}
	return e, nil
}

func (s *Store) GetElectionByCode(ctx context.Context, code string) (election.Election, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+electionColumns+` FROM elections WHERE code = $1`, code)
	e, err := scanElection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Election{}, election.ErrNotFound
	}
	if err != nil {
		return election.Election{}, fmt.Errorf("select election by code: %w", err)
	}
	return e, nil
}

func (s *Store) ListElections(ctx context.Context) ([]election.Election, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+electionColumns+` FROM elections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	out := make([]election.Election, 0)
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan election: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateElection(ctx context.Context, e election.Election) (election.Election, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE elections
		SET name = $2, academic_year = $3, start_date = $4, end_date = $5, is_active = $6
		WHERE id = $1
		RETURNING `+electionColumns,
		e.ID, e.Name, e.AcademicYear, e.StartDate, e.EndDate, activeInt(e.IsActive))
	updated, err := scanElection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Election{}, election.ErrNotFound
	}
	if err != nil {
		return election.Election{}, fmt.Errorf("update election: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteElection(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "elections", id, election.ErrNotFound)
}

const positionColumns = "id, election_id, name, description, seats_count, grade_eligibility, order_index, created_at"

func scanPosition(row interface{ Scan(...any) error }) (election.Position, error) {
	var p election.Position
	var desc sql.NullString
	var grades []byte
	if err := row.Scan(&p.ID, &p.ElectionID, &p.Name, &desc, &p.SeatsCount, &grades, &p.OrderIndex, &p.CreatedAt); err != nil {
		return election.Position{}, err
	}
	p.Description = desc.String
	p.GradeEligibility = []string{}
	if len(grades) > 0 {
		if err := json.Unmarshal(grades, &p.GradeEligibility); err != nil {
			return election.Position{}, fmt.Errorf("decode grade_eligibility: %w", err)
		}
	}
	return p, nil
}

func gradesJSON(grades []string) ([]byte, error) {
	if grades == nil {
		grades = []string{}
	}
	return json.Marshal(grades)
}

func (s *Store) CreatePosition(ctx context.Context, p election.Position) (election.Position, error) {
	grades, err := gradesJSON(p.GradeEligibility)
	if err != nil {
		return election.Position{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO positions (election_id, name, description, seats_count, grade_eligibility, order_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+positionColumns,
		p.ElectionID, p.Name, p.Description, p.SeatsCount, grades, p.OrderIndex)
	created, err := scanPosition(row)
	if err != nil {
		return election.Position{}, fmt.Errorf("insert position: %w", err)
	}
	return created, nil
}

func (s *Store) GetPosition(ctx context.Context, id int) (election.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Position{}, election.ErrNotFound
	}
	if err != nil {
		return election.Position{}, fmt.Errorf("select position: %w", err)
	}
	return p, nil
}

func (s *Store) ListPositions(ctx context.Context, electionID int) ([]election.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE election_id = $1 ORDER BY order_index, id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	out := make([]election.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePosition(ctx context.Context, p election.Position) (election.Position, error) {
	grades, err := gradesJSON(p.GradeEligibility)
	if err != nil {
		return election.Position{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE positions
		SET name = $2, description = $3, seats_count = $4, grade_eligibility = $5, order_index = $6
		WHERE id = $1
		RETURNING `+positionColumns,
		p.ID, p.Name, p.Description, p.SeatsCount, grades, p.OrderIndex)
	updated, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Position{}, election.ErrNotFound
	}
	if err != nil {
		return election.Position{}, fmt.Errorf("update position: %w", err)
	}
	return updated, nil
}

func (s *Store) DeletePosition(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "positions", id, election.ErrNotFound)
}

const partyColumns = "id, election_id, name, color, created_at"

func scanParty(row interface{ Scan(...any) error }) (election.Party, error) {
	var p election.Party
	var electionID sql.NullInt64
	var color sql.NullString
	if err := row.Scan(&p.ID, &electionID, &p.Name, &color, &p.CreatedAt); err != nil {
		return election.Party{}, err
	}
	if electionID.Valid {
		v := int(electionID.Int64)
		p.ElectionID = &v
	}
	p.Color = color.String
	return p, nil
}

func (s *Store) CreateParty(ctx context.Context, p election.Party) (election.Party, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO parties (election_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING `+partyColumns,
		nullableInt(p.ElectionID), p.Name, p.Color)
	created, err := scanParty(row)
	if err != nil {
		return election.Party{}, fmt.Errorf("insert party: %w", err)
	}
	return created, nil
}

func (s *Store) GetParty(ctx context.Context, id int) (election.Party, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	p, err := scanParty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Party{}, election.ErrNotFound
	}
	if err != nil {
		return election.Party{}, fmt.Errorf("select party: %w", err)
	}
	return p, nil
}

func (s *Store) ListParties(ctx context.Context) ([]election.Party, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+partyColumns+` FROM parties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	out := make([]election.Party, 0)
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateParty(ctx context.Context, p election.Party) (election.Party, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE parties SET election_id = $2, name = $3, color = $4
		WHERE id = $1
		RETURNING `+partyColumns,
		p.ID, nullableInt(p.ElectionID), p.Name, p.Color)
	updated, err := scanParty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Party{}, election.ErrNotFound
	}
	if err != nil {
		return election.Party{}, fmt.Errorf("update party: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteParty(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "parties", id, election.ErrNotFound)
}

const candidateColumns = "id, position_id, party_id, name, grade, bio, image_url, created_at"

func scanCandidate(row interface{ Scan(...any) error }) (election.Candidate, error) {
	var c election.Candidate
	var partyID sql.NullInt64
	var grade, bio, imageURL sql.NullString
	if err := row.Scan(&c.ID, &c.PositionID, &partyID, &c.Name, &grade, &bio, &imageURL, &c.CreatedAt); err != nil {
		return election.Candidate{}, err
	}
	if partyID.Valid {
		v := int(partyID.Int64)
		c.PartyID = &v
	}
	c.Grade = grade.String
	c.Bio = bio.String
	c.ImageURL = imageURL.String
	return c, nil
}

func (s *Store) CreateCandidate(ctx context.Context, c election.Candidate) (election.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO candidates (position_id, party_id, name, grade, bio, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+candidateColumns,
		c.PositionID, nullableInt(c.PartyID), c.Name, c.Grade, c.Bio, c.ImageURL)
	created, err := scanCandidate(row)
	if err != nil {
		return election.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	return created, nil
}

func (s *Store) GetCandidate(ctx context.Context, id int) (election.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Candidate{}, election.ErrNotFound
	}
	if err != nil {
		return election.Candidate{}, fmt.Errorf("select candidate: %w", err)
	}
	return c, nil
}

func (s *Store) ListCandidates(ctx context.Context, positionID int) ([]election.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE position_id = $1 ORDER BY id`, positionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

func (s *Store) ListCandidatesByElection(ctx context.Context, electionID int) ([]election.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.position_id, c.party_id, c.name, c.grade, c.bio, c.image_url, c.created_at
		FROM candidates c
		JOIN positions p ON p.id = c.position_id
		WHERE p.election_id = $1
		ORDER BY c.id`, electionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates by election: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

func collectCandidates(rows *sql.Rows) ([]election.Candidate, error) {
	out := make([]election.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCandidate(ctx context.Context, c election.Candidate) (election.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE candidates SET party_id = $2, name = $3, grade = $4, bio = $5, image_url = $6
		WHERE id = $1
		RETURNING `+candidateColumns,
		c.ID, nullableInt(c.PartyID), c.Name, c.Grade, c.Bio, c.ImageURL)
	updated, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return election.Candidate{}, election.ErrNotFound
	}
	if err != nil {
		return election.Candidate{}, fmt.Errorf("update candidate: %w", err)
	}
	return updated, nil
}

func (s *Store) DeleteCandidate(ctx context.Context, id int) error {
	return s.deleteByID(ctx, "candidates", id, election.ErrNotFound)
}

func (s *Store) GetSiteSettings(ctx context.Context) (election.SiteSettings, error) {
	var out election.SiteSettings
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, school_name, logo_url, updated_at FROM site_settings ORDER BY id LIMIT 1`).
		Scan(&out.ID, &out.SchoolName, &logo, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return election.SiteSettings{}, election.ErrNotFound
	}
	if err != nil {
		return election.SiteSettings{}, fmt.Errorf("select site settings: %w", err)
	}
	out.LogoURL = logo.String
	return out, nil
}

func (s *Store) UpdateSiteSettings(ctx context.Context, settings election.SiteSettings) (election.SiteSettings, error) {
	var out election.SiteSettings
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE site_settings
		SET school_name = $1, logo_url = $2, updated_at = now()
		WHERE id = (SELECT id FROM site_settings ORDER BY id LIMIT 1)
		RETURNING id, school_name, logo_url, updated_at`,
		settings.SchoolName, settings.LogoURL).
		Scan(&out.ID, &out.SchoolName, &logo, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return election.SiteSettings{}, election.ErrNotFound
	}
	if err != nil {
		return election.SiteSettings{}, fmt.Errorf("update site settings: %w", err)
	}
	out.LogoURL = logo.String
	return out, nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id int, notFound error) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
