package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/anthrax3/sentry/internal/ownership"
)

// schemaDDL creates the directory tables. Applied on every open; all
// statements are idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS organizations (
	id INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS projects (
	id              INTEGER PRIMARY KEY,
	organization_id INTEGER NOT NULL REFERENCES organizations(id)
);
CREATE TABLE IF NOT EXISTS teams (
	id              INTEGER PRIMARY KEY,
	organization_id INTEGER NOT NULL REFERENCES organizations(id),
	slug            TEXT NOT NULL,
	UNIQUE (organization_id, slug)
);
CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY,
	email TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS organization_members (
	organization_id INTEGER NOT NULL REFERENCES organizations(id),
	user_id         INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (organization_id, user_id)
);
CREATE TABLE IF NOT EXISTS team_memberships (
	team_id INTEGER NOT NULL REFERENCES teams(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	active  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (team_id, user_id)
);
CREATE TABLE IF NOT EXISTS project_teams (
	project_id INTEGER NOT NULL REFERENCES projects(id),
	team_id    INTEGER NOT NULL REFERENCES teams(id),
	PRIMARY KEY (project_id, team_id)
);
CREATE TABLE IF NOT EXISTS project_ownerships (
	project_id INTEGER PRIMARY KEY REFERENCES projects(id),
	schema     TEXT NOT NULL
);
`

// ErrNotFound indicates a directory entity that does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed directory.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the directory database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing directory schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TeamIDBySlug resolves a team slug within the organization owning the
// project. Returns ErrNotFound for unknown slugs.
func (s *Store) TeamIDBySlug(ctx context.Context, projectID int64, slug string) (int64, error) {
	const q = `
		SELECT t.id
		FROM teams t
		JOIN projects p ON p.organization_id = t.organization_id
		WHERE p.id = ? AND t.slug = ?`
	var id int64
	err := s.db.QueryRowContext(ctx, q, projectID, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("team slug %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving team slug %q: %w", slug, err)
	}
	return id, nil
}

// UserIDByEmail resolves a user email within the organization owning the
// project. Only organization members resolve; returns ErrNotFound otherwise.
func (s *Store) UserIDByEmail(ctx context.Context, projectID int64, email string) (int64, error) {
	const q = `
		SELECT u.id
		FROM users u
		JOIN organization_members m ON m.user_id = u.id
		JOIN projects p ON p.organization_id = m.organization_id
		WHERE p.id = ? AND u.email = ?`
	var id int64
	err := s.db.QueryRowContext(ctx, q, projectID, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user email %q: %w", email, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving user email %q: %w", email, err)
	}
	return id, nil
}

// ActiveTeamMembers returns the active member user ids of each team.
// Teams with no active members are absent from the result.
func (s *Store) ActiveTeamMembers(ctx context.Context, teamIDs []int64) (map[int64][]int64, error) {
	members := make(map[int64][]int64)
	if len(teamIDs) == 0 {
		return members, nil
	}

	placeholders := strings.Repeat("?,", len(teamIDs))
	placeholders = placeholders[:len(placeholders)-1]
	q := fmt.Sprintf(`
		SELECT team_id, user_id
		FROM team_memberships
		WHERE active = 1 AND team_id IN (%s)
		ORDER BY team_id, user_id`, placeholders)

	args := make([]any, len(teamIDs))
	for i, id := range teamIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying team memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var teamID, userID int64
		if err := rows.Scan(&teamID, &userID); err != nil {
			return nil, fmt.Errorf("scanning team membership: %w", err)
		}
		members[teamID] = append(members[teamID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading team memberships: %w", err)
	}
	return members, nil
}

// ProjectMemberIDs returns the distinct active members of the project's
// teams, the candidate recipient set for its digests.
func (s *Store) ProjectMemberIDs(ctx context.Context, projectID int64) ([]int64, error) {
	const q = `
		SELECT DISTINCT tm.user_id
		FROM team_memberships tm
		JOIN project_teams pt ON pt.team_id = tm.team_id
		WHERE pt.project_id = ? AND tm.active = 1
		ORDER BY tm.user_id`
	rows, err := s.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning project member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading project members: %w", err)
	}
	return ids, nil
}

// OwnershipSchema returns the project's parsed ownership schema. A project
// without a stored schema gets an empty rule list with fallthrough enabled,
// so every event reaches every candidate recipient.
func (s *Store) OwnershipSchema(ctx context.Context, projectID int64) (*ownership.Schema, error) {
	const q = `SELECT schema FROM project_ownerships WHERE project_id = ?`
	var raw []byte
	err := s.db.QueryRowContext(ctx, q, projectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &ownership.Schema{Fallthrough: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying ownership schema: %w", err)
	}
	return ownership.ParseSchema(raw)
}

// SetOwnershipSchema stores (or replaces) the project's ownership schema.
func (s *Store) SetOwnershipSchema(ctx context.Context, projectID int64, schema *ownership.Schema) error {
	data, err := ownership.EncodeSchema(schema)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO project_ownerships (project_id, schema) VALUES (?, ?)
		ON CONFLICT (project_id) DO UPDATE SET schema = excluded.schema`
	if _, err := s.db.ExecContext(ctx, q, projectID, data); err != nil {
		return fmt.Errorf("storing ownership schema: %w", err)
	}
	return nil
}
