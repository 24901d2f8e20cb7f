package directory

import (
	"context"
	"fmt"
)

// Administrative writes used by seeding tools and tests. All statements
// are idempotent upserts so re-seeding an existing database is safe.

// AddOrganization registers an organization.
func (s *Store) AddOrganization(ctx context.Context, id int64) error {
	return s.exec(ctx, `INSERT INTO organizations (id) VALUES (?) ON CONFLICT DO NOTHING`, id)
}

// AddProject registers a project under an organization.
func (s *Store) AddProject(ctx context.Context, id, organizationID int64) error {
	return s.exec(ctx, `
		INSERT INTO projects (id, organization_id) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET organization_id = excluded.organization_id`,
		id, organizationID)
}

// AddTeam registers a team under an organization.
func (s *Store) AddTeam(ctx context.Context, id, organizationID int64, slug string) error {
	return s.exec(ctx, `
		INSERT INTO teams (id, organization_id, slug) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET organization_id = excluded.organization_id, slug = excluded.slug`,
		id, organizationID, slug)
}

// AddUser registers a user.
func (s *Store) AddUser(ctx context.Context, id int64, email string) error {
	return s.exec(ctx, `
		INSERT INTO users (id, email) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email`,
		id, email)
}

// AddOrganizationMember makes a user a member of an organization.
func (s *Store) AddOrganizationMember(ctx context.Context, organizationID, userID int64) error {
	return s.exec(ctx, `
		INSERT INTO organization_members (organization_id, user_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`,
		organizationID, userID)
}

// AddTeamMember records a team membership. Inactive memberships stay on
// file but are excluded from member expansion.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64, active bool) error {
	return s.exec(ctx, `
		INSERT INTO team_memberships (team_id, user_id, active) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET active = excluded.active`,
		teamID, userID, active)
}

// AddProjectTeam associates a team with a project.
func (s *Store) AddProjectTeam(ctx context.Context, projectID, teamID int64) error {
	return s.exec(ctx, `
		INSERT INTO project_teams (project_id, team_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`,
		projectID, teamID)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("directory write: %w", err)
	}
	return nil
}
