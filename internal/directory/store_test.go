package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthrax3/sentry/internal/ownership"
)

const (
	orgID     int64 = 1
	projectID int64 = 100
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTestStore(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.AddOrganization(ctx, orgID))
	require.NoError(t, store.AddProject(ctx, projectID, orgID))

	require.NoError(t, store.AddTeam(ctx, 10, orgID, "team-alpha"))
	require.NoError(t, store.AddTeam(ctx, 20, orgID, "team-beta"))
	require.NoError(t, store.AddTeam(ctx, 30, orgID, "team-gamma"))
	require.NoError(t, store.AddProjectTeam(ctx, projectID, 10))
	require.NoError(t, store.AddProjectTeam(ctx, projectID, 20))

	for id, email := range map[int64]string{
		1: "user1@example.com",
		2: "user2@example.com",
		3: "user3@example.com",
		4: "user4@example.com",
	} {
		require.NoError(t, store.AddUser(ctx, id, email))
		require.NoError(t, store.AddOrganizationMember(ctx, orgID, id))
	}

	require.NoError(t, store.AddTeamMember(ctx, 10, 1, true))
	require.NoError(t, store.AddTeamMember(ctx, 10, 3, true))
	require.NoError(t, store.AddTeamMember(ctx, 20, 2, true))
	require.NoError(t, store.AddTeamMember(ctx, 20, 3, true))
	// user4 only has an inactive membership.
	require.NoError(t, store.AddTeamMember(ctx, 20, 4, false))
	require.NoError(t, store.AddTeamMember(ctx, 30, 4, false))
}

func TestStore_TeamIDBySlug(t *testing.T) {
	store := openTestStore(t)
	seedTestStore(t, store)
	ctx := context.Background()

	id, err := store.TeamIDBySlug(ctx, projectID, "team-alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)

	_, err = store.TeamIDBySlug(ctx, projectID, "team-ghosts")
	assert.ErrorIs(t, err, ErrNotFound)

	// Slugs resolve only within the project's organization.
	require.NoError(t, store.AddOrganization(ctx, 2))
	require.NoError(t, store.AddProject(ctx, 200, 2))
	_, err = store.TeamIDBySlug(ctx, 200, "team-alpha")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UserIDByEmail(t *testing.T) {
	store := openTestStore(t)
	seedTestStore(t, store)
	ctx := context.Background()

	id, err := store.UserIDByEmail(ctx, projectID, "user3@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	_, err = store.UserIDByEmail(ctx, projectID, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// A user outside the organization does not resolve.
	require.NoError(t, store.AddUser(ctx, 9, "outsider@example.com"))
	_, err = store.UserIDByEmail(ctx, projectID, "outsider@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ActiveTeamMembers(t *testing.T) {
	store := openTestStore(t)
	seedTestStore(t, store)

	members, err := store.ActiveTeamMembers(context.Background(), []int64{10, 20, 30})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, members[10])
	assert.Equal(t, []int64{2, 3}, members[20])
	// Inactive memberships are excluded, even when a team has nothing else.
	_, ok := members[30]
	assert.False(t, ok)
}

func TestStore_ActiveTeamMembers_Empty(t *testing.T) {
	store := openTestStore(t)

	members, err := store.ActiveTeamMembers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestStore_ProjectMemberIDs(t *testing.T) {
	store := openTestStore(t)
	seedTestStore(t, store)

	ids, err := store.ProjectMemberIDs(context.Background(), projectID)
	require.NoError(t, err)

	// user4's memberships are inactive, so they are not a candidate.
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestStore_OwnershipSchema(t *testing.T) {
	store := openTestStore(t)
	seedTestStore(t, store)
	ctx := context.Background()

	// Without a stored schema, everything falls through to everyone.
	schema, err := store.OwnershipSchema(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, schema.Rules)
	assert.True(t, schema.Fallthrough)

	stored := &ownership.Schema{
		Rules: []ownership.Rule{
			{
				Matcher: ownership.Matcher{Type: ownership.MatcherTypePath, Pattern: "*.py"},
				Owners:  []ownership.Owner{{Type: ownership.OwnerTypeTeam, Identifier: "team-alpha"}},
			},
		},
		Fallthrough: false,
	}
	require.NoError(t, store.SetOwnershipSchema(ctx, projectID, stored))

	loaded, err := store.OwnershipSchema(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, stored, loaded)

	// Replacing the schema overwrites the previous row.
	stored.Fallthrough = true
	require.NoError(t, store.SetOwnershipSchema(ctx, projectID, stored))
	loaded, err = store.OwnershipSchema(ctx, projectID)
	require.NoError(t, err)
	assert.True(t, loaded.Fallthrough)
}
