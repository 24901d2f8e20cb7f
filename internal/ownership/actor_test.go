package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	teams map[string]int64
	users map[string]int64
}

func (r *fakeResolver) TeamIDBySlug(_ context.Context, _ int64, slug string) (int64, error) {
	if id, ok := r.teams[slug]; ok {
		return id, nil
	}
	return 0, errors.New("no such team")
}

func (r *fakeResolver) UserIDByEmail(_ context.Context, _ int64, email string) (int64, error) {
	if id, ok := r.users[email]; ok {
		return id, nil
	}
	return 0, errors.New("no such user")
}

func TestToActor(t *testing.T) {
	resolver := &fakeResolver{
		teams: map[string]int64{"backend": 10},
		users: map[string]int64{"carol@example.com": 3},
	}
	ctx := context.Background()

	team, err := ToActor(ctx, resolver, 1, Owner{Type: OwnerTypeTeam, Identifier: "backend"})
	require.NoError(t, err)
	assert.Equal(t, Actor{Type: ActorTypeTeam, ID: 10}, team)

	user, err := ToActor(ctx, resolver, 1, Owner{Type: OwnerTypeUser, Identifier: "carol@example.com"})
	require.NoError(t, err)
	assert.Equal(t, Actor{Type: ActorTypeUser, ID: 3}, user)
}

func TestToActor_Unresolvable(t *testing.T) {
	resolver := &fakeResolver{}
	ctx := context.Background()

	_, err := ToActor(ctx, resolver, 1, Owner{Type: OwnerTypeTeam, Identifier: "ghosts"})
	assert.ErrorIs(t, err, ErrUnresolvableOwner)

	_, err = ToActor(ctx, resolver, 1, Owner{Type: OwnerTypeUser, Identifier: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrUnresolvableOwner)

	_, err = ToActor(ctx, resolver, 1, Owner{Type: "role", Identifier: "admin"})
	assert.ErrorIs(t, err, ErrUnresolvableOwner)
}

func TestActor_Comparable(t *testing.T) {
	// Actors key ownership maps: equality is (kind, id).
	a := Actor{Type: ActorTypeTeam, ID: 1}
	b := Actor{Type: ActorTypeUser, ID: 1}
	c := Actor{Type: ActorTypeTeam, ID: 1}

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)

	m := map[Actor]string{a: "team one"}
	assert.Equal(t, "team one", m[c])
	_, ok := m[b]
	assert.False(t, ok)
}

func TestActorType_String(t *testing.T) {
	assert.Equal(t, "team", ActorTypeTeam.String())
	assert.Equal(t, "user", ActorTypeUser.String())
	assert.Equal(t, "unknown", ActorType(9).String())
}
