package ownership

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnresolvableOwner indicates an owner reference whose slug or email
// does not resolve within the project's organization. Callers should skip
// the single owner and continue with the rest of the event's owners.
var ErrUnresolvableOwner = errors.New("owner does not resolve within organization")

// ActorType is the kind of a canonical actor.
type ActorType int8

const (
	// ActorTypeTeam is a team actor.
	ActorTypeTeam ActorType = iota
	// ActorTypeUser is a user actor.
	ActorTypeUser
)

// String returns the lowercase name of the actor type.
func (t ActorType) String() string {
	switch t {
	case ActorTypeTeam:
		return "team"
	case ActorTypeUser:
		return "user"
	default:
		return "unknown"
	}
}

// Actor is a canonical (kind, numeric id) reference to a team or user.
// Actors are comparable and serve as the key type for ownership
// aggregation: two actors are equal iff kind and id match.
type Actor struct {
	Type ActorType
	ID   int64
}

// Resolver resolves declarative owner identifiers to numeric ids within
// the organization owning the given project.
type Resolver interface {
	TeamIDBySlug(ctx context.Context, projectID int64, slug string) (int64, error)
	UserIDByEmail(ctx context.Context, projectID int64, email string) (int64, error)
}

// ToActor normalizes an owner reference to a canonical actor. Identifiers
// that do not resolve yield an error wrapping ErrUnresolvableOwner.
func ToActor(ctx context.Context, resolver Resolver, projectID int64, owner Owner) (Actor, error) {
	switch owner.Type {
	case OwnerTypeTeam:
		id, err := resolver.TeamIDBySlug(ctx, projectID, owner.Identifier)
		if err != nil {
			return Actor{}, fmt.Errorf("team %q (%v): %w", owner.Identifier, err, ErrUnresolvableOwner)
		}
		return Actor{Type: ActorTypeTeam, ID: id}, nil
	case OwnerTypeUser:
		id, err := resolver.UserIDByEmail(ctx, projectID, owner.Identifier)
		if err != nil {
			return Actor{}, fmt.Errorf("user %q (%v): %w", owner.Identifier, err, ErrUnresolvableOwner)
		}
		return Actor{Type: ActorTypeUser, ID: id}, nil
	default:
		return Actor{}, fmt.Errorf("owner type %q: %w", owner.Type, ErrUnresolvableOwner)
	}
}
