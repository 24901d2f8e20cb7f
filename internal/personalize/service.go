package personalize

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/anthrax3/sentry/internal/digest"
	"github.com/anthrax3/sentry/internal/ownership"
)

// defaultWorkers bounds the per-user digest assembly fan-out.
const defaultWorkers = 4

// Directory is the external data collaborator the pipeline reads from.
//
// Implementations must be safe for concurrent use. Membership data is
// queried per call, never cached inside the pipeline, so every run sees a
// consistent snapshot of the collaborator's current state.
type Directory interface {
	ownership.Resolver

	// OwnershipSchema returns the project's parsed ownership schema.
	OwnershipSchema(ctx context.Context, projectID int64) (*ownership.Schema, error)

	// ActiveTeamMembers returns the active member user ids of each team.
	// Teams without active members may be absent from the result.
	ActiveTeamMembers(ctx context.Context, teamIDs []int64) (map[int64][]int64, error)
}

// UserIDSet is a set of user ids.
type UserIDSet map[int64]struct{}

// UserDigest pairs a recipient with their personalized view of a digest.
type UserDigest struct {
	UserID int64
	Digest *digest.Digest
}

// Service computes personalized digests for a project's recipients.
type Service struct {
	dir     Directory
	logger  *zap.Logger
	workers int
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers sets the number of workers used for per-user digest assembly.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates a personalization service backed by the given
// directory collaborator.
func NewService(dir Directory, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		dir:     dir,
		logger:  logger,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildEventsByActor resolves each event to its owning actors through the
// project's ownership schema and returns the event set owned by each actor.
// The second return holds events that matched no rule at all; the caller
// applies the schema's fallthrough policy to them. Events whose owners all
// fail to resolve contribute to no actor and are not part of the unmatched
// set.
//
// Resolution is a single pass per event over the schema's rules, never per
// (event, user) pair.
func (s *Service) BuildEventsByActor(ctx context.Context, projectID int64, events []digest.Event) (map[ownership.Actor]digest.EventSet, digest.EventSet, error) {
	schema, err := s.dir.OwnershipSchema(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading ownership schema: %w", err)
	}
	return s.eventsByActor(ctx, projectID, schema, events)
}

func (s *Service) eventsByActor(ctx context.Context, projectID int64, schema *ownership.Schema, events []digest.Event) (map[ownership.Actor]digest.EventSet, digest.EventSet, error) {
	byActor := make(map[ownership.Actor]digest.EventSet)
	unmatched := make(digest.EventSet)

	// Owner references repeat across events; resolve each distinct owner
	// once. A nil entry records an unresolvable owner.
	resolved := make(map[ownership.Owner]*ownership.Actor)

	for _, event := range events {
		owners, matched := schema.ResolveOwners(event)
		if !matched {
			unmatched.Add(event)
			continue
		}
		for _, owner := range owners {
			actor, ok := resolved[owner]
			if !ok {
				a, err := ownership.ToActor(ctx, s.dir, projectID, owner)
				if err != nil {
					if ctx.Err() != nil {
						return nil, nil, ctx.Err()
					}
					// Skip the single owner, keep the event's other owners.
					s.logger.Warn("skipping unresolvable owner",
						zap.Int64("project_id", projectID),
						zap.String("owner_type", string(owner.Type)),
						zap.String("owner", owner.Identifier),
						zap.Error(err))
					resolved[owner] = nil
					continue
				}
				actor = &a
				resolved[owner] = actor
			}
			if actor == nil {
				continue
			}
			set, ok := byActor[*actor]
			if !ok {
				set = make(digest.EventSet)
				byActor[*actor] = set
			}
			set.Add(event)
		}
	}
	return byActor, unmatched, nil
}

// TeamActorsToUserIDs expands team actors into the set of users who are
// active members of the team and present in candidates. Every team actor
// appears as a key, so callers can distinguish a team with no eligible
// members from a team that is not an owner at all. Inactive memberships
// are excluded unconditionally.
func (s *Service) TeamActorsToUserIDs(ctx context.Context, teamActors []ownership.Actor, candidates []int64) (map[int64]UserIDSet, error) {
	teamIDs := make([]int64, 0, len(teamActors))
	for _, actor := range teamActors {
		if actor.Type == ownership.ActorTypeTeam {
			teamIDs = append(teamIDs, actor.ID)
		}
	}

	members, err := s.dir.ActiveTeamMembers(ctx, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("loading team members: %w", err)
	}

	eligible := make(UserIDSet, len(candidates))
	for _, id := range candidates {
		eligible[id] = struct{}{}
	}

	result := make(map[int64]UserIDSet, len(teamIDs))
	for _, teamID := range teamIDs {
		set := make(UserIDSet)
		for _, userID := range members[teamID] {
			if _, ok := eligible[userID]; ok {
				set[userID] = struct{}{}
			}
		}
		result[teamID] = set
	}
	return result, nil
}

// ConvertActorsToUserSet merges actor-level event sets into per-user event
// sets restricted to candidates. User actors contribute their set directly;
// team actors contribute theirs to every expanded member. A user covered by
// several actors receives the union of all their sets.
func (s *Service) ConvertActorsToUserSet(ctx context.Context, eventsByActor map[ownership.Actor]digest.EventSet, candidates []int64) (map[int64]digest.EventSet, error) {
	teamActors := make([]ownership.Actor, 0, len(eventsByActor))
	for actor := range eventsByActor {
		if actor.Type == ownership.ActorTypeTeam {
			teamActors = append(teamActors, actor)
		}
	}

	teamMembers, err := s.TeamActorsToUserIDs(ctx, teamActors, candidates)
	if err != nil {
		return nil, err
	}

	eligible := make(UserIDSet, len(candidates))
	for _, id := range candidates {
		eligible[id] = struct{}{}
	}

	byUser := make(map[int64]digest.EventSet)
	union := func(userID int64, events digest.EventSet) {
		set, ok := byUser[userID]
		if !ok {
			set = make(digest.EventSet, len(events))
			byUser[userID] = set
		}
		set.Union(events)
	}

	for actor, events := range eventsByActor {
		switch actor.Type {
		case ownership.ActorTypeUser:
			if _, ok := eligible[actor.ID]; ok {
				union(actor.ID, events)
			}
		case ownership.ActorTypeTeam:
			for userID := range teamMembers[actor.ID] {
				union(userID, events)
			}
		}
	}
	return byUser, nil
}

// PersonalizedDigests computes, for each recipient in userIDs with at least
// one relevant event, a personalized digest preserving the grouping and
// ordering of the source digest. Recipients with no relevant events are
// omitted. An empty recipient list or an empty digest yields an empty
// result and no error. Results are ordered by user id.
func (s *Service) PersonalizedDigests(ctx context.Context, projectID int64, d *digest.Digest, userIDs []int64) ([]UserDigest, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	events := d.Events()
	if len(events) == 0 {
		return nil, nil
	}

	schema, err := s.dir.OwnershipSchema(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading ownership schema: %w", err)
	}

	eventsByActor, unmatched, err := s.eventsByActor(ctx, projectID, schema, events)
	if err != nil {
		return nil, err
	}

	byUser, err := s.ConvertActorsToUserSet(ctx, eventsByActor, userIDs)
	if err != nil {
		return nil, err
	}

	// Events matching no rule go to every candidate when the schema falls
	// through; without fallthrough they reach nobody.
	if schema.Fallthrough && len(unmatched) > 0 {
		for _, userID := range userIDs {
			set, ok := byUser[userID]
			if !ok {
				set = make(digest.EventSet, len(unmatched))
				byUser[userID] = set
			}
			set.Union(unmatched)
		}
	}

	recipients := make([]int64, 0, len(byUser))
	for userID, set := range byUser {
		if len(set) > 0 {
			recipients = append(recipients, userID)
		}
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })

	s.logger.Debug("personalizing digest",
		zap.Int64("project_id", projectID),
		zap.String("digest_id", d.ID),
		zap.Int("events", len(events)),
		zap.Int("actors", len(eventsByActor)),
		zap.Int("recipients", len(recipients)))

	return s.assemble(ctx, d, byUser, recipients)
}

// assemble builds each recipient's digest on a bounded worker pool. Workers
// only read the shared immutable digest and event sets and write to their
// own output slot.
func (s *Service) assemble(ctx context.Context, d *digest.Digest, byUser map[int64]digest.EventSet, recipients []int64) ([]UserDigest, error) {
	results := make([]UserDigest, len(recipients))

	workers := s.workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	jobs := make(chan int)
	done := make(chan struct{}, workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range jobs {
				userID := recipients[i]
				set := byUser[userID]
				results[i] = UserDigest{
					UserID: userID,
					Digest: d.Filter(set.Has),
				}
			}
		}()
	}

	var err error
feed:
	for i := range recipients {
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	for w := 0; w < workers; w++ {
		<-done
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}
