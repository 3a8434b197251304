package access

import (
	"context"
	"fmt"

	"cantus.org/internal/auth"
)

// Affiliation is the user's primary placement in the hierarchy. Either field
// may be empty.
type Affiliation struct {
	NetworkID string
	ChurchID  string
}

// Store reads grants and hierarchy edges for scope resolution.
type Store interface {
	UserAffiliation(ctx context.Context, userID string) (Affiliation, error)
	NetworkGrants(ctx context.Context, userID string) ([]string, error)
	ChurchGrants(ctx context.Context, userID string) ([]string, error)
	ActivityGrants(ctx context.Context, userID string) ([]string, error)

	ChurchesByNetworks(ctx context.Context, networkIDs []string) ([]string, error)
	ActivitiesByChurches(ctx context.Context, churchIDs []string) ([]string, error)
}

// Resolver computes the visibility scope for an identity. Resolution happens
// once per request; the result is immutable afterwards.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the per-axis scope for the identity.
//
// Administrators are unrestricted on every axis and cause no grant reads.
// For everyone else each axis starts from its direct grants plus the user's
// primary affiliation, then grants flow downward: a granted network implies
// all of its churches, a reachable church implies all of its activities.
// Grants never flow upward.
func (r *Resolver) Resolve(ctx context.Context, identity auth.Identity) (Scope, error) {
	if identity.Role.AtLeast(auth.RoleAdmin) {
		return AllUnrestricted(), nil
	}

	affiliation, err := r.store.UserAffiliation(ctx, identity.UserID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve affiliation: %w", err)
	}

	networkIDs, err := r.store.NetworkGrants(ctx, identity.UserID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve network grants: %w", err)
	}
	if affiliation.NetworkID != "" {
		networkIDs = append(networkIDs, affiliation.NetworkID)
	}
	networks := IDSet(networkIDs...)

	churchIDs, err := r.store.ChurchGrants(ctx, identity.UserID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve church grants: %w", err)
	}
	if affiliation.ChurchID != "" {
		churchIDs = append(churchIDs, affiliation.ChurchID)
	}
	churches := IDSet(churchIDs...)

	if !networks.IsEmpty() {
		implied, err := r.store.ChurchesByNetworks(ctx, networks.IDs())
		if err != nil {
			return Scope{}, fmt.Errorf("resolve implied churches: %w", err)
		}
		churches = churches.Union(IDSet(implied...))
	}

	activityIDs, err := r.store.ActivityGrants(ctx, identity.UserID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve activity grants: %w", err)
	}
	activities := IDSet(activityIDs...)

	if !churches.IsEmpty() {
		implied, err := r.store.ActivitiesByChurches(ctx, churches.IDs())
		if err != nil {
			return Scope{}, fmt.Errorf("resolve implied activities: %w", err)
		}
		activities = activities.Union(IDSet(implied...))
	}

	return Scope{
		Networks:   networks,
		Churches:   churches,
		Activities: activities,
	}, nil
}
