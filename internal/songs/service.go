package songs

import (
	"context"
	"time"

	"cantus.org/internal/access"
)

// Service is the catalogue and analytics surface. Catalogue reads take no
// scope; usage reads take the caller's activity scope and apply it before
// any grouping, so out-of-scope rows never contribute to an aggregate.
type Service interface {
	ListSongs(ctx context.Context, filter ListFilter) ([]Song, error)
	GetSong(ctx context.Context, id string) (*Details, error)

	ListUsages(ctx context.Context, songID string, scope access.ScopeSet, filter UsageFilter) ([]Usage, error)
	KeyCounts(ctx context.Context, scope access.ScopeSet, filter UsageFilter) ([]KeyCount, error)
	TypeCounts(ctx context.Context, scope access.ScopeSet, filter UsageFilter) (TypeCounts, error)
	ActivityTotals(ctx context.Context, scope access.ScopeSet, filter UsageFilter) ([]ActivityTotal, error)
	UsageSummary(ctx context.Context, scope access.ScopeSet, filter SummaryFilter) ([]Summary, error)

	RecordUsage(ctx context.Context, songID, activityID string, usedDate time.Time) (*Usage, error)
	RemoveUsage(ctx context.Context, usageID string, scope access.ScopeSet) error
}

// effectiveScope narrows the caller's scope by the requested activity
// filter. A filter can never widen what the scope allows.
func effectiveScope(scope access.ScopeSet, filterIDs []string) access.ScopeSet {
	if len(filterIDs) == 0 {
		return scope
	}
	return scope.Intersect(filterIDs)
}
