// Package projcache caches clause projections keyed by clause id.
//
// A cache never serves a projection computed before an invalidation this
// process has observed: Get hands out a ticket on a miss, and Put drops the
// value if the clause was invalidated after that ticket was issued.
// Staleness across processes is advisory only.
package projcache

import (
	"context"

	"redline/api/internal/review"
)

// Ticket orders a cache fill against invalidations of the same clause.
type Ticket uint64

type Cache interface {
	// Get returns the cached projection, or a ticket to pass to Put on a miss.
	Get(ctx context.Context, clauseID string) (review.Projection, Ticket, bool)
	// Put stores p unless clauseID was invalidated after ticket was issued.
	Put(ctx context.Context, clauseID string, ticket Ticket, p review.Projection)
	// Invalidate removes the entry and fences off fills started before it.
	Invalidate(ctx context.Context, clauseID string) error
}
