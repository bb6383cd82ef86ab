// Package collaborators defines the narrow interfaces the engine
// consumes from external systems, plus an in-memory reference
// implementation used by tests and the demo binary. Each oracle is a
// small, explicit wrapper over an external system, injected rather than
// reached for as a singleton.
package collaborators

import (
	"context"

	"github.com/rawblock/barter-engine/pkg/models"
)

// OwnershipOracle answers "who currently owns this item".
type OwnershipOracle interface {
	Owner(item models.ItemID) (models.ParticipantID, bool)
}

// MemberPage is one page of a lazily-paginated collection membership
// sequence, as produced by a CollectionOracle.
type MemberPage struct {
	Items   []models.ItemID
	HasMore bool
}

// CollectionOracle answers membership and size queries for collections.
// Members returns up to `limit` items using the given sampling strategy
// (the expander sends "recency" or "proximity+recency" — interpreted by
// the oracle).
type CollectionOracle interface {
	Size(ctx context.Context, collection models.CollectionID) (int, error)
	Members(ctx context.Context, collection models.CollectionID, limit int, strategy string) (MemberPage, error)
}

// PricingOracle optionally scores item value for the quality-score
// fairness multiplier. Price returns an item's price; the caller derives
// the multiplier from the prices and clamps it to the ±10% tolerance.
type PricingOracle interface {
	Price(item models.ItemID) (float64, bool)
}

// RejectionStore answers per-participant opaque blocklists.
type RejectionStore interface {
	Rejections(participant models.ParticipantID) (items map[models.ItemID]bool, participants map[models.ParticipantID]bool)
}
