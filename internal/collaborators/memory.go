package collaborators

import (
	"context"
	"sort"
	"sync"

	"github.com/rawblock/barter-engine/internal/engine"
	"github.com/rawblock/barter-engine/pkg/models"
)

// MemoryOwnershipOracle is a map-backed OwnershipOracle for tests and the
// demo binary. Safe for concurrent reads and writes.
type MemoryOwnershipOracle struct {
	mu     sync.RWMutex
	owners map[models.ItemID]models.ParticipantID
}

// NewMemoryOwnershipOracle creates an oracle seeded with the given
// item-to-owner map.
func NewMemoryOwnershipOracle(owners map[models.ItemID]models.ParticipantID) *MemoryOwnershipOracle {
	m := &MemoryOwnershipOracle{owners: make(map[models.ItemID]models.ParticipantID, len(owners))}
	for k, v := range owners {
		m.owners[k] = v
	}
	return m
}

// Owner implements OwnershipOracle.
func (o *MemoryOwnershipOracle) Owner(item models.ItemID) (models.ParticipantID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.owners[item]
	return p, ok
}

// Transfer records an ownership change, used by OwnershipTransferred
// mutations and by test setup.
func (o *MemoryOwnershipOracle) Transfer(item models.ItemID, to models.ParticipantID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owners[item] = to
}

// Remove deletes an item from the ownership index (ItemRemoved mutation).
func (o *MemoryOwnershipOracle) Remove(item models.ItemID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.owners, item)
}

// MemoryCollectionOracle is a map-backed CollectionOracle for tests and
// the demo binary.
type MemoryCollectionOracle struct {
	mu      sync.RWMutex
	members map[models.CollectionID][]models.ItemID
}

// NewMemoryCollectionOracle creates an oracle seeded with the given
// collection membership map.
func NewMemoryCollectionOracle(members map[models.CollectionID][]models.ItemID) *MemoryCollectionOracle {
	m := &MemoryCollectionOracle{members: make(map[models.CollectionID][]models.ItemID, len(members))}
	for k, v := range members {
		cp := make([]models.ItemID, len(v))
		copy(cp, v)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		m.members[k] = cp
	}
	return m
}

// Size implements CollectionOracle.
func (o *MemoryCollectionOracle) Size(_ context.Context, collection models.CollectionID) (int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	items, ok := o.members[collection]
	if !ok {
		return 0, engine.ErrCollectionUnavailable
	}
	return len(items), nil
}

// Members implements CollectionOracle. The in-memory oracle ignores
// `strategy` since it has no analytics/proximity signal to bias on; real
// oracles apply it to prioritize which members are returned first.
func (o *MemoryCollectionOracle) Members(_ context.Context, collection models.CollectionID, limit int, _ string) (MemberPage, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	items, ok := o.members[collection]
	if !ok {
		return MemberPage{}, engine.ErrCollectionUnavailable
	}
	if limit <= 0 || limit >= len(items) {
		return MemberPage{Items: append([]models.ItemID(nil), items...), HasMore: false}, nil
	}
	return MemberPage{Items: append([]models.ItemID(nil), items[:limit]...), HasMore: true}, nil
}

// MemoryRejectionStore is a map-backed RejectionStore for tests and the
// demo binary.
type MemoryRejectionStore struct {
	mu   sync.RWMutex
	sets map[models.ParticipantID]models.RejectionSet
}

// NewMemoryRejectionStore creates a store seeded with the given sets.
func NewMemoryRejectionStore(sets []models.RejectionSet) *MemoryRejectionStore {
	s := &MemoryRejectionStore{sets: make(map[models.ParticipantID]models.RejectionSet, len(sets))}
	for _, rs := range sets {
		s.sets[rs.Participant] = rs
	}
	return s
}

// Rejections implements RejectionStore.
func (s *MemoryRejectionStore) Rejections(participant models.ParticipantID) (map[models.ItemID]bool, map[models.ParticipantID]bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.sets[participant]
	items := make(map[models.ItemID]bool)
	parts := make(map[models.ParticipantID]bool)
	if !ok {
		return items, parts
	}
	for _, it := range rs.RejectedItems {
		items[it] = true
	}
	for _, p := range rs.RejectedParticipants {
		parts[p] = true
	}
	return items, parts
}
