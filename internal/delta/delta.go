// Package delta computes the affected sub-graph for a single live
// mutation, so the orchestrator can re-run discovery over a small
// seed-expanded neighborhood instead of the whole graph.
package delta

import (
	"sort"

	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/pkg/models"
)

// ComplexityBucket classifies the estimated cost of re-discovering over
// a descriptor's affected set.
type ComplexityBucket string

const (
	ComplexityLow    ComplexityBucket = "low"
	ComplexityMedium ComplexityBucket = "medium"
	ComplexityHigh   ComplexityBucket = "high"
)

// Descriptor is the sub-graph affected by one mutation.
type Descriptor struct {
	Participants []models.ParticipantID
	Items        []models.ItemID
	Collections  []models.CollectionID
	Components   [][]models.ParticipantID // weakly-connected components of Participants
	Complexity   ComplexityBucket
}

// CycleIndex answers which participants took part in any persisted
// cycle that used a given item, needed by the item-removed rule.
type CycleIndex interface {
	ParticipantsInCyclesContaining(item models.ItemID) []models.ParticipantID
}

// Detector computes descriptors against a live graph.
type Detector struct {
	g      *graph.Graph
	cycles CycleIndex
}

// New creates a Detector bound to g. cycles may be nil if no persisted
// cycle index is available (the item-removed rule then seeds from
// current wanters only).
func New(g *graph.Graph, cycles CycleIndex) *Detector {
	return &Detector{g: g, cycles: cycles}
}

// Describe computes the sub-graph descriptor for one mutation.
func (d *Detector) Describe(m models.Mutation) Descriptor {
	var seeds map[models.ParticipantID]bool

	switch m.Type {
	case models.MutationItemAdded:
		seeds = d.itemAddedSeeds(m.Payload)
	case models.MutationWantAdded, models.MutationWantRemoved:
		seeds = d.wantChangedSeeds(m.Payload)
	case models.MutationItemRemoved:
		seeds = d.itemRemovedSeeds(m.Payload)
	case models.MutationOwnershipTransferred:
		seeds = d.ownershipTransferredSeeds(m.Payload)
	default:
		seeds = make(map[models.ParticipantID]bool)
	}

	expanded := d.expand(seeds, 2)
	return d.buildDescriptor(expanded, m.Payload)
}

func (d *Detector) itemAddedSeeds(p models.MutationPayload) map[models.ParticipantID]bool {
	seeds := map[models.ParticipantID]bool{p.Owner: true}
	for w := range d.g.Wanters(p.Item) {
		seeds[w] = true
	}
	return seeds
}

func (d *Detector) wantChangedSeeds(p models.MutationPayload) map[models.ParticipantID]bool {
	seeds := map[models.ParticipantID]bool{p.Wanter: true}
	if owner, ok := d.g.Owner(p.Item); ok {
		seeds[owner] = true
	}
	return seeds
}

func (d *Detector) itemRemovedSeeds(p models.MutationPayload) map[models.ParticipantID]bool {
	seeds := make(map[models.ParticipantID]bool)
	for w := range d.g.Wanters(p.Item) {
		seeds[w] = true
	}
	if d.cycles != nil {
		for _, participant := range d.cycles.ParticipantsInCyclesContaining(p.Item) {
			seeds[participant] = true
		}
	}
	return seeds
}

func (d *Detector) ownershipTransferredSeeds(p models.MutationPayload) map[models.ParticipantID]bool {
	seeds := map[models.ParticipantID]bool{p.Owner: true}
	if p.PriorOwner != "" {
		seeds[p.PriorOwner] = true
	}
	for w := range d.g.Wanters(p.Item) {
		seeds[w] = true
	}
	return seeds
}

// expand walks outward from seeds by hops, following both owner->wanter
// edges and wanter->owner-of-a-wanted-item edges (i.e. both directions
// of the want relation), for the given number of hops.
func (d *Detector) expand(seeds map[models.ParticipantID]bool, hops int) map[graph.ParticipantHandle]bool {
	frontier := make(map[graph.ParticipantHandle]bool)
	for p := range seeds {
		if h, ok := d.g.Handle(p); ok {
			frontier[h] = true
		}
	}

	visited := make(map[graph.ParticipantHandle]bool, len(frontier))
	for h := range frontier {
		visited[h] = true
	}

	for hop := 0; hop < hops; hop++ {
		next := make(map[graph.ParticipantHandle]bool)
		for h := range frontier {
			for _, to := range d.g.SortedNeighbors(h) {
				if !visited[to] {
					next[to] = true
				}
			}
			for _, from := range d.inboundNeighbors(h) {
				if !visited[from] {
					next[from] = true
				}
			}
		}
		if len(next) == 0 {
			break
		}
		for h := range next {
			visited[h] = true
		}
		frontier = next
	}
	return visited
}

// inboundNeighbors returns every handle with an edge into h (i.e. h
// wants something they own) — the graph only indexes outbound
// adjacency, so this does a bounded scan over all node handles.
func (d *Detector) inboundNeighbors(h graph.ParticipantHandle) []graph.ParticipantHandle {
	var out []graph.ParticipantHandle
	for _, n := range d.g.NodeHandles() {
		if n == h {
			continue
		}
		if _, ok := d.g.Edge(n, h); ok {
			out = append(out, n)
		}
	}
	return out
}

func (d *Detector) buildDescriptor(handles map[graph.ParticipantHandle]bool, payload models.MutationPayload) Descriptor {
	participants := make([]models.ParticipantID, 0, len(handles))
	for h := range handles {
		participants = append(participants, d.g.Participant(h))
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

	items := map[models.ItemID]bool{}
	if payload.Item != "" {
		items[payload.Item] = true
	}
	var itemList []models.ItemID
	for it := range items {
		itemList = append(itemList, it)
	}
	sort.Slice(itemList, func(i, j int) bool { return itemList[i] < itemList[j] })

	var collections []models.CollectionID
	if payload.CollectionID != "" {
		collections = append(collections, payload.CollectionID)
	}

	components := d.weaklyConnectedComponents(handles)

	return Descriptor{
		Participants: participants,
		Items:        itemList,
		Collections:  collections,
		Components:   components,
		Complexity:   complexityFor(components),
	}
}

// weaklyConnectedComponents partitions the affected handle set into
// weakly-connected components by ignoring edge direction, using
// breadth-first search from each unvisited member.
func (d *Detector) weaklyConnectedComponents(handles map[graph.ParticipantHandle]bool) [][]models.ParticipantID {
	visited := make(map[graph.ParticipantHandle]bool, len(handles))
	var components [][]models.ParticipantID

	ordered := make([]graph.ParticipantHandle, 0, len(handles))
	for h := range handles {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	for _, start := range ordered {
		if visited[start] {
			continue
		}
		queue := []graph.ParticipantHandle{start}
		visited[start] = true
		var members []graph.ParticipantHandle

		for len(queue) > 0 {
			h := queue[0]
			queue = queue[1:]
			members = append(members, h)

			neighbors := append([]graph.ParticipantHandle(nil), d.g.SortedNeighbors(h)...)
			neighbors = append(neighbors, d.inboundNeighbors(h)...)
			for _, n := range neighbors {
				if !handles[n] || visited[n] {
					continue
				}
				visited[n] = true
				queue = append(queue, n)
			}
		}

		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		ids := make([]models.ParticipantID, len(members))
		for i, m := range members {
			ids[i] = d.g.Participant(m)
		}
		components = append(components, ids)
	}
	return components
}

func complexityFor(components [][]models.ParticipantID) ComplexityBucket {
	largest := 0
	for _, c := range components {
		if len(c) > largest {
			largest = len(c)
		}
	}
	switch {
	case largest <= 5:
		return ComplexityLow
	case largest <= 20:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}
