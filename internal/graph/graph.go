// Package graph implements the directed "wants-what-you-own" graph of
// owner -> wanter edges keyed by item.
//
// Participants are represented as integer handles into an arena rather
// than as pointers, so the graph can be copied/cached cheaply and never
// needs a GC-visible cycle between node and edge structures.
package graph

import (
	"sort"

	"github.com/rawblock/barter-engine/pkg/models"
)

// ParticipantHandle is an arena index for a participant.
type ParticipantHandle int

// EdgeData is the annotation carried by one want-edge. Graphs may carry
// several EdgeData values between the same (owner, wanter) pair — one
// per distinct item — which is what lets the enumerator emit a cycle
// for each distinct item exchanged along the same participant loop.
type EdgeData struct {
	Item                models.ItemID
	IsCollectionDerived bool
	SourceCollection    models.CollectionID
	Weight              float64
	Provenance          *models.EdgeProvenance
}

// Stats summarizes a built graph for logging/metrics.
type Stats struct {
	Participants int
	Edges        int
	Items        int
	Collections  int
}

// Graph is an immutable, built snapshot of the wants-what-you-own graph.
// All methods are read-only; construction is exclusive to
// internal/builder.Builder.
type Graph struct {
	participants []models.ParticipantID
	handle       map[models.ParticipantID]ParticipantHandle

	// adjacency[from][to] holds every edge from `from` to `to`, one per
	// distinct item. The maps themselves are unordered; sortedTo carries
	// the participant-id order used for deterministic DFS iteration.
	adjacency []map[ParticipantHandle][]EdgeData
	sortedTo  [][]ParticipantHandle // adjacency[h] neighbor handles, sorted by participant id

	owner   map[models.ItemID]models.ParticipantID
	wanters map[models.ItemID]map[models.ParticipantID]bool

	hasCollectionSupport bool
	fingerprint          string
}

// New builds an empty graph with the given node set. Exported so
// internal/builder can assemble it; not meant for direct external use.
func New(participants []models.ParticipantID) *Graph {
	g := &Graph{
		handle:  make(map[models.ParticipantID]ParticipantHandle, len(participants)),
		owner:   make(map[models.ItemID]models.ParticipantID),
		wanters: make(map[models.ItemID]map[models.ParticipantID]bool),
	}
	sorted := append([]models.ParticipantID(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	g.participants = sorted
	g.adjacency = make([]map[ParticipantHandle][]EdgeData, len(sorted))
	g.sortedTo = make([][]ParticipantHandle, len(sorted))
	for i, p := range sorted {
		g.handle[p] = ParticipantHandle(i)
		g.adjacency[i] = make(map[ParticipantHandle][]EdgeData)
	}
	return g
}

// AddEdge inserts one want-edge. Builder-only. An edge whose endpoint is
// not in the node set is silently ignored, and so is a self-edge.
func (g *Graph) AddEdge(owner, wanter models.ParticipantID, data EdgeData) {
	if owner == wanter {
		return
	}
	fh, ok := g.handle[owner]
	if !ok {
		return
	}
	th, ok := g.handle[wanter]
	if !ok {
		return
	}
	g.adjacency[fh][th] = append(g.adjacency[fh][th], data)
	g.owner[data.Item] = owner
	if g.wanters[data.Item] == nil {
		g.wanters[data.Item] = make(map[models.ParticipantID]bool)
	}
	g.wanters[data.Item][wanter] = true
	if data.IsCollectionDerived {
		g.hasCollectionSupport = true
	}
}

// Finalize sorts adjacency for deterministic iteration and records the
// content fingerprint computed by the builder. Builder-only.
func (g *Graph) Finalize(fingerprint string) {
	g.fingerprint = fingerprint
	for h, neighbors := range g.adjacency {
		to := make([]ParticipantHandle, 0, len(neighbors))
		for n := range neighbors {
			to = append(to, n)
		}
		sort.Slice(to, func(i, j int) bool {
			return g.participants[to[i]] < g.participants[to[j]]
		})
		g.sortedTo[h] = to
	}
}

// Fingerprint returns the content fingerprint this graph was built from.
func (g *Graph) Fingerprint() string { return g.fingerprint }

// Handle resolves a participant id to its arena handle.
func (g *Graph) Handle(p models.ParticipantID) (ParticipantHandle, bool) {
	h, ok := g.handle[p]
	return h, ok
}

// Participant resolves a handle back to its participant id.
func (g *Graph) Participant(h ParticipantHandle) models.ParticipantID {
	return g.participants[h]
}

// Nodes returns every participant id in the graph, sorted.
func (g *Graph) Nodes() []models.ParticipantID {
	return append([]models.ParticipantID(nil), g.participants...)
}

// NodeHandles returns every participant handle, in ascending participant
// id order, for deterministic DFS root selection.
func (g *Graph) NodeHandles() []ParticipantHandle {
	out := make([]ParticipantHandle, len(g.participants))
	for i := range out {
		out[i] = ParticipantHandle(i)
	}
	return out
}

// OutEdges returns every edge leaving `from`, keyed by destination. The
// map has no iteration order; sorted destinations are kept separately.
func (g *Graph) OutEdges(from ParticipantHandle) map[ParticipantHandle][]EdgeData {
	return g.adjacency[from]
}

// SortedNeighbors returns the destinations reachable directly from
// `from`, sorted by participant id.
func (g *Graph) SortedNeighbors(from ParticipantHandle) []ParticipantHandle {
	return g.sortedTo[from]
}

// Edge returns every parallel edge between `from` and `to`, if any.
func (g *Graph) Edge(from, to ParticipantHandle) ([]EdgeData, bool) {
	edges, ok := g.adjacency[from][to]
	return edges, ok
}

// Wanters returns every participant who wants `item`.
func (g *Graph) Wanters(item models.ItemID) map[models.ParticipantID]bool {
	return g.wanters[item]
}

// Owner returns the current owner of `item`, if known to this graph.
func (g *Graph) Owner(item models.ItemID) (models.ParticipantID, bool) {
	p, ok := g.owner[item]
	return p, ok
}

// HasCollectionSupport reports whether any edge in this graph was
// derived from a collection want rather than a specific want.
func (g *Graph) HasCollectionSupport() bool { return g.hasCollectionSupport }

// Stats summarizes the graph's size.
func (g *Graph) Stats() Stats {
	edges := 0
	collections := make(map[models.CollectionID]bool)
	for _, neighbors := range g.adjacency {
		for _, edgeList := range neighbors {
			edges += len(edgeList)
			for _, e := range edgeList {
				if e.SourceCollection != "" {
					collections[e.SourceCollection] = true
				}
			}
		}
	}
	return Stats{
		Participants: len(g.participants),
		Edges:        edges,
		Items:        len(g.owner),
		Collections:  len(collections),
	}
}
