// Package scc finds the strongly connected components of a built graph
// using Tarjan's algorithm, started from a caller-supplied set of node
// handles. The traversal follows every out-edge of the graph, so it is
// not confined to that set.
package scc

import (
	"sort"

	"github.com/rawblock/barter-engine/internal/graph"
)

// Component is one strongly connected component: every member can reach
// every other member via want-edges. Singletons with no self-loop are
// never returned, since a trade cycle needs at least two participants.
type Component struct {
	Members []graph.ParticipantHandle
}

type nodeState struct {
	index, low int
	onStack    bool
}

// Finder runs Tarjan's algorithm over a graph.Graph.
type Finder struct {
	g *graph.Graph
}

// New creates a Finder bound to g.
func New(g *graph.Graph) *Finder {
	return &Finder{g: g}
}

// Find returns every strongly connected component with 2 or more members
// reachable from the given node handles (members outside the given set
// are included), visited and reported in deterministic order (by each
// component's lowest-handle member).
func (f *Finder) Find(nodes []graph.ParticipantHandle) []Component {
	s := &tarjan{
		g:     f.g,
		state: make(map[graph.ParticipantHandle]*nodeState),
	}

	sorted := append([]graph.ParticipantHandle(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, n := range sorted {
		if s.state[n] == nil {
			s.strongConnect(n)
		}
	}

	var out []Component
	for _, members := range s.components {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, Component{Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}

type tarjan struct {
	g          *graph.Graph
	index      int
	stack      []graph.ParticipantHandle
	state      map[graph.ParticipantHandle]*nodeState
	components [][]graph.ParticipantHandle
}

func (s *tarjan) strongConnect(v graph.ParticipantHandle) *nodeState {
	st := &nodeState{index: s.index, low: s.index, onStack: true}
	s.state[v] = st
	s.index++
	offset := len(s.stack)
	s.stack = append(s.stack, v)

	for _, w := range s.g.SortedNeighbors(v) {
		ws := s.state[w]
		if ws == nil {
			ws = s.strongConnect(w)
			if ws.low < st.low {
				st.low = ws.low
			}
			continue
		}
		if ws.onStack && ws.index < st.low {
			st.low = ws.index
		}
	}

	if st.low == st.index {
		members := append([]graph.ParticipantHandle(nil), s.stack[offset:]...)
		s.stack = s.stack[:offset]
		for _, n := range members {
			s.state[n].onStack = false
		}
		s.components = append(s.components, members)
	}
	return st
}
