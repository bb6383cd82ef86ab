// Package community partitions a graph into communities before cycle
// enumeration, so the expensive SCC/DFS passes run over smaller,
// independent node sets instead of one global graph. It implements the
// Louvain modularity-optimization heuristic over an undirected
// projection of the want-edge graph, then folds any resulting
// community smaller than the minimum useful size back into its best
// neighbor using weighted union-find.
package community

import (
	"log"
	"sort"

	"github.com/rawblock/barter-engine/internal/graph"
)

// Config controls partitioning.
type Config struct {
	MinCommunitySize int // communities smaller than this get merged into a neighbor
	MaxPasses        int // Louvain local-move passes before stopping
}

// Partition assigns every node handle in the graph to a community id.
type Partition struct {
	communityOf map[graph.ParticipantHandle]int
	members     map[int][]graph.ParticipantHandle
}

// CommunityOf returns the community id assigned to h.
func (p *Partition) CommunityOf(h graph.ParticipantHandle) int { return p.communityOf[h] }

// Communities returns every community's member handles, ordered by
// community id, each sorted ascending.
func (p *Partition) Communities() [][]graph.ParticipantHandle {
	ids := make([]int, 0, len(p.members))
	for id := range p.members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([][]graph.ParticipantHandle, len(ids))
	for i, id := range ids {
		out[i] = p.members[id]
	}
	return out
}

// Partitioner runs Louvain modularity optimization over a graph.
type Partitioner struct {
	cfg Config
}

// New creates a Partitioner.
func New(cfg Config) *Partitioner {
	if cfg.MinCommunitySize <= 0 {
		cfg.MinCommunitySize = 3
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 10
	}
	return &Partitioner{cfg: cfg}
}

// ShouldPartition reports whether a group is large enough to be worth
// community-partitioning before enumeration, per the default threshold
// (node count > 50 or edge count > 500). Below the threshold the
// orchestrator enumerates the group directly.
func ShouldPartition(nodeCount, edgeCount int) bool {
	return nodeCount > 50 || edgeCount > 500
}

// Partition runs Louvain over the undirected projection of g restricted
// to the given node handles. Graphs of 5 or fewer nodes are returned as
// a single community without running Louvain, per spec. If the Louvain
// pass panics on pathological input, it recovers and falls back to one
// community containing everything, logging the event.
func (pt *Partitioner) Partition(g *graph.Graph, nodes []graph.ParticipantHandle) (result *Partition) {
	if len(nodes) <= 5 {
		return singleCommunity(nodes)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CommunityPartitioner] Louvain pass failed (%v); falling back to one community", r)
			result = singleCommunity(nodes)
		}
	}()

	return pt.partitionLouvain(g, nodes)
}

func (pt *Partitioner) partitionLouvain(g *graph.Graph, nodes []graph.ParticipantHandle) *Partition {
	weight, total := projectUndirected(g, nodes)

	community := make(map[graph.ParticipantHandle]int, len(nodes))
	degree := make(map[graph.ParticipantHandle]float64, len(nodes))
	for i, n := range nodes {
		community[n] = i
		for _, w := range weight[n] {
			degree[n] += w
		}
	}

	if total > 0 {
		for pass := 0; pass < pt.cfg.MaxPasses; pass++ {
			moved := pt.localMovePass(nodes, weight, degree, community, total)
			if !moved {
				break
			}
		}
	}

	p := &Partition{communityOf: community, members: make(map[int][]graph.ParticipantHandle)}
	for _, n := range nodes {
		c := community[n]
		p.members[c] = append(p.members[c], n)
	}
	for c := range p.members {
		sort.Slice(p.members[c], func(i, j int) bool { return p.members[c][i] < p.members[c][j] })
	}

	mergeSmallCommunities(p, weight, pt.cfg.MinCommunitySize)
	return p
}

// localMovePass performs one sweep of Louvain's local-moving phase:
// each node considers moving to the community of each of its neighbors
// and takes the move with the largest modularity gain, if positive.
func (pt *Partitioner) localMovePass(nodes []graph.ParticipantHandle, weight map[graph.ParticipantHandle]map[graph.ParticipantHandle]float64, degree map[graph.ParticipantHandle]float64, community map[graph.ParticipantHandle]int, total float64) bool {
	moved := false
	commWeight := make(map[int]float64)
	for n, c := range community {
		commWeight[c] += degree[n]
	}

	for _, n := range nodes {
		currentComm := community[n]
		neighborWeight := make(map[int]float64)
		for nb, w := range weight[n] {
			neighborWeight[community[nb]] += w
		}

		commWeight[currentComm] -= degree[n]

		bestComm := currentComm
		bestGain := 0.0
		for c, wIn := range neighborWeight {
			gain := wIn - degree[n]*commWeight[c]/(2*total)
			if c == currentComm {
				continue
			}
			if gain > bestGain {
				bestGain = gain
				bestComm = c
			}
		}

		commWeight[bestComm] += degree[n]
		if bestComm != currentComm {
			community[n] = bestComm
			moved = true
		}
	}
	return moved
}

// projectUndirected folds a->b and b->a want-edges between the same
// pair into one undirected weight, restricted to the given node set.
func projectUndirected(g *graph.Graph, nodes []graph.ParticipantHandle) (map[graph.ParticipantHandle]map[graph.ParticipantHandle]float64, float64) {
	allowed := make(map[graph.ParticipantHandle]bool, len(nodes))
	for _, n := range nodes {
		allowed[n] = true
	}

	weight := make(map[graph.ParticipantHandle]map[graph.ParticipantHandle]float64, len(nodes))
	for _, n := range nodes {
		weight[n] = make(map[graph.ParticipantHandle]float64)
	}

	var total float64
	for _, n := range nodes {
		for to, edges := range g.OutEdges(n) {
			if !allowed[to] {
				continue
			}
			w := float64(len(edges))
			weight[n][to] += w
			weight[to][n] += w
			total += w
		}
	}
	return weight, total
}

// mergeSmallCommunities folds any community below minSize into the
// neighboring community it shares the most edge weight with, using
// weighted union-find so large merge chains stay cheap.
func mergeSmallCommunities(p *Partition, weight map[graph.ParticipantHandle]map[graph.ParticipantHandle]float64, minSize int) {
	uf := newUnionFind()
	for c := range p.members {
		uf.add(c)
	}

	changed := true
	for changed {
		changed = false
		for c, members := range currentGroups(p, uf) {
			if len(members) >= minSize {
				continue
			}
			best, bestWeight := -1, 0.0
			for _, n := range members {
				for nb, w := range weight[n] {
					nc := uf.find(p.communityOf[nb])
					if nc == c {
						continue
					}
					if w > bestWeight {
						bestWeight = w
						best = nc
					}
				}
			}
			if best >= 0 {
				uf.union(c, best)
				changed = true
			}
		}
	}

	newMembers := make(map[int][]graph.ParticipantHandle)
	for n, c := range p.communityOf {
		root := uf.find(c)
		p.communityOf[n] = root
		newMembers[root] = append(newMembers[root], n)
	}
	for c := range newMembers {
		sort.Slice(newMembers[c], func(i, j int) bool { return newMembers[c][i] < newMembers[c][j] })
	}
	p.members = newMembers
}

func currentGroups(p *Partition, uf *unionFind) map[int][]graph.ParticipantHandle {
	groups := make(map[int][]graph.ParticipantHandle)
	for n, c := range p.communityOf {
		root := uf.find(c)
		groups[root] = append(groups[root], n)
	}
	return groups
}

// unionFind is a weighted union-find over community ids, used only for
// the small-community merge pass.
type unionFind struct {
	parent map[int]int
	rank   map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int), rank: make(map[int]int)}
}

func (u *unionFind) add(id int) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id int) int {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		return id
	}
	if u.parent[id] != id {
		u.parent[id] = u.find(u.parent[id])
	}
	return u.parent[id]
}

func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	if u.rank[ra] < u.rank[rb] {
		u.parent[ra] = rb
	} else if u.rank[ra] > u.rank[rb] {
		u.parent[rb] = ra
	} else {
		u.parent[rb] = ra
		u.rank[ra]++
	}
	return true
}

// singleCommunity assigns every node to community 0: used for small
// graphs (≤5 nodes) and as the failure-fallback partition.
func singleCommunity(nodes []graph.ParticipantHandle) *Partition {
	sorted := append([]graph.ParticipantHandle(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p := &Partition{communityOf: make(map[graph.ParticipantHandle]int, len(sorted)), members: map[int][]graph.ParticipantHandle{0: sorted}}
	for _, n := range sorted {
		p.communityOf[n] = 0
	}
	return p
}
