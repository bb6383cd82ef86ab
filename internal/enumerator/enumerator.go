// Package enumerator finds canonical trade cycles within a strongly
// connected component: simple directed cycles of want-edges that pass
// through the component's smallest participant, each reported exactly
// once regardless of which participant a naive search would have
// started from.
package enumerator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/pkg/models"
)

// Config controls one enumeration run. There is deliberately no
// efficiency/quality filter here: the enumerator is a pure function of
// the graph, with no collaborator reference, so min_efficiency filtering
// (applied by the orchestrator against the fairness-adjusted
// quality_score, not the raw 1/k efficiency) happens one layer up in
// internal/orchestrator, after fairnessAdjust.
type Config struct {
	MaxDepth          int
	MaxCyclesPerGroup int
}

// Result is the outcome of enumerating one component.
type Result struct {
	Cycles                 []models.Cycle
	PermutationsEliminated int
	TimedOut               bool
}

// DeadlineFunc reports whether the enumeration's time budget has been
// exhausted; checked between DFS steps so a pathological component
// can't run past the caller's timeout.
type DeadlineFunc func() bool

// Enumerator finds canonical cycles within one component of a graph.
type Enumerator struct {
	g        *graph.Graph
	cfg      Config
	deadline DeadlineFunc
}

// New creates an Enumerator bound to g.
func New(g *graph.Graph, cfg Config, deadline DeadlineFunc) *Enumerator {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	if cfg.MaxCyclesPerGroup <= 0 {
		cfg.MaxCyclesPerGroup = 100
	}
	if deadline == nil {
		deadline = func() bool { return false }
	}
	return &Enumerator{g: g, cfg: cfg, deadline: deadline}
}

// edgeStep is one edge traversed during DFS: the participant it departs
// from, the participant it arrives at, and the specific parallel item
// chosen, so distinct items between the same pair of participants
// produce distinct cycles.
type edgeStep struct {
	from graph.ParticipantHandle
	to   graph.ParticipantHandle
	data graph.EdgeData
}

// Enumerate walks the simple cycles within the given component that pass
// through the component's lexicographically smallest participant, the
// only DFS root. A cycle through that root contains it exactly once (a
// simple cycle can't revisit a node), so each such cycle's participant
// rotation is reported exactly once. Cycles of the component that do not
// include the root are not reported.
func (en *Enumerator) Enumerate(ctx context.Context, members []graph.ParticipantHandle) Result {
	if len(members) < 2 {
		return Result{}
	}
	inComponent := make(map[graph.ParticipantHandle]bool, len(members))
	for _, m := range members {
		inComponent[m] = true
	}
	root := members[0]
	for _, m := range members[1:] {
		if m < root {
			root = m
		}
	}

	d := &dfsState{
		en:            en,
		inComponent:   inComponent,
		onStack:       make(map[graph.ParticipantHandle]bool),
		seenKeys:      make(map[string]bool),
		seenCanonical: make(map[string]bool),
	}
	d.visit(ctx, root, root, nil)

	sort.Slice(d.found, func(i, j int) bool { return d.found[i].CanonicalID < d.found[j].CanonicalID })
	if len(d.found) > en.cfg.MaxCyclesPerGroup {
		d.found = d.found[:en.cfg.MaxCyclesPerGroup]
	}
	return Result{Cycles: d.found, PermutationsEliminated: d.eliminated, TimedOut: d.timedOut}
}

type dfsState struct {
	en            *Enumerator
	inComponent   map[graph.ParticipantHandle]bool
	onStack       map[graph.ParticipantHandle]bool
	seenKeys      map[string]bool
	seenCanonical map[string]bool
	found         []models.Cycle
	eliminated    int
	timedOut      bool
}

func (d *dfsState) visit(ctx context.Context, root, current graph.ParticipantHandle, path []edgeStep) {
	if d.timedOut || len(d.found) >= d.en.cfg.MaxCyclesPerGroup*4 {
		return
	}
	if d.en.deadline() {
		d.timedOut = true
		return
	}
	select {
	case <-ctx.Done():
		d.timedOut = true
		return
	default:
	}
	if len(path) >= d.en.cfg.MaxDepth {
		return
	}

	d.onStack[current] = true
	defer func() { d.onStack[current] = false }()

	for _, next := range d.en.g.SortedNeighbors(current) {
		if !d.inComponent[next] {
			continue
		}
		edges, _ := d.en.g.Edge(current, next)
		for _, e := range edges {
			step := edgeStep{from: current, to: next, data: e}
			if next == root {
				d.closeCycle(append(append([]edgeStep(nil), path...), step))
				continue
			}
			if d.onStack[next] {
				continue // would revisit a non-root node: not a simple cycle
			}
			d.visit(ctx, root, next, append(append([]edgeStep(nil), path...), step))
		}
	}
}

func (d *dfsState) closeCycle(path []edgeStep) {
	if len(path) < 2 {
		return
	}
	key := canonicalKey(path)
	if d.seenKeys[key] {
		d.eliminated++
		return
	}
	d.seenKeys[key] = true

	cycle := buildCycle(d.en.g, path)
	if d.seenCanonical[cycle.CanonicalID] {
		d.eliminated++
		return
	}
	d.seenCanonical[cycle.CanonicalID] = true
	d.found = append(d.found, cycle)
}

// canonicalKey identifies a cycle independent of which participant or
// edge happened to be the DFS root: it's the step sequence starting at
// the lexicographically smallest (from, to, item) step, read forward.
// Used only to dedupe within one DFS run; the wire-level canonical id
// (spec §3/§6) is computed separately in buildCycle from sorted
// participant and item ids, which is what actually makes the id
// rotation- and reversal-invariant.
func canonicalKey(path []edgeStep) string {
	minIdx := 0
	for i := 1; i < len(path); i++ {
		if stepLess(path[i], path[minIdx]) {
			minIdx = i
		}
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		idx := (minIdx + i) % len(path)
		fmt.Fprintf(&sb, "%d>%d:%s|", path[idx].from, path[idx].to, path[idx].data.Item)
	}
	return sb.String()
}

// canonicalOrderingKey is the spec's internal ordering key: rotate the
// participant ids so the lexicographically smallest is first, then keep
// whichever of that rotation or its reverse sorts smaller as a string.
func canonicalOrderingKey(participants []models.ParticipantID) string {
	minIdx := 0
	for i, p := range participants {
		if p < participants[minIdx] {
			minIdx = i
		}
	}
	n := len(participants)
	rotated := make([]string, n)
	for i := 0; i < n; i++ {
		rotated[i] = string(participants[(minIdx+i)%n])
	}
	forward := strings.Join(rotated, "|")

	reversed := make([]string, n)
	for i := 0; i < n; i++ {
		reversed[i] = rotated[n-1-i]
	}
	backward := strings.Join(reversed, "|")

	if backward < forward {
		return backward
	}
	return forward
}

func stepLess(a, b edgeStep) bool {
	if a.from != b.from {
		return a.from < b.from
	}
	if a.to != b.to {
		return a.to < b.to
	}
	return a.data.Item < b.data.Item
}

func buildCycle(g *graph.Graph, path []edgeStep) models.Cycle {
	steps := make([]models.CycleStep, len(path))
	participants := make([]models.ParticipantID, len(path))
	items := make([]models.ItemID, len(path))

	for i, step := range path {
		steps[i] = models.CycleStep{
			From:                g.Participant(step.from),
			To:                  g.Participant(step.to),
			Item:                step.data.Item,
			IsCollectionDerived: step.data.IsCollectionDerived,
			SourceCollection:    step.data.SourceCollection,
		}
		participants[i] = g.Participant(step.from)
		items[i] = step.data.Item
	}

	return models.Cycle{
		CanonicalID:  canonicalID(participants, items),
		CanonicalKey: canonicalOrderingKey(participants),
		Participants: participants,
		Items:        items,
		Steps:        steps,
		Efficiency:   1.0 / float64(len(path)),
		QualityScore: 1.0,
		Status:       "pending",
	}
}

// canonicalID is the spec §3/§6 wire identifier: rotation- and
// reversal-invariant because it sorts both lists outright, rather than
// picking a canonical rotation.
func canonicalID(participants []models.ParticipantID, items []models.ItemID) string {
	p := append([]models.ParticipantID(nil), participants...)
	sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
	it := append([]models.ItemID(nil), items...)
	sort.Slice(it, func(i, j int) bool { return it[i] < it[j] })

	pStrs := make([]string, len(p))
	for i, x := range p {
		pStrs[i] = string(x)
	}
	itStrs := make([]string, len(it))
	for i, x := range it {
		itStrs[i] = string(x)
	}
	return "canonical_" + strings.Join(pStrs, ",") + "|" + strings.Join(itStrs, ",")
}
