package scc

import (
	"testing"

	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/pkg/models"
)

func buildGraph(participants []models.ParticipantID, edges [][3]string) *graph.Graph {
	g := graph.New(participants)
	for _, e := range edges {
		g.AddEdge(models.ParticipantID(e[0]), models.ParticipantID(e[1]), graph.EdgeData{Item: models.ItemID(e[2])})
	}
	g.Finalize("test")
	return g
}

func TestFind_ThreeCycleIsOneComponent(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob", "carol"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	comps := New(g).Find(g.NodeHandles())
	if len(comps) != 1 || len(comps[0].Members) != 3 {
		t.Fatalf("expected one 3-member component, got %+v", comps)
	}
}

func TestFind_SingletonsWithoutSelfLoopAreExcluded(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob"}, [][3]string{
		{"alice", "bob", "n1"},
	})

	comps := New(g).Find(g.NodeHandles())
	if len(comps) != 0 {
		t.Fatalf("expected no components for a one-directional edge, got %+v", comps)
	}
}

func TestFind_TwoDisjointCycles(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"A", "B", "C", "D"}, [][3]string{
		{"A", "B", "n1"},
		{"B", "A", "n2"},
		{"C", "D", "n3"},
		{"D", "C", "n4"},
	})

	comps := New(g).Find(g.NodeHandles())
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d: %+v", len(comps), comps)
	}
	if len(comps[0].Members) != 2 || len(comps[1].Members) != 2 {
		t.Errorf("expected 2-member components, got %+v", comps)
	}
}

func TestFind_OrderedByLowestHandleMember(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"A", "B", "C", "D"}, [][3]string{
		{"C", "D", "n1"},
		{"D", "C", "n2"},
		{"A", "B", "n3"},
		{"B", "A", "n4"},
	})

	comps := New(g).Find(g.NodeHandles())
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d", len(comps))
	}
	if comps[0].Members[0] >= comps[1].Members[0] {
		t.Errorf("components must be ordered by their lowest member handle, got %+v", comps)
	}
}

func TestFind_RestrictedToSubsetStillFindsFullCycle(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob", "carol"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	alice, _ := g.Handle("alice")
	comps := New(g).Find([]graph.ParticipantHandle{alice})
	if len(comps) != 1 || len(comps[0].Members) != 3 {
		t.Fatalf("expected the full 3-cycle reachable from a single seed, got %+v", comps)
	}
}
