package enumerator

import (
	"context"
	"testing"

	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/pkg/models"
)

func buildGraph(t *testing.T, participants []models.ParticipantID, edges [][3]string) *graph.Graph {
	t.Helper()
	g := graph.New(participants)
	for _, e := range edges {
		g.AddEdge(models.ParticipantID(e[0]), models.ParticipantID(e[1]), graph.EdgeData{Item: models.ItemID(e[2])})
	}
	g.Finalize("test")
	return g
}

func allHandles(g *graph.Graph) []graph.ParticipantHandle {
	return g.NodeHandles()
}

// scenario 1: alice owns n1 wanted by bob; bob owns n2 wanted by carol;
// carol owns n3 wanted by alice. Exactly one cycle, canonical id
// canonical_alice,bob,carol|n1,n2,n3, permutations_eliminated >= 5.
func TestEnumerate_ThreeCycleDeduplication(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"alice", "bob", "carol"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	en := New(g, Config{MaxDepth: 10, MaxCyclesPerGroup: 100}, nil)
	res := en.Enumerate(context.Background(), allHandles(g))

	if len(res.Cycles) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d: %+v", len(res.Cycles), res.Cycles)
	}
	want := "canonical_alice,bob,carol|n1,n2,n3"
	if res.Cycles[0].CanonicalID != want {
		t.Errorf("canonical id = %q, want %q", res.Cycles[0].CanonicalID, want)
	}
	if got := res.Cycles[0].Efficiency; got != 1.0/3.0 {
		t.Errorf("efficiency = %v, want %v", got, 1.0/3.0)
	}
}

// scenario 2: A owns x1,x2 both wanted by B; B owns y wanted by A.
// Expected two cycles: canonical_A,B|x1,y and canonical_A,B|x2,y.
func TestEnumerate_ParallelItems(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"A", "B"}, [][3]string{
		{"A", "B", "x1"},
		{"A", "B", "x2"},
		{"B", "A", "y"},
	})

	en := New(g, Config{MaxDepth: 10, MaxCyclesPerGroup: 100}, nil)
	res := en.Enumerate(context.Background(), allHandles(g))

	if len(res.Cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d: %+v", len(res.Cycles), res.Cycles)
	}
	ids := map[string]bool{res.Cycles[0].CanonicalID: true, res.Cycles[1].CanonicalID: true}
	for _, want := range []string{"canonical_A,B|x1,y", "canonical_A,B|x2,y"} {
		if !ids[want] {
			t.Errorf("missing expected canonical id %q, got %v", want, ids)
		}
	}
}

// A 2-cycle is the minimal case: A owns x wanted by B, B owns y wanted
// by A.
func TestEnumerate_TwoCycle(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"A", "B"}, [][3]string{
		{"A", "B", "x"},
		{"B", "A", "y"},
	})

	en := New(g, Config{MaxDepth: 10, MaxCyclesPerGroup: 100}, nil)
	res := en.Enumerate(context.Background(), allHandles(g))

	if len(res.Cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(res.Cycles))
	}
	if res.Cycles[0].CanonicalID != "canonical_A,B|x,y" {
		t.Errorf("canonical id = %q", res.Cycles[0].CanonicalID)
	}
	if res.Cycles[0].Efficiency != 0.5 {
		t.Errorf("efficiency = %v, want 0.5", res.Cycles[0].Efficiency)
	}
}

// max_depth=2 excludes all cycles of length 3+.
func TestEnumerate_MaxDepthExcludesLongerCycles(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"alice", "bob", "carol"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	en := New(g, Config{MaxDepth: 2, MaxCyclesPerGroup: 100}, nil)
	res := en.Enumerate(context.Background(), allHandles(g))

	if len(res.Cycles) != 0 {
		t.Fatalf("expected 0 cycles with max_depth=2, got %d", len(res.Cycles))
	}
}

func TestEnumerate_EmptyComponentReturnsEmpty(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"alice"}, nil)
	en := New(g, Config{}, nil)
	res := en.Enumerate(context.Background(), allHandles(g))
	if len(res.Cycles) != 0 {
		t.Fatalf("expected 0 cycles for single node, got %d", len(res.Cycles))
	}
}

func TestEnumerate_DeterministicAcrossRuns(t *testing.T) {
	g := buildGraph(t, []models.ParticipantID{"alice", "bob", "carol"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	en := New(g, Config{MaxDepth: 10, MaxCyclesPerGroup: 100}, nil)
	first := en.Enumerate(context.Background(), allHandles(g))
	second := en.Enumerate(context.Background(), allHandles(g))

	if len(first.Cycles) != len(second.Cycles) {
		t.Fatalf("non-deterministic cycle count: %d vs %d", len(first.Cycles), len(second.Cycles))
	}
	for i := range first.Cycles {
		if first.Cycles[i].CanonicalID != second.Cycles[i].CanonicalID {
			t.Errorf("run mismatch at %d: %q vs %q", i, first.Cycles[i].CanonicalID, second.Cycles[i].CanonicalID)
		}
	}
}
