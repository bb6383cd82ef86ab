package delta

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

func contains(ids []models.ParticipantID, want models.ParticipantID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestDescribe_OwnershipTransferredSeedsOwnerPriorOwnerAndWanters(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob", "carol", "dave"}, [][3]string{
		{"alice", "bob", "n1"},
		{"bob", "carol", "n2"},
		{"carol", "alice", "n3"},
	})

	d := New(g, nil)
	desc := d.Describe(models.Mutation{
		Type: models.MutationOwnershipTransferred,
		Payload: models.MutationPayload{
			Item:       "n3",
			Owner:      "carol",
			PriorOwner: "dave",
		},
	})

	for _, want := range []models.ParticipantID{"carol", "dave", "alice"} {
		if !contains(desc.Participants, want) {
			t.Errorf("expected %s in affected participants, got %v", want, desc.Participants)
		}
	}
}

func TestDescribe_ItemAddedSeedsOwnerAndWanters(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob"}, nil)
	d := New(g, nil)

	desc := d.Describe(models.Mutation{
		Type:    models.MutationItemAdded,
		Payload: models.MutationPayload{Item: "n1", Owner: "alice"},
	})

	if !contains(desc.Participants, "alice") {
		t.Errorf("expected owner alice in affected set, got %v", desc.Participants)
	}
}

type fakeCycleIndex struct {
	participants []models.ParticipantID
}

func (f fakeCycleIndex) ParticipantsInCyclesContaining(models.ItemID) []models.ParticipantID {
	return f.participants
}

func TestDescribe_ItemRemovedConsultsCycleIndex(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob", "carol"}, nil)
	idx := fakeCycleIndex{participants: []models.ParticipantID{"carol"}}
	d := New(g, idx)

	desc := d.Describe(models.Mutation{
		Type:    models.MutationItemRemoved,
		Payload: models.MutationPayload{Item: "n1"},
	})

	if !contains(desc.Participants, "carol") {
		t.Errorf("expected carol (from the cycle index) in affected set, got %v", desc.Participants)
	}
}

func TestDescribe_ComponentsAreWeaklyConnected(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice", "bob", "carol", "dave"}, [][3]string{
		{"alice", "bob", "n1"},
		{"carol", "dave", "n2"},
	})

	d := New(g, nil)
	desc := d.Describe(models.Mutation{
		Type:    models.MutationWantAdded,
		Payload: models.MutationPayload{Item: "n1", Wanter: "bob"},
	})

	for _, comp := range desc.Components {
		if contains(comp, "carol") || contains(comp, "dave") {
			t.Errorf("carol/dave are weakly disconnected from bob's component, got %v", desc.Components)
		}
	}
}

func TestComplexityFor_Buckets(t *testing.T) {
	low := complexityFor([][]models.ParticipantID{{"a", "b"}})
	if low != ComplexityLow {
		t.Errorf("expected low complexity for a 2-member component, got %s", low)
	}

	ten := make([]models.ParticipantID, 10)
	medium := complexityFor([][]models.ParticipantID{ten})
	if medium != ComplexityMedium {
		t.Errorf("expected medium complexity for a 10-member component, got %s", medium)
	}

	thirty := make([]models.ParticipantID, 30)
	high := complexityFor([][]models.ParticipantID{thirty})
	if high != ComplexityHigh {
		t.Errorf("expected high complexity for a 30-member component, got %s", high)
	}
}

func TestDescribe_UnknownMutationTypeYieldsEmptyDescriptor(t *testing.T) {
	g := buildGraph([]models.ParticipantID{"alice"}, nil)
	d := New(g, nil)
	desc := d.Describe(models.Mutation{Type: "unknown"})
	if len(desc.Participants) != 0 {
		t.Errorf("expected no affected participants for an unrecognized mutation type, got %v", desc.Participants)
	}
}
