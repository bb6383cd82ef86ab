package collection

import (
	"context"
	"testing"

	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/pkg/models"
)

func TestExpand_ResolvesMembersExcludingSelfOwnedItems(t *testing.T) {
	oracle := collaborators.NewMemoryCollectionOracle(map[models.CollectionID][]models.ItemID{
		"coll1": {"n1", "n2", "n3"},
	})
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "bob",
		"n2": "alice", // alice already owns n2, must be excluded from her own expansion
		"n3": "carol",
	})
	rejections := collaborators.NewMemoryRejectionStore(nil)

	e := New(oracle, ownership, rejections, nil, Config{MaxCollectionSize: 100, MaxTotalExpansionPerReq: 100})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "coll1"}})

	if result.BudgetExceeded {
		t.Fatal("budget should not be exceeded")
	}
	items := map[models.ItemID]bool{}
	for _, p := range result.Pairs {
		items[p.Item] = true
	}
	if items["n2"] {
		t.Error("alice must not be offered an item she already owns")
	}
	if !items["n1"] || !items["n3"] {
		t.Errorf("expected n1 and n3 in expansion, got %v", items)
	}
}

func TestExpand_HonorsRejections(t *testing.T) {
	oracle := collaborators.NewMemoryCollectionOracle(map[models.CollectionID][]models.ItemID{
		"coll1": {"n1", "n2"},
	})
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "bob",
		"n2": "carol",
	})
	rejections := collaborators.NewMemoryRejectionStore([]models.RejectionSet{
		{Participant: "alice", RejectedItems: []models.ItemID{"n1"}},
	})

	e := New(oracle, ownership, rejections, nil, Config{MaxCollectionSize: 100, MaxTotalExpansionPerReq: 100})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "coll1"}})

	for _, p := range result.Pairs {
		if p.Item == "n1" {
			t.Error("rejected item n1 must not appear in the expansion")
		}
	}
}

func TestExpand_OversizedCollectionFallsBackToSampling(t *testing.T) {
	members := make([]models.ItemID, 0, 20)
	owners := make(map[models.ItemID]models.ParticipantID, 20)
	for i := 0; i < 20; i++ {
		item := models.ItemID(string(rune('a' + i)))
		members = append(members, item)
		owners[item] = "bob"
	}
	oracle := collaborators.NewMemoryCollectionOracle(map[models.CollectionID][]models.ItemID{"coll1": members})
	ownership := collaborators.NewMemoryOwnershipOracle(owners)
	rejections := collaborators.NewMemoryRejectionStore(nil)

	e := New(oracle, ownership, rejections, nil, Config{
		MaxCollectionSize:  10,
		FallbackToSampling: true,
		MaxTotalExpansionPerReq: 1000,
	})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "coll1"}})
	if len(result.Pairs) == 0 || len(result.Pairs) > 10 {
		t.Errorf("expected a sampled subset of at most MaxCollectionSize, got %d pairs", len(result.Pairs))
	}
}

func TestExpand_OversizedCollectionWithoutSamplingYieldsNothing(t *testing.T) {
	members := []models.ItemID{"n1", "n2", "n3"}
	oracle := collaborators.NewMemoryCollectionOracle(map[models.CollectionID][]models.ItemID{"coll1": members})
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "bob", "n2": "bob", "n3": "bob",
	})
	rejections := collaborators.NewMemoryRejectionStore(nil)

	e := New(oracle, ownership, rejections, nil, Config{MaxCollectionSize: 1, FallbackToSampling: false, MaxTotalExpansionPerReq: 1000})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "coll1"}})
	if len(result.Pairs) != 0 {
		t.Errorf("expected no expansion when sampling is disabled and collection exceeds the cap, got %d", len(result.Pairs))
	}
}

func TestExpand_UnavailableCollectionIsReported(t *testing.T) {
	oracle := collaborators.NewMemoryCollectionOracle(nil)
	ownership := collaborators.NewMemoryOwnershipOracle(nil)
	rejections := collaborators.NewMemoryRejectionStore(nil)

	e := New(oracle, ownership, rejections, nil, Config{MaxCollectionSize: 100, MaxTotalExpansionPerReq: 100})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "ghost"}})

	if len(result.Unavailable) != 1 || result.Unavailable[0] != "ghost" {
		t.Errorf("expected ghost reported as unavailable, got %v", result.Unavailable)
	}
}

func TestExpand_BudgetExceededStopsFurtherPairs(t *testing.T) {
	oracle := collaborators.NewMemoryCollectionOracle(map[models.CollectionID][]models.ItemID{
		"coll1": {"n1", "n2", "n3"},
	})
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "bob", "n2": "carol", "n3": "dave",
	})
	rejections := collaborators.NewMemoryRejectionStore(nil)

	e := New(oracle, ownership, rejections, nil, Config{MaxCollectionSize: 100, MaxTotalExpansionPerReq: 1})
	result := e.Expand(context.Background(), []Want{{Participant: "alice", Collection: "coll1"}})

	if !result.BudgetExceeded {
		t.Error("expected the expansion budget to be reported as exceeded")
	}
	if len(result.Pairs) > 1 {
		t.Errorf("expected at most 1 pair once the budget of 1 was hit, got %d", len(result.Pairs))
	}
}

func TestSampleSize_CapsAtMaxCollectionSize(t *testing.T) {
	if got := sampleSize(100, 5); got > 5 {
		t.Errorf("sampleSize must never exceed the max, got %d", got)
	}
	if got := sampleSize(20_000, 50); got > 50 {
		t.Errorf("sampleSize must cap large collections at the max, got %d", got)
	}
	if got := sampleSize(1, 50); got < 1 {
		t.Errorf("sampleSize must never return less than 1, got %d", got)
	}
}
