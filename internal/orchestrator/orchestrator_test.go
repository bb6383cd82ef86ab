package orchestrator

import (
	"context"
	"testing"

	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/pkg/models"
)

func threeCycleWallets() []models.Wallet {
	return []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}, WantedItems: []models.ItemID{"n3"}},
		{ID: "bob", OwnedItems: []models.ItemID{"n2"}, WantedItems: []models.ItemID{"n1"}},
		{ID: "carol", OwnedItems: []models.ItemID{"n3"}, WantedItems: []models.ItemID{"n2"}},
	}
}

func newTestEngine(owners map[models.ItemID]models.ParticipantID, store CycleStore) *Engine {
	ownership := collaborators.NewMemoryOwnershipOracle(owners)
	settings := models.DefaultSettings()
	settings.CacheTTLMs = 60_000
	return New(ownership, nil, nil, nil, store, settings)
}

func TestDiscoverTrades_ThreeCycle(t *testing.T) {
	owners := map[models.ItemID]models.ParticipantID{"n1": "alice", "n2": "bob", "n3": "carol"}
	e := newTestEngine(owners, nil)

	result, err := e.DiscoverTrades(context.Background(), threeCycleWallets(), nil)
	if err != nil {
		t.Fatalf("DiscoverTrades returned error: %v", err)
	}
	if len(result.Cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d: %+v", len(result.Cycles), result.Cycles)
	}
	want := "canonical_alice,bob,carol|n1,n2,n3"
	if result.Cycles[0].CanonicalID != want {
		t.Errorf("canonical id = %q, want %q", result.Cycles[0].CanonicalID, want)
	}
	if result.Cycles[0].QualityScore != 1.0 {
		t.Errorf("quality_score = %v, want 1.0 (no pricing collaborator configured)", result.Cycles[0].QualityScore)
	}
	if result.Metadata.SCCsProcessed != 1 {
		t.Errorf("sccs_processed = %d, want 1", result.Metadata.SCCsProcessed)
	}
}

func TestDiscoverTrades_CacheHitOnSecondCall(t *testing.T) {
	owners := map[models.ItemID]models.ParticipantID{"n1": "alice", "n2": "bob", "n3": "carol"}
	e := newTestEngine(owners, nil)
	wallets := threeCycleWallets()

	if _, err := e.DiscoverTrades(context.Background(), wallets, nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := e.DiscoverTrades(context.Background(), wallets, nil); err != nil {
		t.Fatalf("second call: %v", err)
	}

	m := e.Metrics()
	if m.CacheHits != 1 {
		t.Errorf("cache_hits = %d, want 1", m.CacheHits)
	}
	if m.CacheMisses != 1 {
		t.Errorf("cache_misses = %d, want 1", m.CacheMisses)
	}
	if m.DiscoveryCalls != 2 {
		t.Errorf("discovery_calls = %d, want 2", m.DiscoveryCalls)
	}
}

func TestDiscoverTrades_InvalidWalletReturnsError(t *testing.T) {
	owners := map[models.ItemID]models.ParticipantID{"n1": "alice"}
	e := newTestEngine(owners, nil)

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
		{ID: "bob", WantedItems: []models.ItemID{"n1"}, OwnedItems: []models.ItemID{"n1"}},
	}
	_, err := e.DiscoverTrades(context.Background(), wallets, nil)
	if err == nil {
		t.Fatal("expected an error for a wallet wanting an item it also owns")
	}
}

func TestApplyMutation_OwnershipTransferredFindsNewCycle(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "alice", "n2": "bob", "n3": "dave",
	})
	settings := models.DefaultSettings()
	settings.CacheTTLMs = 60_000
	e := New(ownership, nil, nil, nil, nil, settings)

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}, WantedItems: []models.ItemID{"n3"}},
		{ID: "bob", OwnedItems: []models.ItemID{"n2"}, WantedItems: []models.ItemID{"n1"}},
		{ID: "carol", OwnedItems: []models.ItemID{"n3"}, WantedItems: []models.ItemID{"n2"}},
	}

	// n3 is actually owned by dave until the mutation below lands, so the
	// 3-cycle can't close until ownership is transferred to carol first.
	ownership.Transfer("n3", "carol")

	mutation := models.Mutation{
		Type: models.MutationOwnershipTransferred,
		Payload: models.MutationPayload{
			Item:       "n3",
			PriorOwner: "dave",
			Owner:      "carol",
		},
	}

	result, err := e.ApplyMutation(context.Background(), mutation, wallets, nil)
	if err != nil {
		t.Fatalf("ApplyMutation returned error: %v", err)
	}
	found := false
	for _, c := range result.Cycles {
		if c.CanonicalID == "canonical_alice,bob,carol|n1,n2,n3" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the 3-cycle to be found after ownership transfer, got %+v", result.Cycles)
	}
}

func TestConfigure_HotReloadsMaxDepth(t *testing.T) {
	e := newTestEngine(nil, nil)
	before := e.Settings().MaxDepth

	updated := e.Configure(models.Settings{MaxDepth: 2})
	if updated.MaxDepth != 2 {
		t.Fatalf("Configure did not apply MaxDepth override, got %d", updated.MaxDepth)
	}
	if e.Settings().MaxDepth == before {
		t.Fatalf("engine settings were not updated after Configure")
	}

	// Other fields must be left untouched by a partial update.
	if e.Settings().MaxCyclesPerGroup != models.DefaultSettings().MaxCyclesPerGroup {
		t.Errorf("Configure clobbered an unrelated field")
	}
}

func TestConfigure_MaxDepthGateIsImmediatelyVisible(t *testing.T) {
	owners := map[models.ItemID]models.ParticipantID{"n1": "alice", "n2": "bob", "n3": "carol"}
	e := newTestEngine(owners, nil)

	// max_depth=2 excludes the 3-cycle from threeCycleWallets.
	e.Configure(models.Settings{MaxDepth: 2})
	result, err := e.DiscoverTrades(context.Background(), threeCycleWallets(), nil)
	if err != nil {
		t.Fatalf("DiscoverTrades returned error: %v", err)
	}
	if len(result.Cycles) != 0 {
		t.Fatalf("expected 0 cycles after Configure(MaxDepth: 2), got %d", len(result.Cycles))
	}
}

// memoryStore is a minimal in-memory CycleStore for exercising the
// persistence merge path without standing up postgres.
type memoryStore struct {
	cycles []models.Cycle
}

func (s *memoryStore) SaveCycles(_ context.Context, cycles []models.Cycle) error {
	s.cycles = append(s.cycles, cycles...)
	return nil
}

func (s *memoryStore) Cycles(_ context.Context) ([]models.Cycle, error) {
	return s.cycles, nil
}

func TestDiscoverTrades_PersistsAndMergesCycles(t *testing.T) {
	owners := map[models.ItemID]models.ParticipantID{"n1": "alice", "n2": "bob", "n3": "carol"}
	store := &memoryStore{}
	e := newTestEngine(owners, store)

	if _, err := e.DiscoverTrades(context.Background(), threeCycleWallets(), nil); err != nil {
		t.Fatalf("DiscoverTrades returned error: %v", err)
	}
	if len(store.cycles) != 1 {
		t.Fatalf("expected 1 cycle persisted, got %d", len(store.cycles))
	}

	// A second, empty discovery (no wallets at all) should still return
	// the previously persisted cycle via the merge path.
	result, err := e.DiscoverTrades(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("second DiscoverTrades returned error: %v", err)
	}
	found := false
	for _, c := range result.Cycles {
		if c.CanonicalID == "canonical_alice,bob,carol|n1,n2,n3" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected persisted cycle to be merged into empty-wallet discovery result, got %+v", result.Cycles)
	}
}

func TestMetrics_StartsAtZero(t *testing.T) {
	e := newTestEngine(nil, nil)
	m := e.Metrics()
	if m.DiscoveryCalls != 0 || m.DeltaCalls != 0 || m.CyclesDiscovered != 0 {
		t.Fatalf("expected zeroed metrics on a fresh engine, got %+v", m)
	}
}
