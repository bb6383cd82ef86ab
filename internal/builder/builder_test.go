package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/internal/engine"
	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/internal/perf"
	"github.com/rawblock/barter-engine/pkg/models"
)

func TestBuild_ResolvesEdgesFromOwnershipOracle(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "alice",
	})
	b := New(ownership, nil, nil, nil, models.DefaultSettings())

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
		{ID: "bob", WantedItems: []models.ItemID{"n1"}},
	}

	g, err := b.Build(context.Background(), wallets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	owner, ok := g.Owner("n1")
	if !ok || owner != "alice" {
		t.Errorf("expected n1 owned by alice, got %v (ok=%v)", owner, ok)
	}
	if !g.Wanters("n1")["bob"] {
		t.Error("expected bob to be a wanter of n1")
	}
}

func TestBuild_RejectsWalletWantingOwnItem(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(nil)
	b := New(ownership, nil, nil, nil, models.DefaultSettings())

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}, WantedItems: []models.ItemID{"n1"}},
	}

	_, err := b.Build(context.Background(), wallets)
	if !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuild_SkipsEdgesForItemsOfUnknownOwner(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(nil)
	b := New(ownership, nil, nil, nil, models.DefaultSettings())

	wallets := []models.Wallet{
		{ID: "alice", WantedItems: []models.ItemID{"ghost"}},
	}

	g, err := b.Build(context.Background(), wallets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Stats().Edges != 0 {
		t.Errorf("expected no edges for an item with no known owner, got %d", g.Stats().Edges)
	}
}

func TestBuild_HonorsRejectionStore(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "alice",
	})
	rejections := collaborators.NewMemoryRejectionStore([]models.RejectionSet{
		{Participant: "bob", RejectedItems: []models.ItemID{"n1"}},
	})
	b := New(ownership, nil, rejections, nil, models.DefaultSettings())

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
		{ID: "bob", WantedItems: []models.ItemID{"n1"}},
	}

	g, err := b.Build(context.Background(), wallets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Stats().Edges != 0 {
		t.Errorf("expected the rejected item to produce no edge, got %d edges", g.Stats().Edges)
	}
}

func TestBuild_CachesByFingerprint(t *testing.T) {
	ownership := collaborators.NewMemoryOwnershipOracle(map[models.ItemID]models.ParticipantID{
		"n1": "alice",
	})
	cache := perf.NewTTLCache[*graph.Graph](10, time.Minute)
	b := New(ownership, nil, nil, cache, models.DefaultSettings())

	wallets := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
		{ID: "bob", WantedItems: []models.ItemID{"n1"}},
	}

	first, err := b.Build(context.Background(), wallets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected the build to populate the cache, got %d entries", cache.Len())
	}

	second, err := b.Build(context.Background(), wallets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the second build with identical wallets to return the cached graph pointer")
	}
}

func TestFingerprint_StableUnderWalletOrder(t *testing.T) {
	a := []models.Wallet{
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
		{ID: "bob", WantedItems: []models.ItemID{"n1"}},
	}
	b := []models.Wallet{
		{ID: "bob", WantedItems: []models.ItemID{"n1"}},
		{ID: "alice", OwnedItems: []models.ItemID{"n1"}},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fingerprint must be stable regardless of wallet order")
	}
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	a := []models.Wallet{{ID: "alice", OwnedItems: []models.ItemID{"n1"}}}
	b := []models.Wallet{{ID: "alice", OwnedItems: []models.ItemID{"n2"}}}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("fingerprint must change when owned items differ")
	}
}
