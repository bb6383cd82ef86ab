// Package builder assembles a graph.Graph from a batch of wallet
// snapshots: it resolves the node set, adds direct want-edges, merges
// in collection-expanded want-edges, fingerprints the resulting input
// set, and caches the built graph under that fingerprint.
package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/internal/collection"
	"github.com/rawblock/barter-engine/internal/engine"
	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/internal/perf"
	"github.com/rawblock/barter-engine/pkg/models"
)

// Builder turns wallet snapshots into a cached graph.Graph.
type Builder struct {
	ownership  collaborators.OwnershipOracle
	collection *collection.Expander
	rejections collaborators.RejectionStore
	cache      *perf.TTLCache[*graph.Graph]
	cfg        models.Settings
}

// New creates a Builder. cache may be nil to disable build caching.
func New(ownership collaborators.OwnershipOracle, expander *collection.Expander, rejections collaborators.RejectionStore, cache *perf.TTLCache[*graph.Graph], cfg models.Settings) *Builder {
	return &Builder{ownership: ownership, collection: expander, rejections: rejections, cache: cache, cfg: cfg}
}

// Build assembles the graph for the given wallet batch. Returns
// engine.ErrInvalidInput if any wallet wants an item it already owns.
func (b *Builder) Build(ctx context.Context, wallets []models.Wallet) (*graph.Graph, error) {
	fp := Fingerprint(wallets)
	if b.cache != nil {
		if g, ok := b.cache.Get(fp); ok {
			return g, nil
		}
	}

	participants := make([]models.ParticipantID, 0, len(wallets))
	ownedByWallet := make(map[models.ParticipantID]map[models.ItemID]bool, len(wallets))
	var collectionWants []collection.Want

	for _, w := range wallets {
		participants = append(participants, w.ID)
		owned := make(map[models.ItemID]bool, len(w.OwnedItems))
		for _, item := range w.OwnedItems {
			owned[item] = true
		}
		ownedByWallet[w.ID] = owned
		for _, cid := range w.WantedCollections {
			collectionWants = append(collectionWants, collection.Want{Participant: w.ID, Collection: cid})
		}
	}

	g := graph.New(participants)

	for _, w := range wallets {
		owned := ownedByWallet[w.ID]
		for _, item := range w.WantedItems {
			if owned[item] {
				return nil, fmt.Errorf("%w: participant %s wants item %s it already owns", engine.ErrInvalidInput, w.ID, item)
			}
			owner, ok := b.ownership.Owner(item)
			if !ok || owner == w.ID {
				continue
			}
			if b.rejected(w.ID, item, owner) {
				continue
			}
			g.AddEdge(owner, w.ID, graph.EdgeData{Item: item})
		}
	}

	if b.cfg.EnableCollectionExpansion && len(collectionWants) > 0 && b.collection != nil {
		b.mergeCollectionWants(ctx, g, collectionWants)
	}

	g.Finalize(fp)

	if b.cache != nil {
		b.cache.Set(fp, g)
	}
	return g, nil
}

func (b *Builder) mergeCollectionWants(ctx context.Context, g *graph.Graph, wants []collection.Want) {
	result := b.collection.Expand(ctx, wants)
	for _, pair := range result.Pairs {
		owner, ok := b.ownership.Owner(pair.Item)
		if !ok {
			continue
		}
		g.AddEdge(owner, pair.Wanter, graph.EdgeData{
			Item:                pair.Item,
			IsCollectionDerived: true,
			SourceCollection:    pair.Provenance.SourceCollection,
			Provenance:          &pair.Provenance,
		})
	}
}

func (b *Builder) rejected(wanter models.ParticipantID, item models.ItemID, owner models.ParticipantID) bool {
	if b.rejections == nil {
		return false
	}
	items, participants := b.rejections.Rejections(wanter)
	return items[item] || participants[owner]
}

// TwoHopReachable returns a ReachabilityFunc over an already-built graph,
// used to bias collection sampling toward participants within two hops
// of the wanter on the specific-wants graph.
func TwoHopReachable(g *graph.Graph) collection.ReachabilityFunc {
	return func(p models.ParticipantID) map[models.ParticipantID]bool {
		h, ok := g.Handle(p)
		if !ok {
			return nil
		}
		out := make(map[models.ParticipantID]bool)
		for _, h1 := range g.SortedNeighbors(h) {
			out[g.Participant(h1)] = true
			for _, h2 := range g.SortedNeighbors(h1) {
				out[g.Participant(h2)] = true
			}
		}
		return out
	}
}

// Fingerprint computes a deterministic content hash over the sorted
// wallet batch, used both as the build cache key and to detect whether
// a cached graph must be invalidated.
func Fingerprint(wallets []models.Wallet) string {
	sorted := append([]models.Wallet(nil), wallets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, w := range sorted {
		owned := append([]models.ItemID(nil), w.OwnedItems...)
		sort.Slice(owned, func(i, j int) bool { return owned[i] < owned[j] })
		wanted := append([]models.ItemID(nil), w.WantedItems...)
		sort.Slice(wanted, func(i, j int) bool { return wanted[i] < wanted[j] })
		collections := append([]models.CollectionID(nil), w.WantedCollections...)
		sort.Slice(collections, func(i, j int) bool { return collections[i] < collections[j] })

		fmt.Fprintf(h, "w:%s|o:%s|i:%s|c:%s;",
			w.ID,
			joinItems(owned),
			joinItems(wanted),
			joinCollections(collections),
		)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

func joinItems(items []models.ItemID) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ",")
}

func joinCollections(ids []models.CollectionID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
