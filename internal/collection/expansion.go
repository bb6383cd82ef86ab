// Package collection turns "wallet W wants any item from collection C"
// wants into concrete (W wants item) edges with provenance, including
// the sampling policy applied to oversized collections.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/internal/engine"
	"github.com/rawblock/barter-engine/pkg/models"
)

// Config mirrors the collection-expansion knobs of models.Settings.
type Config struct {
	MaxCollectionSize       int
	FallbackToSampling      bool
	SamplingStrategy        string
	MaxTotalExpansionPerReq int
	Concurrency             int
}

// Want is one (participant, collection) want to expand.
type Want struct {
	Participant models.ParticipantID
	Collection  models.CollectionID
}

// Pair is one expanded concrete want, with provenance.
type Pair struct {
	Wanter     models.ParticipantID
	Item       models.ItemID
	Provenance models.EdgeProvenance
}

// Result is the outcome of one Expand call.
type Result struct {
	Pairs          []Pair
	BudgetExceeded bool  // ErrExpansionBudgetExceeded hit; partial result used
	Unavailable    []models.CollectionID // collections whose oracle call failed
}

// ReachabilityFunc reports the set of participants reachable from p
// within two hops on the specific-wants graph built so far — used to
// bias sampling toward "nearby" owners.
type ReachabilityFunc func(p models.ParticipantID) map[models.ParticipantID]bool

// Expander runs the expansion policy against a CollectionOracle.
type Expander struct {
	oracle      collaborators.CollectionOracle
	ownership   collaborators.OwnershipOracle
	rejections  collaborators.RejectionStore
	reachable   ReachabilityFunc
	cfg         Config
}

// New creates an Expander.
func New(oracle collaborators.CollectionOracle, ownership collaborators.OwnershipOracle, rejections collaborators.RejectionStore, reachable ReachabilityFunc, cfg Config) *Expander {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Expander{oracle: oracle, ownership: ownership, rejections: rejections, reachable: reachable, cfg: cfg}
}

// Expand materializes concrete wants for every (participant, collection)
// pair, honoring the global expansion budget across the whole batch.
func (e *Expander) Expand(ctx context.Context, wants []Want) Result {
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var mu sync.Mutex
	var result Result
	var total int
	budgetExceeded := false

	var wg sync.WaitGroup
	for _, w := range wants {
		mu.Lock()
		stop := budgetExceeded
		mu.Unlock()
		if stop {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(w Want) {
			defer wg.Done()
			defer sem.Release(1)

			pairs, err := e.expandOne(ctx, w)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, engine.ErrCollectionUnavailable) {
					log.Printf("[CollectionExpansion] collection %s unavailable for %s: %v", w.Collection, w.Participant, err)
					result.Unavailable = append(result.Unavailable, w.Collection)
				}
				return
			}
			for _, p := range pairs {
				if total >= e.cfg.MaxTotalExpansionPerReq {
					budgetExceeded = true
					return
				}
				result.Pairs = append(result.Pairs, p)
				total++
			}
		}(w)
	}
	wg.Wait()

	result.BudgetExceeded = budgetExceeded
	if budgetExceeded {
		log.Printf("[CollectionExpansion] expansion budget of %d reached; using partial expansion", e.cfg.MaxTotalExpansionPerReq)
	}
	sort.Slice(result.Pairs, func(i, j int) bool {
		if result.Pairs[i].Wanter != result.Pairs[j].Wanter {
			return result.Pairs[i].Wanter < result.Pairs[j].Wanter
		}
		return result.Pairs[i].Item < result.Pairs[j].Item
	})
	return result
}

func (e *Expander) expandOne(ctx context.Context, w Want) ([]Pair, error) {
	size, err := e.oracle.Size(ctx, w.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCollectionUnavailable, err)
	}

	rejectedItems, rejectedParticipants := e.rejections.Rejections(w.Participant)

	limit := 0 // 0 means "no limit" to the oracle — materialize everything
	if size > e.cfg.MaxCollectionSize {
		if !e.cfg.FallbackToSampling {
			return nil, nil
		}
		limit = sampleSize(size, e.cfg.MaxCollectionSize)
	}

	page, err := e.oracle.Members(ctx, w.Collection, limit, e.samplingStrategyFor(w.Participant))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCollectionUnavailable, err)
	}

	pairs := make([]Pair, 0, len(page.Items))
	for _, item := range page.Items {
		owner, ok := e.ownership.Owner(item)
		if !ok || owner == w.Participant {
			continue
		}
		if rejectedItems[item] || rejectedParticipants[owner] {
			continue
		}
		pairs = append(pairs, Pair{
			Wanter: w.Participant,
			Item:   item,
			Provenance: models.EdgeProvenance{
				SourceCollection: w.Collection,
				ExpandedFrom:     w.Participant,
			},
		})
	}
	return pairs, nil
}

// samplingStrategyFor reports the bias to request from the oracle: prefer
// owners within 2 hops of the wanter, falling back to plain recency bias.
func (e *Expander) samplingStrategyFor(p models.ParticipantID) string {
	if e.reachable != nil && len(e.reachable(p)) > 0 {
		return "proximity+recency"
	}
	return "recency"
}

// sampleSize picks how many members to pull from an oversized
// collection: for |C| > 10000, floor(log10(|C|) * 100); otherwise
// floor(0.1 * |C|). The result is capped at maxCollectionSize.
func sampleSize(collectionSize, maxCollectionSize int) int {
	var n float64
	if collectionSize > 10_000 {
		n = math.Floor(math.Log10(float64(collectionSize)) * 100)
	} else {
		n = math.Floor(0.1 * float64(collectionSize))
	}
	size := int(n)
	if size > maxCollectionSize {
		size = maxCollectionSize
	}
	if size < 1 {
		size = 1
	}
	return size
}
