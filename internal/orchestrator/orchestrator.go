// Package orchestrator is the engine's public entry point (spec §4.8):
// it wires the builder, SCC finder, community partitioner, enumerator
// and delta detector together, chooses the full-build or delta path,
// bounds the call by wall-clock budget, merges newly discovered cycles
// with persisted ones, and emits discovery/config events.
//
// Process-global state is limited to the caches and circuit-breaker
// registry that New constructs per Engine; everything else is explicit
// constructor wiring, per spec §9's "Singleton process-wide services"
// design note.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/barter-engine/internal/builder"
	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/internal/collection"
	"github.com/rawblock/barter-engine/internal/community"
	"github.com/rawblock/barter-engine/internal/delta"
	"github.com/rawblock/barter-engine/internal/engine"
	"github.com/rawblock/barter-engine/internal/enumerator"
	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/internal/perf"
	"github.com/rawblock/barter-engine/internal/scc"
	"github.com/rawblock/barter-engine/pkg/models"
)

// CycleStore is the optional persistence collaborator cycles are handed
// to once discovered (spec §3 "Lifecycle": "Cycles are ephemeral unless
// handed to the orchestrator's persistence interface").
type CycleStore interface {
	SaveCycles(ctx context.Context, cycles []models.Cycle) error
	Cycles(ctx context.Context) ([]models.Cycle, error)
}

// Engine is the barter discovery engine's public entry point.
type Engine struct {
	ownership  collaborators.OwnershipOracle
	collection collaborators.CollectionOracle
	pricing    collaborators.PricingOracle
	rejections collaborators.RejectionStore
	store      CycleStore

	settingsMu sync.RWMutex
	settings   models.Settings

	buildCache      *perf.TTLCache[*graph.Graph]
	communityCache  *perf.TTLCache[*community.Partition]
	resultCache     *perf.TTLCache[models.DiscoveryResult]
	breakers        *perf.Registry
	events          *engine.EventBus

	lastGraph     *graph.Graph
	lastPartition map[string]*community.Partition // keyed by SCC signature, for stability comparisons
	liveMu        sync.Mutex

	m metricsCounters
}

type metricsCounters struct {
	graphBuilds      int64
	cacheHits        int64
	cacheMisses      int64
	cyclesDiscovered int64
	discoveryCalls   int64
	deltaCalls       int64
	breakerTrips     int64
	totalProcessMs   int64
}

// New creates an Engine. store and pricing may be nil.
func New(
	ownership collaborators.OwnershipOracle,
	collectionOracle collaborators.CollectionOracle,
	pricing collaborators.PricingOracle,
	rejections collaborators.RejectionStore,
	store CycleStore,
	settings models.Settings,
) *Engine {
	return &Engine{
		ownership:      ownership,
		collection:     collectionOracle,
		pricing:        pricing,
		rejections:     rejections,
		store:          store,
		settings:       settings,
		buildCache:     perf.NewTTLCache[*graph.Graph](1000, time.Duration(settings.CacheTTLMs)*time.Millisecond),
		communityCache: perf.NewTTLCache[*community.Partition](1000, time.Duration(settings.CacheTTLMs)*time.Millisecond),
		resultCache:    perf.NewTTLCache[models.DiscoveryResult](1000, time.Duration(settings.CacheTTLMs)*time.Millisecond),
		breakers:       perf.NewRegistry(settings.CircuitBreakerThreshold, time.Duration(settings.CircuitBreakerTimeoutMs)*time.Millisecond),
		events:         engine.NewEventBus(),
		lastPartition:  make(map[string]*community.Partition),
	}
}

// Events exposes the observer registration surface (on_cycles_discovered,
// on_config_updated, on_memory_optimized).
func (e *Engine) Events() *engine.EventBus { return e.events }

// Settings returns the engine's current hot-reloadable settings.
func (e *Engine) Settings() models.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// Configure applies a partial settings update: any non-zero field in
// partial overrides the current value, everything else is left alone.
// This is the spec's "hot-reload bounded" configure() operation.
func (e *Engine) Configure(partial models.Settings) models.Settings {
	e.settingsMu.Lock()
	merged := mergeSettings(e.settings, partial)
	e.settings = merged
	e.settingsMu.Unlock()

	e.events.EmitConfigUpdated(merged)
	return merged
}

func mergeSettings(base, partial models.Settings) models.Settings {
	if partial.MaxDepth > 0 {
		base.MaxDepth = partial.MaxDepth
	}
	if partial.TimeoutMs > 0 {
		base.TimeoutMs = partial.TimeoutMs
	}
	if partial.MaxCyclesPerGroup > 0 {
		base.MaxCyclesPerGroup = partial.MaxCyclesPerGroup
	}
	if partial.MinEfficiency > 0 {
		base.MinEfficiency = partial.MinEfficiency
	}
	base.EnableCollectionExpansion = partial.EnableCollectionExpansion || base.EnableCollectionExpansion
	base.EnableCommunityPartition = partial.EnableCommunityPartition || base.EnableCommunityPartition
	if partial.MaxCollectionSize > 0 {
		base.MaxCollectionSize = partial.MaxCollectionSize
	}
	base.FallbackToSampling = partial.FallbackToSampling || base.FallbackToSampling
	if partial.MaxExpansionPerRequest > 0 {
		base.MaxExpansionPerRequest = partial.MaxExpansionPerRequest
	}
	if partial.MaxExpansionConcurrency > 0 {
		base.MaxExpansionConcurrency = partial.MaxExpansionConcurrency
	}
	if partial.CacheTTLMs > 0 {
		base.CacheTTLMs = partial.CacheTTLMs
	}
	if partial.CircuitBreakerThreshold > 0 {
		base.CircuitBreakerThreshold = partial.CircuitBreakerThreshold
	}
	if partial.CircuitBreakerTimeoutMs > 0 {
		base.CircuitBreakerTimeoutMs = partial.CircuitBreakerTimeoutMs
	}
	return base
}

// Metrics returns a snapshot of the engine's process-wide counters.
func (e *Engine) Metrics() models.MetricsSnapshot {
	calls := atomic.LoadInt64(&e.m.discoveryCalls) + atomic.LoadInt64(&e.m.deltaCalls)
	var avg float64
	if calls > 0 {
		avg = float64(atomic.LoadInt64(&e.m.totalProcessMs)) / float64(calls)
	}
	return models.MetricsSnapshot{
		GraphBuilds:         atomic.LoadInt64(&e.m.graphBuilds),
		CacheHits:           atomic.LoadInt64(&e.m.cacheHits),
		CacheMisses:         atomic.LoadInt64(&e.m.cacheMisses),
		CyclesDiscovered:    atomic.LoadInt64(&e.m.cyclesDiscovered),
		DiscoveryCalls:      atomic.LoadInt64(&e.m.discoveryCalls),
		DeltaCalls:          atomic.LoadInt64(&e.m.deltaCalls),
		BreakerTrips:        atomic.LoadInt64(&e.m.breakerTrips),
		AvgProcessingTimeMs: avg,
	}
}

// newBuilder constructs a fresh Builder wired to the engine's shared
// caches and collaborators, using the given settings snapshot. Builders
// are stateless wrappers — cheap to reconstruct per call — so a hot
// Configure() takes effect on the very next call.
func (e *Engine) newBuilder(settings models.Settings) *builder.Builder {
	var expander *collection.Expander
	if settings.EnableCollectionExpansion && e.collection != nil {
		expander = collection.New(e.collection, e.ownership, e.rejections, nil, collection.Config{
			MaxCollectionSize:       settings.MaxCollectionSize,
			FallbackToSampling:      settings.FallbackToSampling,
			SamplingStrategy:        "proximity+recency",
			MaxTotalExpansionPerReq: settings.MaxExpansionPerRequest,
			Concurrency:             settings.MaxExpansionConcurrency,
		})
	}
	return builder.New(e.ownership, expander, e.rejections, e.buildCache, settings)
}

// DiscoverTrades is the full-build discovery path: spec.md §6
// `discover_trades`.
func (e *Engine) DiscoverTrades(ctx context.Context, wallets []models.Wallet, override *models.Settings) (models.DiscoveryResult, error) {
	settings := e.Settings()
	if override != nil {
		settings = mergeSettings(settings, *override)
	}

	breaker := e.breakers.Get("discover")
	if err := breaker.Allow(); err != nil {
		return models.DiscoveryResult{Metadata: models.DiscoveryMetadata{FailureClasses: []string{"CircuitOpen"}}}, err
	}

	start := time.Now()
	atomic.AddInt64(&e.m.discoveryCalls, 1)

	fp := builder.Fingerprint(wallets)
	cacheKey := fmt.Sprintf("%s:%d:%d:%.3f", fp, settings.MaxDepth, settings.MaxCyclesPerGroup, settings.MinEfficiency)
	if cached, ok := e.resultCache.Get(cacheKey); ok {
		atomic.AddInt64(&e.m.cacheHits, 1)
		breaker.RecordSuccess()
		return cached, nil
	}
	atomic.AddInt64(&e.m.cacheMisses, 1)

	b := e.newBuilder(settings)
	g, err := b.Build(ctx, wallets)
	if err != nil {
		breaker.RecordFailure()
		if breaker.State() == perf.StateOpen {
			atomic.AddInt64(&e.m.breakerTrips, 1)
		}
		return models.DiscoveryResult{Metadata: models.DiscoveryMetadata{FailureClasses: []string{"InvalidInput"}}}, err
	}
	atomic.AddInt64(&e.m.graphBuilds, 1)

	e.liveMu.Lock()
	e.lastGraph = g
	e.liveMu.Unlock()

	result := e.enumerateGraph(ctx, g, g.NodeHandles(), settings, start)
	result = e.mergeWithPersisted(ctx, result)

	e.resultCache.Set(cacheKey, result)
	atomic.AddInt64(&e.m.cyclesDiscovered, int64(len(result.Cycles)))
	atomic.AddInt64(&e.m.totalProcessMs, result.Metadata.ProcessingTimeMs)
	breaker.RecordSuccess()
	e.events.EmitCyclesDiscovered(result)
	e.persistCycles(ctx, result.Cycles)
	return result, nil
}

// ApplyMutation is the delta path: spec.md §6 `apply_mutation`. It
// restricts re-enumeration to the mutation's affected sub-graph (§4.7)
// instead of rebuilding and re-scanning the whole graph.
func (e *Engine) ApplyMutation(ctx context.Context, mutation models.Mutation, wallets []models.Wallet, override *models.Settings) (models.DiscoveryResult, error) {
	settings := e.Settings()
	if override != nil {
		settings = mergeSettings(settings, *override)
	}

	start := time.Now()
	atomic.AddInt64(&e.m.deltaCalls, 1)

	b := e.newBuilder(settings)
	g, err := b.Build(ctx, wallets)
	if err != nil {
		log.Printf("[Orchestrator] mutation %s build failed: %v", mutation.Type, err)
		return models.DiscoveryResult{Metadata: models.DiscoveryMetadata{FailureClasses: []string{"InvalidInput"}}}, err
	}
	atomic.AddInt64(&e.m.graphBuilds, 1)

	e.liveMu.Lock()
	e.lastGraph = g
	e.liveMu.Unlock()

	index := e.cycleIndex(ctx)
	detector := delta.New(g, index)
	descriptor := detector.Describe(mutation)

	restricted := make([]graph.ParticipantHandle, 0, len(descriptor.Participants))
	for _, p := range descriptor.Participants {
		if h, ok := g.Handle(p); ok {
			restricted = append(restricted, h)
		}
	}

	result := e.enumerateGraph(ctx, g, restricted, settings, start)
	result = e.mergeWithPersisted(ctx, result)

	atomic.AddInt64(&e.m.cyclesDiscovered, int64(len(result.Cycles)))
	atomic.AddInt64(&e.m.totalProcessMs, result.Metadata.ProcessingTimeMs)
	e.events.EmitCyclesDiscovered(result)
	e.persistCycles(ctx, result.Cycles)
	return result, nil
}

// enumerateGraph runs SCC discovery (optionally community-bounded) and
// the canonical enumerator over the given node subset, merging and
// truncating the results per spec §4.8.
func (e *Engine) enumerateGraph(ctx context.Context, g *graph.Graph, nodes []graph.ParticipantHandle, settings models.Settings, start time.Time) models.DiscoveryResult {
	deadline := start.Add(time.Duration(settings.TimeoutMs) * time.Millisecond)
	deadlineFn := func() bool { return time.Now().After(deadline) }

	finder := scc.New(g)
	components := finder.Find(nodes)

	groups := make([][]graph.ParticipantHandle, 0, len(components))
	for _, comp := range components {
		if settings.EnableCommunityPartition && community.ShouldPartition(len(comp.Members), edgeCount(g, comp.Members)) {
			partition := e.partitionFor(g, comp.Members)
			for _, members := range partition.Communities() {
				if len(members) >= 2 {
					groups = append(groups, members)
				}
			}
			continue
		}
		groups = append(groups, comp.Members)
	}

	var (
		mu           sync.Mutex
		allCycles    []models.Cycle
		eliminated   int
		timedOut     bool
		failureClass = map[string]bool{}
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(engine.WorkerCount(len(nodes)))
	for _, members := range groups {
		members := members
		eg.Go(func() error {
			if deadlineFn() {
				mu.Lock()
				timedOut = true
				mu.Unlock()
				return nil
			}
			en := enumerator.New(g, enumerator.Config{
				MaxDepth:          settings.MaxDepth,
				MaxCyclesPerGroup: settings.MaxCyclesPerGroup,
			}, deadlineFn)
			res := en.Enumerate(egCtx, members)

			mu.Lock()
			defer mu.Unlock()
			allCycles = append(allCycles, res.Cycles...)
			eliminated += res.PermutationsEliminated
			if res.TimedOut {
				timedOut = true
			}
			return nil
		})
	}
	// allSettled semantics: per-group failures never abort siblings, so
	// Wait's error is only ever nil here; per-group timeouts surface as
	// metadata instead.
	_ = eg.Wait()

	for i := range allCycles {
		allCycles[i].QualityScore = e.fairnessAdjust(allCycles[i])
		allCycles[i].CreatedAt = time.Now()
	}

	// min_efficiency gates quality_score, not the raw 1/k efficiency:
	// every cycle has k >= 2, so 1/k is at most 0.5, which would fall
	// below the documented min_efficiency default of 0.6 and drop every
	// multi-party cycle the spec's own scenarios require. quality_score
	// starts at 1.0 and only moves within the fairness tolerance band, so
	// gating on it is the one reading under which default settings still
	// return the 2-cycle and 3-cycle boundary cases.
	allCycles = filterByQuality(allCycles, settings.MinEfficiency)

	deduped := dedupeByCanonicalID(allCycles)
	sortCycles(deduped)
	if settings.MaxCyclesPerGroup > 0 && len(deduped) > settings.MaxCyclesPerGroup {
		deduped = deduped[:settings.MaxCyclesPerGroup]
	}

	if timedOut {
		failureClass["Timeout"] = true
	}
	classes := make([]string, 0, len(failureClass))
	for c := range failureClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	return models.DiscoveryResult{
		Cycles: deduped,
		Metadata: models.DiscoveryMetadata{
			CyclesDiscovered:       len(allCycles),
			CanonicalReturned:      len(deduped),
			PermutationsEliminated: eliminated,
			SCCsProcessed:          len(components),
			ProcessingTimeMs:       time.Since(start).Milliseconds(),
			TimedOut:               timedOut,
			FailureClasses:         classes,
		},
	}
}

// partitionFor runs (or reuses the cached) Louvain partition for one
// component, logging its stability against the prior partition for the
// same component signature when a fingerprint change forced a rebuild.
func (e *Engine) partitionFor(g *graph.Graph, members []graph.ParticipantHandle) *community.Partition {
	sig := componentSignature(g, members)
	cacheKey := g.Fingerprint() + ":" + sig
	if cached, ok := e.communityCache.Get(cacheKey); ok {
		return cached
	}

	partitioner := community.New(community.Config{})
	partition := partitioner.Partition(g, members)

	e.liveMu.Lock()
	if prev, ok := e.lastPartition[sig]; ok {
		stability := partition.StabilityAgainst(prev)
		log.Printf("[CommunityPartitioner] component %s restability ARI=%.3f VI=%.3f", sig, stability.AdjustedRandIndex, stability.VariationOfInformation)
	}
	e.lastPartition[sig] = partition
	e.liveMu.Unlock()

	e.communityCache.Set(cacheKey, partition)
	return partition
}

func componentSignature(g *graph.Graph, members []graph.ParticipantHandle) string {
	if len(members) == 0 {
		return ""
	}
	return fmt.Sprintf("%d-%d", members[0], len(members))
}

func edgeCount(g *graph.Graph, members []graph.ParticipantHandle) int {
	allowed := make(map[graph.ParticipantHandle]bool, len(members))
	for _, m := range members {
		allowed[m] = true
	}
	n := 0
	for _, m := range members {
		for to, edges := range g.OutEdges(m) {
			if allowed[to] {
				n += len(edges)
			}
		}
	}
	return n
}

// fairnessAdjust applies the optional pricing/fairness collaborator
// multiplier to a cycle's quality score, clamped to the documented ±10%
// tolerance. Without a configured pricing oracle, quality_score stays
// at its enumerator default of 1.0.
func (e *Engine) fairnessAdjust(c models.Cycle) float64 {
	if e.pricing == nil {
		return c.QualityScore
	}
	var total float64
	var n int
	for _, item := range c.Items {
		if price, ok := e.pricing.Price(item); ok {
			total += price
			n++
		}
	}
	if n == 0 {
		return c.QualityScore
	}
	avg := total / float64(n)
	// Normalize around 1.0: an average-priced cycle gets no adjustment;
	// richer/poorer item mixes nudge the score within the tolerance band.
	multiplier := 1.0
	if avg > 0 {
		multiplier = 1.0 + clamp((avg-1.0)/(avg+1.0), -0.1, 0.1)
	}
	return c.QualityScore * clamp(multiplier, 0.9, 1.1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// filterByQuality drops cycles whose final quality_score falls below
// min. A zero/negative min (unset) is treated as no filter.
func filterByQuality(cycles []models.Cycle, min float64) []models.Cycle {
	if min <= 0 {
		return cycles
	}
	out := make([]models.Cycle, 0, len(cycles))
	for _, c := range cycles {
		if c.QualityScore >= min {
			out = append(out, c)
		}
	}
	return out
}

func dedupeByCanonicalID(cycles []models.Cycle) []models.Cycle {
	seen := make(map[string]bool, len(cycles))
	out := make([]models.Cycle, 0, len(cycles))
	for _, c := range cycles {
		if seen[c.CanonicalID] {
			continue
		}
		seen[c.CanonicalID] = true
		out = append(out, c)
	}
	return out
}

// sortCycles orders by quality_score descending, then shorter k, then
// canonical id ascending, per spec §4.8's truncation tie-break.
func sortCycles(cycles []models.Cycle) {
	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].QualityScore != cycles[j].QualityScore {
			return cycles[i].QualityScore > cycles[j].QualityScore
		}
		if len(cycles[i].Participants) != len(cycles[j].Participants) {
			return len(cycles[i].Participants) < len(cycles[j].Participants)
		}
		return cycles[i].CanonicalID < cycles[j].CanonicalID
	})
}

// mergeWithPersisted folds every previously persisted cycle that is not
// already in the discovery result into the returned set, so a caller
// sees the union of both. Persisted cycles are not checked against the
// current participants.
func (e *Engine) mergeWithPersisted(ctx context.Context, result models.DiscoveryResult) models.DiscoveryResult {
	if e.store == nil {
		return result
	}
	persisted, err := e.store.Cycles(ctx)
	if err != nil {
		log.Printf("[Orchestrator] failed to load persisted cycles: %v", err)
		return result
	}
	seen := make(map[string]bool, len(result.Cycles))
	for _, c := range result.Cycles {
		seen[c.CanonicalID] = true
	}
	for _, c := range persisted {
		if !seen[c.CanonicalID] {
			seen[c.CanonicalID] = true
			result.Cycles = append(result.Cycles, c)
		}
	}
	sortCycles(result.Cycles)
	result.Metadata.CanonicalReturned = len(result.Cycles)
	return result
}

func (e *Engine) persistCycles(ctx context.Context, cycles []models.Cycle) {
	if e.store == nil || len(cycles) == 0 {
		return
	}
	if err := e.store.SaveCycles(ctx, cycles); err != nil {
		log.Printf("[Orchestrator] failed to persist %d cycles: %v", len(cycles), err)
	}
}

// cycleIndex adapts the persisted cycles of the store into a
// delta.CycleIndex for the item-removed rule.
func (e *Engine) cycleIndex(ctx context.Context) delta.CycleIndex {
	var all []models.Cycle
	if e.store != nil {
		if persisted, err := e.store.Cycles(ctx); err == nil {
			all = persisted
		}
	}
	return memoryCycleIndex(all)
}

type memoryCycleIndex []models.Cycle

func (idx memoryCycleIndex) ParticipantsInCyclesContaining(item models.ItemID) []models.ParticipantID {
	seen := map[models.ParticipantID]bool{}
	var out []models.ParticipantID
	for _, c := range idx {
		has := false
		for _, it := range c.Items {
			if it == item {
				has = true
				break
			}
		}
		if !has {
			continue
		}
		for _, p := range c.Participants {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
