// Package models holds the wire-level data types for the barter discovery
// engine: wallets, items, collections, cycles, mutations and settings.
// These are the types that cross the engine's API boundary and get
// persisted or broadcast by the transport/persistence adapters.
package models

import "time"

// ParticipantID is an opaque wallet identifier.
type ParticipantID string

// ItemID is an opaque, globally-unique asset identifier.
type ItemID string

// CollectionID is an opaque named-set identifier.
type CollectionID string

// Wallet is a participant's declared holdings and wants.
type Wallet struct {
	ID                ParticipantID  `json:"id"`
	OwnedItems        []ItemID       `json:"ownedItems"`
	WantedItems       []ItemID       `json:"wantedItems"`
	WantedCollections []CollectionID `json:"wantedCollections"`
}

// Item is a tradable asset, optionally belonging to a collection.
type Item struct {
	ID           ItemID        `json:"id"`
	CollectionID *CollectionID `json:"collectionId,omitempty"`
	Owner        ParticipantID `json:"owner"`
}

// RejectionSet holds a participant's opaque blocklists.
type RejectionSet struct {
	Participant         ParticipantID   `json:"participant"`
	RejectedItems       []ItemID        `json:"rejectedItems"`
	RejectedParticipants []ParticipantID `json:"rejectedParticipants"`
}

// EdgeProvenance records why a want-edge exists when it was not a direct
// specific want.
type EdgeProvenance struct {
	SourceCollection CollectionID      `json:"sourceCollection,omitempty"`
	ExpandedFrom     ParticipantID     `json:"expandedFrom,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// WantEdge is the logical triple (wanter, item, owner), annotated with
// the data the graph stores alongside it.
type WantEdge struct {
	Owner             ParticipantID   `json:"owner"`
	Wanter            ParticipantID   `json:"wanter"`
	Item              ItemID          `json:"item"`
	IsCollectionDerived bool          `json:"isCollectionDerived"`
	Weight            float64         `json:"weight"`
	Provenance        *EdgeProvenance `json:"provenance,omitempty"`
}

// CycleStep is one hop of a discovered cycle: participant `from` forwards
// `item` (which they own) to participant `to` (who wants it).
type CycleStep struct {
	From                ParticipantID `json:"from"`
	To                  ParticipantID `json:"to"`
	Item                ItemID        `json:"item"`
	IsCollectionDerived bool          `json:"isCollectionDerived"`
	SourceCollection    CollectionID  `json:"sourceCollection,omitempty"`
}

// Cycle is one canonical trade loop.
type Cycle struct {
	CanonicalID  string          `json:"canonicalId"`
	CanonicalKey string          `json:"-"`
	Participants []ParticipantID `json:"participants"`
	Items        []ItemID        `json:"items"`
	Steps        []CycleStep     `json:"steps"`
	Efficiency   float64         `json:"efficiency"`
	QualityScore float64         `json:"qualityScore"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// MutationType enumerates the mutation kinds accepted by apply_mutation.
type MutationType string

const (
	MutationItemAdded           MutationType = "ItemAdded"
	MutationItemRemoved         MutationType = "ItemRemoved"
	MutationWantAdded           MutationType = "WantAdded"
	MutationWantRemoved         MutationType = "WantRemoved"
	MutationOwnershipTransferred MutationType = "OwnershipTransferred"
)

// MutationPayload carries the ids needed to run the delta-detection
// rules. Only the fields relevant to Type are populated; the rest are zero.
type MutationPayload struct {
	Item         ItemID       `json:"item,omitempty"`
	Owner        ParticipantID `json:"owner,omitempty"`
	PriorOwner   ParticipantID `json:"priorOwner,omitempty"`
	Wanter       ParticipantID `json:"wanter,omitempty"`
	CollectionID CollectionID `json:"collectionId,omitempty"`
}

// Mutation is a single live-graph event.
type Mutation struct {
	Type        MutationType    `json:"type"`
	TimestampMs int64           `json:"timestampMs"`
	Payload     MutationPayload `json:"payload"`
}

// DiscoveryMetadata accompanies every DiscoveryResult, even on partial
// failure, so callers can distinguish "no cycles" from "we timed out".
type DiscoveryMetadata struct {
	CyclesDiscovered       int      `json:"cyclesDiscovered"`
	CanonicalReturned      int      `json:"canonicalReturned"`
	PermutationsEliminated int      `json:"permutationsEliminated"`
	SCCsProcessed          int      `json:"sccsProcessed"`
	ProcessingTimeMs       int64    `json:"processingTimeMs"`
	TimedOut               bool     `json:"timedOut"`
	FailureClasses         []string `json:"failureClasses,omitempty"`
}

// DiscoveryResult is the output of discover_trades / apply_mutation.
type DiscoveryResult struct {
	Cycles   []Cycle           `json:"cycles"`
	Metadata DiscoveryMetadata `json:"metadata"`
}

// Settings holds the recognized, hot-reloadable engine options.
type Settings struct {
	MaxDepth                 int     `json:"maxDepth"`
	TimeoutMs                int64   `json:"timeoutMs"`
	MaxCyclesPerGroup        int     `json:"maxCyclesPerGroup"`
	// MinEfficiency gates a cycle's final quality_score (after any
	// fairness-collaborator adjustment), not its raw 1/k efficiency:
	// every cycle has k>=2, so 1/k tops out at 0.5, below the documented
	// 0.6 default, and would drop every multi-party cycle if compared
	// directly.
	MinEfficiency float64 `json:"minEfficiency"`
	EnableCollectionExpansion bool   `json:"enableCollectionExpansion"`
	EnableCommunityPartition bool    `json:"enableCommunityPartition"`
	MaxCollectionSize        int     `json:"maxCollectionSize"`
	FallbackToSampling       bool    `json:"fallbackToSampling"`
	MaxExpansionPerRequest   int     `json:"maxExpansionPerRequest"`
	MaxExpansionConcurrency  int     `json:"maxExpansionConcurrency"`
	CacheTTLMs               int64   `json:"cacheTtlMs"`
	CircuitBreakerThreshold  int     `json:"circuitBreakerThreshold"`
	CircuitBreakerTimeoutMs  int64   `json:"circuitBreakerTimeoutMs"`
}

// DefaultSettings returns the engine's documented default options.
func DefaultSettings() Settings {
	return Settings{
		MaxDepth:                  10,
		TimeoutMs:                 30_000,
		MaxCyclesPerGroup:         100,
		MinEfficiency:             0.6,
		EnableCollectionExpansion: true,
		EnableCommunityPartition:  true,
		MaxCollectionSize:         1_000,
		FallbackToSampling:        true,
		MaxExpansionPerRequest:    5_000,
		MaxExpansionConcurrency:   8,
		CacheTTLMs:                300_000,
		CircuitBreakerThreshold:   5,
		CircuitBreakerTimeoutMs:   30_000,
	}
}

// MetricsSnapshot is returned by the metrics() operation.
type MetricsSnapshot struct {
	GraphBuilds        int64   `json:"graphBuilds"`
	CacheHits          int64   `json:"cacheHits"`
	CacheMisses        int64   `json:"cacheMisses"`
	CyclesDiscovered   int64   `json:"cyclesDiscoveredTotal"`
	DiscoveryCalls     int64   `json:"discoveryCalls"`
	DeltaCalls         int64   `json:"deltaCalls"`
	BreakerTrips       int64   `json:"breakerTrips"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
}
