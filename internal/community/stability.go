package community

import (
	"sort"

	"github.com/rawblock/barter-engine/internal/graph"
	"github.com/rawblock/barter-engine/internal/metrics"
)

// Stability compares this partition against a previously cached one for
// the same node set, reporting how much community structure churned
// between two graph builds. The orchestrator logs this when a
// fingerprint change forces a re-partition, so an operator can tell "the
// communities reshuffled a little" from "every community dissolved".
type Stability struct {
	AdjustedRandIndex    float64 // 1.0 = identical partitions, ~0 = random
	VariationOfInformation float64 // 0.0 = identical partitions, higher = more churn
}

// StabilityAgainst measures p against prev over their shared node
// handles. Handles present in only one partition are ignored, since
// they reflect a graph-membership change rather than a re-partition.
func (p *Partition) StabilityAgainst(prev *Partition) Stability {
	if prev == nil {
		return Stability{AdjustedRandIndex: 1.0, VariationOfInformation: 0}
	}

	var shared []graph.ParticipantHandle
	for h := range p.communityOf {
		if _, ok := prev.communityOf[h]; ok {
			shared = append(shared, h)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i] < shared[j] })
	if len(shared) < 2 {
		return Stability{AdjustedRandIndex: 1.0, VariationOfInformation: 0}
	}

	current := make([]int, len(shared))
	previous := make([]int, len(shared))
	for i, h := range shared {
		current[i] = p.communityOf[h]
		previous[i] = prev.communityOf[h]
	}

	return Stability{
		AdjustedRandIndex:      metrics.AdjustedRandIndex(current, previous),
		VariationOfInformation: metrics.VariationOfInformation(current, previous),
	}
}
