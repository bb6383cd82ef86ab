package engine

import (
	"sync"

	"github.com/rawblock/barter-engine/pkg/models"
)

// Typed observer interface: consumers register callbacks for specific
// event shapes rather than subscribing to a generic, untyped emitter.

// CyclesDiscoveredFunc is invoked once per discover()/apply_mutation()
// call that returns at least one cycle.
type CyclesDiscoveredFunc func(models.DiscoveryResult)

// ConfigUpdatedFunc is invoked after a successful configure() call.
type ConfigUpdatedFunc func(models.Settings)

// MemoryOptimizedFunc is invoked after the performance envelope runs an
// aggressive cache cleanup, reporting how many entries were evicted.
type MemoryOptimizedFunc func(evicted int)

// EventBus fans discovery/config/memory events out to registered
// observers: a small mutex-guarded slice of callbacks per event type,
// invoked synchronously in registration order.
type EventBus struct {
	mu                sync.RWMutex
	onCyclesDiscovered []CyclesDiscoveredFunc
	onConfigUpdated    []ConfigUpdatedFunc
	onMemoryOptimized  []MemoryOptimizedFunc
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// OnCyclesDiscovered registers a callback for cycles_discovered events.
func (b *EventBus) OnCyclesDiscovered(fn CyclesDiscoveredFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCyclesDiscovered = append(b.onCyclesDiscovered, fn)
}

// OnConfigUpdated registers a callback for on_config_updated events.
func (b *EventBus) OnConfigUpdated(fn ConfigUpdatedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConfigUpdated = append(b.onConfigUpdated, fn)
}

// OnMemoryOptimized registers a callback for on_memory_optimized events.
func (b *EventBus) OnMemoryOptimized(fn MemoryOptimizedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMemoryOptimized = append(b.onMemoryOptimized, fn)
}

// EmitCyclesDiscovered fans out a discovery result to all registered
// observers. Never called with a lock held by the caller.
func (b *EventBus) EmitCyclesDiscovered(result models.DiscoveryResult) {
	if len(result.Cycles) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.onCyclesDiscovered {
		fn(result)
	}
}

// EmitConfigUpdated fans out a settings update to all registered observers.
func (b *EventBus) EmitConfigUpdated(s models.Settings) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.onConfigUpdated {
		fn(s)
	}
}

// EmitMemoryOptimized fans out a cleanup notification to all observers.
func (b *EventBus) EmitMemoryOptimized(evicted int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.onMemoryOptimized {
		fn(evicted)
	}
}
