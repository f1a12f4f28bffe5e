// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/profit-engine/profit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[string]profit.Record
	now     profit.Clock
}

func NewMemory() *Memory {
	return NewMemoryWithClock(profit.SystemClock)
}

// NewMemoryWithClock uses now for defaults and bookkeeping timestamps.
func NewMemoryWithClock(now profit.Clock) *Memory {
	return &Memory{
		records: make(map[string]profit.Record),
		now:     now,
	}
}

// Upsert inserts or replaces the record for in.PlanID.
func (m *Memory) Upsert(_ context.Context, in profit.UpsertInput) (profit.Record, error) {
	now := m.now().UTC()
	rec, err := in.Normalize(now)
	if err != nil {
		return profit.Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.CreatedAt = now
	if existing, ok := m.records[rec.PlanID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	rec.UpdatedAt = now
	m.records[rec.PlanID] = rec
	return rec, nil
}

// FindByPlanID returns the record for planID.
func (m *Memory) FindByPlanID(_ context.Context, planID string) (profit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[planID]
	if !ok {
		return profit.Record{}, profit.ErrNotFound
	}
	return rec, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
