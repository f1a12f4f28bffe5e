/*
types.go - Profit record and the Record Store contract

PURPOSE:
  Defines the single persisted entity (Record) and the interface every
  storage backend implements. The HTTP layer only ever talks to Store.

KEY TYPES:
  Record:      One profit value per plan identifier
  UpsertInput: Caller-supplied values; optional fields are pointers
  Store:       Upsert-by-key and find-by-key

UNIQUENESS:
  At most one Record exists per PlanID. Backends enforce this with a
  primary key (SQLite) or map keying (memory). PlanID is matched exactly;
  "plan-A" and " plan-A" are different keys. Blank ids are rejected.

DEFAULTS:
  Applied on every upsert, not only on create:
  - Profit omitted    -> 0
  - StartTime omitted -> now, in epoch milliseconds
  An upsert replaces both fields in full, so an omitted field on a later
  upsert resets to its default.

CONCURRENCY:
  Racing upserts on the same PlanID resolve as last committed write wins.
  No application-level conflict detection exists.

SEE ALSO:
  - errors.go: Sentinel errors
  - store/sqlite/sqlite.go: Durable implementation
  - profit/store/memory.go: In-memory implementation for testing
*/
package profit

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD
// =============================================================================

// Record is the persisted profit for one plan.
type Record struct {
	PlanID    string
	Profit    decimal.Decimal
	StartTime int64 // epoch milliseconds
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartedAt returns StartTime as a time.Time in UTC.
func (r Record) StartedAt() time.Time {
	return time.UnixMilli(r.StartTime).UTC()
}

// =============================================================================
// UPSERT INPUT
// =============================================================================

// UpsertInput carries the values for an upsert. Nil fields take defaults.
type UpsertInput struct {
	PlanID    string
	Profit    *decimal.Decimal
	StartTime *int64
}

// Normalize validates the input and fills in defaults relative to now.
func (in UpsertInput) Normalize(now time.Time) (Record, error) {
	if strings.TrimSpace(in.PlanID) == "" {
		return Record{}, ErrPlanIDRequired
	}

	rec := Record{
		PlanID:    in.PlanID,
		Profit:    decimal.Zero,
		StartTime: now.UnixMilli(),
	}
	if in.Profit != nil {
		rec.Profit = *in.Profit
	}
	if in.StartTime != nil {
		rec.StartTime = *in.StartTime
	}
	return rec, nil
}

// =============================================================================
// STORE
// =============================================================================

// Store persists profit records keyed by plan identifier.
type Store interface {
	// Upsert creates the record for in.PlanID or replaces its profit and
	// start time. Returns the record as stored.
	Upsert(ctx context.Context, in UpsertInput) (Record, error)

	// FindByPlanID returns ErrNotFound when no record exists for planID.
	FindByPlanID(ctx context.Context, planID string) (Record, error)
}

// Clock returns the current time. Stores accept one so tests can pin "now".
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now()
}
