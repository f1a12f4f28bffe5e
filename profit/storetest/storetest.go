// Package storetest holds behavior tests shared by every profit.Store
// implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-engine/profit"
)

// Now is the pinned clock value used by Run.
var Now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Factory builds an empty store whose clock returns clock().
type Factory func(t *testing.T, clock profit.Clock) profit.Store

// Run exercises the Record Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("OverwriteNotDuplicate", func(t *testing.T) { testOverwrite(t, newStore) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore) })
	t.Run("DefaultProfit", func(t *testing.T) { testDefaultProfit(t, newStore) })
	t.Run("DefaultStartTime", func(t *testing.T) { testDefaultStartTime(t, newStore) })
	t.Run("OmittedFieldResetsOnReplace", func(t *testing.T) { testOmittedResets(t, newStore) })
	t.Run("EmptyPlanID", func(t *testing.T) { testEmptyPlanID(t, newStore) })
	t.Run("KeysIsolated", func(t *testing.T) { testKeysIsolated(t, newStore) })
	t.Run("KeysMatchedExactly", func(t *testing.T) { testKeysExact(t, newStore) })
	t.Run("CreatedAtKept", func(t *testing.T) { testCreatedAtKept(t, newStore) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { testConcurrent(t, newStore) })
}

func fixed(t time.Time) profit.Clock {
	return func() time.Time { return t }
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ms(v int64) *int64 {
	return &v
}

func testRoundTrip(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	// GIVEN: plan-A saved with an explicit profit and start time
	saved, err := s.Upsert(ctx, profit.UpsertInput{
		PlanID: "plan-A", Profit: dec("150.5"), StartTime: ms(1700000000000),
	})
	require.NoError(t, err)
	assert.Equal(t, "plan-A", saved.PlanID)

	// WHEN: Reading it back
	got, err := s.FindByPlanID(ctx, "plan-A")
	require.NoError(t, err)

	// THEN: Values match exactly
	assert.True(t, got.Profit.Equal(decimal.RequireFromString("150.5")), "profit %s", got.Profit)
	assert.Equal(t, int64(1700000000000), got.StartTime)
	assert.True(t, saved.Profit.Equal(got.Profit))
	assert.Equal(t, saved.StartTime, got.StartTime)
}

func testOverwrite(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	_, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-B", Profit: dec("10"), StartTime: ms(1)})
	require.NoError(t, err)
	second, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-B", Profit: dec("-42.25"), StartTime: ms(2)})
	require.NoError(t, err)

	got, err := s.FindByPlanID(ctx, "plan-B")
	require.NoError(t, err)
	assert.True(t, got.Profit.Equal(decimal.RequireFromString("-42.25")))
	assert.Equal(t, int64(2), got.StartTime)
	assert.True(t, second.Profit.Equal(got.Profit))

	if c, ok := s.(interface{ Len() int }); ok {
		assert.Equal(t, 1, c.Len(), "exactly one record per planId")
	}
}

func testNotFound(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))

	_, err := s.FindByPlanID(context.Background(), "plan-missing")
	assert.ErrorIs(t, err, profit.ErrNotFound)
}

func testDefaultProfit(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	_, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-C", StartTime: ms(5)})
	require.NoError(t, err)

	got, err := s.FindByPlanID(ctx, "plan-C")
	require.NoError(t, err)
	assert.True(t, got.Profit.IsZero())
	assert.Equal(t, int64(5), got.StartTime)
}

func testDefaultStartTime(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	saved, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-D", Profit: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, Now.UnixMilli(), saved.StartTime)

	got, err := s.FindByPlanID(ctx, "plan-D")
	require.NoError(t, err)
	assert.Equal(t, Now.UnixMilli(), got.StartTime)
}

func testOmittedResets(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	_, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-E", Profit: dec("99"), StartTime: ms(7)})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-E"})
	require.NoError(t, err)

	got, err := s.FindByPlanID(ctx, "plan-E")
	require.NoError(t, err)
	assert.True(t, got.Profit.IsZero())
	assert.Equal(t, Now.UnixMilli(), got.StartTime)
}

func testEmptyPlanID(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))

	_, err := s.Upsert(context.Background(), profit.UpsertInput{PlanID: " ", Profit: dec("1")})
	assert.ErrorIs(t, err, profit.ErrPlanIDRequired)
}

func testKeysIsolated(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	_, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-1", Profit: dec("1"), StartTime: ms(1)})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-2", Profit: dec("2"), StartTime: ms(2)})
	require.NoError(t, err)

	one, err := s.FindByPlanID(ctx, "plan-1")
	require.NoError(t, err)
	two, err := s.FindByPlanID(ctx, "plan-2")
	require.NoError(t, err)
	assert.True(t, one.Profit.Equal(decimal.NewFromInt(1)))
	assert.True(t, two.Profit.Equal(decimal.NewFromInt(2)))
}

func testKeysExact(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	// GIVEN: "a" and " a" saved with different profits
	_, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "a", Profit: dec("1"), StartTime: ms(1)})
	require.NoError(t, err)
	spaced, err := s.Upsert(ctx, profit.UpsertInput{PlanID: " a", Profit: dec("2"), StartTime: ms(2)})
	require.NoError(t, err)
	assert.Equal(t, " a", spaced.PlanID)

	// THEN: They are separate records
	plain, err := s.FindByPlanID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, plain.Profit.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1), plain.StartTime)

	got, err := s.FindByPlanID(ctx, " a")
	require.NoError(t, err)
	assert.True(t, got.Profit.Equal(decimal.NewFromInt(2)))

	_, err = s.FindByPlanID(ctx, "a ")
	assert.ErrorIs(t, err, profit.ErrNotFound)

	if c, ok := s.(interface{ Len() int }); ok {
		assert.Equal(t, 2, c.Len())
	}
}

func testCreatedAtKept(t *testing.T, newStore Factory) {
	now := Now
	s := newStore(t, func() time.Time { return now })
	ctx := context.Background()

	first, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-F", Profit: dec("1")})
	require.NoError(t, err)

	now = Now.Add(time.Hour)
	second, err := s.Upsert(ctx, profit.UpsertInput{PlanID: "plan-F", Profit: dec("2")})
	require.NoError(t, err)

	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at must survive replace")
	assert.True(t, second.UpdatedAt.Equal(now), "updated_at %v", second.UpdatedAt)
}

func testConcurrent(t *testing.T, newStore Factory) {
	s := newStore(t, fixed(Now))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Upsert(ctx, profit.UpsertInput{
				PlanID: "plan-race", Profit: dec("1"), StartTime: ms(int64(i)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.FindByPlanID(ctx, "plan-race")
	require.NoError(t, err)
	assert.True(t, got.Profit.Equal(decimal.NewFromInt(1)))
	if c, ok := s.(interface{ Len() int }); ok {
		assert.Equal(t, 1, c.Len())
	}
}
