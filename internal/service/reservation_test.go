package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"
	"toolrent-backend/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityService_CheckWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member("alice")
	drill := f.tool("drill", 10)
	saw := f.tool("saw", 20)
	retired := f.tool("sander", 5)
	broken := f.tool("ladder", 5)
	missing := uuid.New()

	f.store.AddTool(domain.Tool{ID: retired, Name: "sander", PricePerDay: decimal.NewFromInt(5), IsAvailable: true, DeletedOn: ptr(D0)})
	f.store.AddTool(domain.Tool{ID: broken, Name: "ladder", PricePerDay: decimal.NewFromInt(5), IsAvailable: false})

	_, err := f.reservations.CreateBatch(ctx, m, ids(drill), D0, D0.Add(2*day))
	require.NoError(t, err)

	t.Run("Overlap", func(t *testing.T) {
		got, err := f.availability.CheckWindow(ctx, ids(drill, saw, retired, broken, missing), domain.Window{Start: D0.Add(day), End: D0.Add(3 * day)}, service.Exclusions{})
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]bool{drill: false, saw: true, retired: false, broken: false, missing: false}, got)
	})

	t.Run("TouchingBoundary", func(t *testing.T) {
		got, err := f.availability.CheckWindow(ctx, ids(drill), domain.Window{Start: D0.Add(2 * day), End: D0.Add(3 * day)}, service.Exclusions{})
		require.NoError(t, err)
		assert.True(t, got[drill])

		got, err = f.availability.CheckWindow(ctx, ids(drill), domain.Window{Start: D0.Add(-day), End: D0}, service.Exclusions{})
		require.NoError(t, err)
		assert.True(t, got[drill])
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		_, err := f.availability.CheckWindow(ctx, ids(drill), domain.Window{Start: D0, End: D0}, service.Exclusions{})
		assert.ErrorIs(t, err, service.ErrInvalidWindow)
	})

	t.Run("ListAvailableTools", func(t *testing.T) {
		tools, err := f.availability.ListAvailableTools(ctx, domain.Window{Start: D0, End: D0.Add(day)})
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, saw, tools[0].ID)
	})
}

func TestReservationService_CreateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		m := f.member("alice")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 25)

		r, err := f.reservations.CreateBatch(ctx, m, ids(drill, saw), D0, D0.Add(36*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusActive, r.Status)
		assert.False(t, r.IsPaid)
		require.Len(t, r.Items, 2)
		// 36h is two started days at 35/day.
		assert.True(t, r.TotalPrice.Equal(decimal.NewFromInt(70)), r.TotalPrice.String())

		stored, err := f.reservations.Get(ctx, r.ID, &m)
		require.NoError(t, err)
		assert.Equal(t, r.ID, stored.ID)
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		bob := f.member("bob")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 10)
		ghost := uuid.New()

		_, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)

		_, err = f.reservations.CreateBatch(ctx, bob, ids(saw, drill, ghost), D0, D0.Add(day))
		var unavailable *service.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.ErrorIs(t, err, service.ErrToolUnavailable)
		// Both lists keep the order the tools were requested in.
		assert.Equal(t, ids(saw), unavailable.AvailableIDs)
		assert.Equal(t, ids(drill, ghost), unavailable.UnavailableIDs)

		active, err := f.reservations.ListActiveForMember(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, active)

		got, err := f.availability.CheckWindow(ctx, ids(saw), domain.Window{Start: D0, End: D0.Add(day)}, service.Exclusions{})
		require.NoError(t, err)
		assert.True(t, got[saw])
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)
		m := f.member("alice")
		drill := f.tool("drill", 10)

		_, err := f.reservations.CreateBatch(ctx, m, nil, D0, D0.Add(day))
		assert.ErrorIs(t, err, service.ErrInvalidArgument)

		_, err = f.reservations.CreateBatch(ctx, m, ids(drill, drill), D0, D0.Add(day))
		var dup *service.DuplicateInBatchError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, ids(drill), dup.ToolIDs)

		_, err = f.reservations.CreateBatch(ctx, m, ids(drill), D0.Add(day), D0.Add(day))
		assert.ErrorIs(t, err, service.ErrInvalidWindow)

		_, err = f.reservations.CreateBatch(ctx, m, ids(drill), D0.Add(-day), D0.Add(day))
		assert.ErrorIs(t, err, service.ErrInvalidWindow)

		_, err = f.reservations.CreateBatch(ctx, uuid.New(), ids(drill), D0, D0.Add(day))
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("InactiveMember", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		f.store.AddMember(domain.Member{ID: id, Name: "carol", IsActive: false})
		drill := f.tool("drill", 10)

		_, err := f.reservations.CreateBatch(ctx, id, ids(drill), D0, D0.Add(day))
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("ConcurrentRequestsForSameTool", func(t *testing.T) {
		f := newFixture(t)
		drill := f.tool("drill", 10)
		members := make([]uuid.UUID, 8)
		for i := range members {
			members[i] = f.member("m")
		}

		var wg sync.WaitGroup
		results := make([]error, len(members))
		for i, m := range members {
			wg.Add(1)
			go func(i int, m uuid.UUID) {
				defer wg.Done()
				_, results[i] = f.reservations.CreateBatch(ctx, m, ids(drill), D0, D0.Add(day))
			}(i, m)
		}
		wg.Wait()

		won := 0
		for _, err := range results {
			if err == nil {
				won++
				continue
			}
			assert.ErrorIs(t, err, service.ErrToolUnavailable)
		}
		assert.Equal(t, 1, won)
	})
}

func TestReservationService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.member("alice")
	bob := f.member("bob")
	drill := f.tool("drill", 10)

	r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
	require.NoError(t, err)

	t.Run("ForeignMember", func(t *testing.T) {
		ok, err := f.reservations.Cancel(ctx, r.ID, &bob)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.False(t, ok)
	})

	t.Run("Missing", func(t *testing.T) {
		ok, err := f.reservations.Cancel(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.False(t, ok)
	})

	t.Run("CancelReleasesTools", func(t *testing.T) {
		ok, err := f.reservations.Cancel(ctx, r.ID, &alice)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = f.reservations.CreateBatch(ctx, bob, ids(drill), D0, D0.Add(day))
		assert.NoError(t, err)
	})

	t.Run("SecondCancelIsNoop", func(t *testing.T) {
		ok, err := f.reservations.Cancel(ctx, r.ID, nil)
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := f.reservations.Get(ctx, r.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)
	})
}

func TestReservationService_Queries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.member("alice")
	drill := f.tool("drill", 10)
	saw := f.tool("saw", 10)

	first, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
	require.NoError(t, err)
	second, err := f.reservations.CreateBatch(ctx, alice, ids(saw), D0.Add(2*day), D0.Add(3*day))
	require.NoError(t, err)
	_, err = f.reservations.Cancel(ctx, second.ID, &alice)
	require.NoError(t, err)

	active, err := f.reservations.ListActiveForMember(ctx, alice)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	history, total, err := f.reservations.ListHistoryForMember(ctx, alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	require.Len(t, history, 1)
	assert.Equal(t, second.ID, history[0].ID)

	status := domain.ReservationStatusActive
	found, total, err := f.reservations.Search(ctx, repository.ReservationFilter{MemberID: &alice, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.Equal(t, first.ID, found[0].ID)

	_, _, err = f.reservations.Search(ctx, repository.ReservationFilter{From: ptr(D0.Add(day)), To: ptr(D0)})
	assert.True(t, errors.Is(err, service.ErrInvalidWindow))
}
