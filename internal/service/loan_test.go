package service_test

import (
	"context"
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

func TestLoanService_CheckoutFromReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(2*day))
		require.NoError(t, err)

		// A later price change must not leak into the loan.
		f.store.AddTool(domain.Tool{ID: drill, Name: "drill", PricePerDay: decimal.NewFromInt(99), IsAvailable: true})
		f.clock.Set(D0.Add(time.Hour))

		l, err := f.loans.CheckoutFromReservation(ctx, r.ID, nil, &alice)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusOpen, l.Status)
		assert.Equal(t, r.ID, *l.ReservationID)
		assert.Equal(t, D0.Add(2*day), l.DueAt)
		assert.Equal(t, D0.Add(time.Hour), l.CheckedOutAt)
		require.Len(t, l.Items, 1)
		assert.True(t, l.Items[0].PricePerDay.Equal(decimal.NewFromInt(10)))
		assert.True(t, l.TotalPrice.Equal(decimal.NewFromInt(20)), l.TotalPrice.String())

		stored, err := f.reservations.Get(ctx, r.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCompleted, stored.Status)

		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, nil, &alice)
		assert.ErrorIs(t, err, service.ErrInvalidState)
	})

	t.Run("OtherReservationsStayActive", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		bob := f.member("bob")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 20)

		r1, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(2*day))
		require.NoError(t, err)
		r2, err := f.reservations.CreateBatch(ctx, alice, ids(saw), D0, D0.Add(2*day))
		require.NoError(t, err)
		r3, err := f.reservations.CreateBatch(ctx, bob, ids(drill), D0.Add(3*day), D0.Add(4*day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutFromReservation(ctx, r1.ID, nil, &alice)
		require.NoError(t, err)

		for _, tc := range []struct {
			id   uuid.UUID
			want domain.ReservationStatus
		}{
			{r1.ID, domain.ReservationStatusCompleted},
			{r2.ID, domain.ReservationStatusActive},
			{r3.ID, domain.ReservationStatusActive},
		} {
			stored, err := f.reservations.Get(ctx, tc.id, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, stored.Status, tc.id.String())
		}

		active, err := f.reservations.ListActiveForMember(ctx, alice)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, r2.ID, active[0].ID)

		// Bob's later drill booking still converts once its window opens.
		f.clock.Set(D0.Add(3 * day))
		l3, err := f.loans.CheckoutFromReservation(ctx, r3.ID, nil, &bob)
		require.NoError(t, err)
		assert.Equal(t, r3.ID, *l3.ReservationID)
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0.Add(day), D0.Add(2*day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, nil, &alice)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)

		f.clock.Set(D0.Add(2 * day))
		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, nil, &alice)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)
	})

	t.Run("ForeignMember", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		bob := f.member("bob")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, nil, &bob)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("DueOverrideConflictsWithLaterBooking", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		bob := f.member("bob")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)
		_, err = f.reservations.CreateBatch(ctx, bob, ids(drill), D0.Add(day), D0.Add(2*day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, ptr(D0.Add(36*time.Hour)), &alice)
		var unavailable *service.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, ids(drill), unavailable.UnavailableIDs)

		stored, err := f.reservations.Get(ctx, r.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusActive, stored.Status)
	})

	t.Run("DueInPast", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutFromReservation(ctx, r.ID, ptr(D0), &alice)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)
	})
}

func TestLoanService_CheckoutDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 15)

		l, err := f.loans.CheckoutDirect(ctx, alice, ids(drill, saw), D0.Add(3*day))
		require.NoError(t, err)
		assert.Nil(t, l.ReservationID)
		assert.True(t, l.TotalPrice.Equal(decimal.NewFromInt(75)), l.TotalPrice.String())

		got, err := f.availability.CheckWindow(ctx, ids(drill, saw), domain.Window{Start: D0.Add(day), End: D0.Add(2 * day)}, service.Exclusions{})
		require.NoError(t, err)
		assert.False(t, got[drill])
		assert.False(t, got[saw])
	})

	t.Run("ToolOutOfService", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		ladder := uuid.New()
		f.store.AddTool(domain.Tool{ID: ladder, Name: "ladder", PricePerDay: decimal.NewFromInt(5), IsAvailable: false})

		_, err := f.loans.CheckoutDirect(ctx, alice, ids(drill, ladder), D0.Add(day))
		var unavailable *service.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, ids(drill), unavailable.AvailableIDs)
		assert.Equal(t, ids(ladder), unavailable.UnavailableIDs)

		open, _, err := f.loans.Search(ctx, repository.LoanFilter{OpenOnly: true})
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("DueNotInFuture", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)

		_, err := f.loans.CheckoutDirect(ctx, alice, ids(drill), D0)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)
	})
}

func TestLoanService_CheckoutBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("MixedEntries", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)

		loans, err := f.loans.CheckoutBatch(ctx, []service.CheckoutEntry{
			{ReservationID: &r.ID},
			{ToolIDs: ids(saw), Due: ptr(D0.Add(day))},
		}, &alice)
		require.NoError(t, err)
		require.Len(t, loans, 2)
		assert.Equal(t, alice, loans[0].MemberID)
		assert.Equal(t, alice, loans[1].MemberID)
	})

	t.Run("DuplicateAcrossEntries", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		r, err := f.reservations.CreateBatch(ctx, alice, ids(drill), D0, D0.Add(day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutBatch(ctx, []service.CheckoutEntry{
			{ReservationID: &r.ID},
			{ToolIDs: ids(drill), Due: ptr(D0.Add(day))},
		}, &alice)
		var dup *service.DuplicateInBatchError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, ids(drill), dup.ToolIDs)
	})

	t.Run("OneFailingEntryAbortsAll", func(t *testing.T) {
		f := newFixture(t)
		alice := f.member("alice")
		bob := f.member("bob")
		drill := f.tool("drill", 10)
		saw := f.tool("saw", 10)
		_, err := f.loans.CheckoutDirect(ctx, bob, ids(saw), D0.Add(day))
		require.NoError(t, err)

		_, err = f.loans.CheckoutBatch(ctx, []service.CheckoutEntry{
			{MemberID: alice, ToolIDs: ids(drill), Due: ptr(D0.Add(day))},
			{MemberID: alice, ToolIDs: ids(saw), Due: ptr(D0.Add(day))},
		}, nil)
		var unavailable *service.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, ids(drill), unavailable.AvailableIDs)
		assert.Equal(t, ids(saw), unavailable.UnavailableIDs)

		mine, _, err := f.loans.Search(ctx, repository.LoanFilter{MemberID: &alice})
		require.NoError(t, err)
		assert.Empty(t, mine)
	})

	t.Run("Empty", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.loans.CheckoutBatch(ctx, nil, nil)
		assert.ErrorIs(t, err, service.ErrInvalidArgument)
	})
}

func TestLoanService_Return(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, f *fixture) (uuid.UUID, *domain.Loan) {
		alice := f.member("alice")
		drill := f.tool("drill", 10)
		l, err := f.loans.CheckoutDirect(ctx, alice, ids(drill), D0.Add(day))
		require.NoError(t, err)
		return alice, l
	}

	tests := []struct {
		name       string
		returnedAt time.Time
		wantStatus domain.LoanStatus
		wantFee    *decimal.Decimal
	}{
		{"AtDue", D0.Add(day), domain.LoanStatusReturned, nil},
		{"Early", D0.Add(time.Hour), domain.LoanStatusReturned, nil},
		{"OneHourLate", D0.Add(day + time.Hour), domain.LoanStatusLate, ptr(decimal.NewFromInt(50))},
		{"TwentyFiveHoursLate", D0.Add(day + 25*time.Hour), domain.LoanStatusLate, ptr(decimal.NewFromInt(100))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice, l := open(t, f)
			f.clock.Set(tt.returnedAt)

			got, err := f.loans.Return(ctx, l.ID, tt.returnedAt, "ok", &alice)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.returnedAt, *got.ReturnedAt)
			assert.Equal(t, "ok", got.Notes)
			if tt.wantFee == nil {
				assert.Nil(t, got.LateFee)
			} else {
				require.NotNil(t, got.LateFee)
				assert.True(t, tt.wantFee.Equal(*got.LateFee), got.LateFee.String())
			}
		})
	}

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)
		alice, l := open(t, f)
		f.clock.Set(D0.Add(2 * day))

		first, err := f.loans.Return(ctx, l.ID, D0.Add(2*day), "first", &alice)
		require.NoError(t, err)
		second, err := f.loans.Return(ctx, l.ID, D0.Add(2*day+time.Hour), "second", &alice)
		require.NoError(t, err)

		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, *first.ReturnedAt, *second.ReturnedAt)
		assert.True(t, first.LateFee.Equal(*second.LateFee))
		assert.Equal(t, "first", second.Notes)
	})

	t.Run("ReturnFreesTools", func(t *testing.T) {
		f := newFixture(t)
		alice, l := open(t, f)
		f.clock.Set(D0.Add(2 * time.Hour))
		_, err := f.loans.Return(ctx, l.ID, D0.Add(2*time.Hour), "", &alice)
		require.NoError(t, err)

		got, err := f.availability.CheckWindow(ctx, l.ToolIDs(), domain.Window{Start: D0.Add(3 * time.Hour), End: D0.Add(day)}, service.Exclusions{})
		require.NoError(t, err)
		assert.True(t, got[l.Items[0].ToolID])
	})

	t.Run("InvalidTimestamps", func(t *testing.T) {
		f := newFixture(t)
		alice, l := open(t, f)

		_, err := f.loans.Return(ctx, l.ID, D0.Add(-time.Minute), "", &alice)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)

		_, err = f.loans.Return(ctx, l.ID, D0.Add(time.Hour), "", &alice)
		assert.ErrorIs(t, err, service.ErrInvalidWindow)
	})

	t.Run("ForeignOrMissing", func(t *testing.T) {
		f := newFixture(t)
		_, l := open(t, f)
		stranger := uuid.New()

		_, err := f.loans.Return(ctx, l.ID, D0, "", &stranger)
		assert.ErrorIs(t, err, service.ErrNotFound)

		_, err = f.loans.Return(ctx, uuid.New(), D0, "", nil)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestLoanService_ListOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.member("alice")
	drill := f.tool("drill", 10)
	saw := f.tool("saw", 10)

	late, err := f.loans.CheckoutDirect(ctx, alice, ids(drill), D0.Add(day))
	require.NoError(t, err)
	_, err = f.loans.CheckoutDirect(ctx, alice, ids(saw), D0.Add(3*day))
	require.NoError(t, err)

	overdue, err := f.loans.ListOverdue(ctx, D0.Add(2*day))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
}

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m1 := f.member("m1")
	m2 := f.member("m2")
	tool := f.tool("tile saw", 100)

	r, err := f.reservations.CreateBatch(ctx, m1, ids(tool), D0, D0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusActive, r.Status)
	assert.True(t, r.TotalPrice.Equal(decimal.NewFromInt(200)), r.TotalPrice.String())

	_, err = f.reservations.CreateBatch(ctx, m2, ids(tool), D0.Add(day), D0.Add(3*day))
	var unavailable *service.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, ids(tool), unavailable.UnavailableIDs)

	l, err := f.loans.CheckoutFromReservation(ctx, r.ID, nil, &m1)
	require.NoError(t, err)
	assert.Equal(t, D0.Add(2*day), l.DueAt)
	stored, err := f.reservations.Get(ctx, r.ID, &m1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCompleted, stored.Status)

	_, err = f.reservations.CreateBatch(ctx, m2, ids(tool), D0.Add(2*day), D0.Add(3*day))
	require.NoError(t, err)

	returnedAt := D0.Add(2*day + 5*time.Hour)
	f.clock.Set(returnedAt)
	closed, err := f.loans.Return(ctx, l.ID, returnedAt, "", &m1)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusLate, closed.Status)
	require.NotNil(t, closed.LateFee)
	assert.True(t, closed.LateFee.Equal(decimal.NewFromInt(50)))
}
