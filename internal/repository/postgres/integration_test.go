//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository/postgres"
	"toolrent-backend/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

// prepareDB connects to TOOLRENT_TEST_DATABASE_URL, retrying while the
// database starts up.
func prepareDB(t *testing.T) *sql.DB {
	t.Helper()
	connStr := os.Getenv("TOOLRENT_TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TOOLRENT_TEST_DATABASE_URL is not set")
	}

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(2 * time.Second)
	}
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.EnsureSchema(context.Background(), db))
	return db
}

func TestIntegration_ConcurrentReservations(t *testing.T) {
	db := prepareDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	tool := domain.Tool{ID: uuid.New(), Name: "Drill", CategoryID: uuid.New(), PricePerDay: decimal.NewFromInt(10), IsAvailable: true, CreatedOn: now}
	var members []domain.Member
	for i := 0; i < 6; i++ {
		members = append(members, domain.Member{ID: uuid.New(), Name: "m", Email: "m@example.com", IsActive: true, CreatedOn: now})
	}
	require.NoError(t, postgres.SeedCatalog(ctx, db, members, []domain.Tool{tool}))

	store := postgres.NewStore(db, 3)
	svc := service.NewReservationService(store.Repositories(), store, service.SystemClock(), service.RandomIDs(), service.DefaultBookingPolicy())

	start := now.Add(time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won, lost int
	for _, m := range members {
		wg.Add(1)
		go func(memberID uuid.UUID) {
			defer wg.Done()
			_, err := svc.CreateBatch(ctx, memberID, []uuid.UUID{tool.ID}, start, start.Add(24*time.Hour))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, service.ErrToolUnavailable):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(m.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, len(members)-1, lost)

	// Touching windows never conflict.
	_, err := svc.CreateBatch(ctx, members[0].ID, []uuid.UUID{tool.ID}, start.Add(24*time.Hour), start.Add(48*time.Hour))
	assert.NoError(t, err)
}

func TestIntegration_CheckoutAndReturn(t *testing.T) {
	db := prepareDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	tool := domain.Tool{ID: uuid.New(), Name: "Saw", CategoryID: uuid.New(), PricePerDay: decimal.NewFromInt(20), IsAvailable: true, CreatedOn: now}
	member := domain.Member{ID: uuid.New(), Name: "Alice", Email: "alice@example.com", IsActive: true, CreatedOn: now}
	require.NoError(t, postgres.SeedCatalog(ctx, db, []domain.Member{member}, []domain.Tool{tool}))

	store := postgres.NewStore(db, 3)
	repos := store.Repositories()
	policy := service.DefaultBookingPolicy()
	reservations := service.NewReservationService(repos, store, service.SystemClock(), service.RandomIDs(), policy)
	loans := service.NewLoanService(repos, store, service.SystemClock(), service.RandomIDs(), policy)

	res, err := reservations.CreateBatch(ctx, member.ID, []uuid.UUID{tool.ID}, now, now.Add(48*time.Hour))
	require.NoError(t, err)

	loan, err := loans.CheckoutFromReservation(ctx, res.ID, nil, &member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOpen, loan.Status)

	stored, err := repos.Reservations.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCompleted, stored.Status)

	returned, err := loans.Return(ctx, loan.ID, time.Now().UTC(), "ok", &member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturned, returned.Status)
	assert.Nil(t, returned.LateFee)

	again, err := loans.Return(ctx, loan.ID, time.Now().UTC(), "", &member.ID)
	require.NoError(t, err)
	assert.Equal(t, returned.ReturnedAt.Unix(), again.ReturnedAt.Unix())
}
