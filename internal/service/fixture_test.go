package service_test

import (
	"sync"
	"testing"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository/memory"
	"toolrent-backend/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// D0 is the reference instant used throughout the booking tests.
var D0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store        *memory.Store
	clock        *fakeClock
	availability service.AvailabilityService
	reservations service.ReservationService
	loans        service.LoanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{now: D0}
	repos := store.Repositories()
	policy := service.DefaultBookingPolicy()
	return &fixture{
		store:        store,
		clock:        clock,
		availability: service.NewAvailabilityService(repos),
		reservations: service.NewReservationService(repos, store, clock, service.RandomIDs(), policy),
		loans:        service.NewLoanService(repos, store, clock, service.RandomIDs(), policy),
	}
}

func (f *fixture) tool(name string, price int64) uuid.UUID {
	id := uuid.New()
	f.store.AddTool(domain.Tool{
		ID:          id,
		Name:        name,
		PricePerDay: decimal.NewFromInt(price),
		IsAvailable: true,
		CreatedOn:   D0.Add(-30 * day),
	})
	return id
}

func (f *fixture) member(name string) uuid.UUID {
	id := uuid.New()
	f.store.AddMember(domain.Member{
		ID:        id,
		Name:      name,
		Email:     name + "@example.com",
		IsActive:  true,
		CreatedOn: D0.Add(-30 * day),
	})
	return id
}

func ids(v ...uuid.UUID) []uuid.UUID {
	return v
}

func ptr[T any](v T) *T {
	return &v
}
