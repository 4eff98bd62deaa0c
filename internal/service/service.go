package service

import (
	"context"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exclusions lets a re-validation ignore the booking it is about to replace.
type Exclusions struct {
	ReservationID *uuid.UUID
	LoanID        *uuid.UUID
}

type AvailabilityService interface {
	// CheckWindow reports for every requested tool whether it can be booked
	// over w. Unknown ids map to false.
	CheckWindow(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ex Exclusions) (map[uuid.UUID]bool, error)
	ListAvailableTools(ctx context.Context, w domain.Window) ([]domain.Tool, error)
}

type ReservationService interface {
	CreateBatch(ctx context.Context, memberID uuid.UUID, toolIDs []uuid.UUID, start, end time.Time) (*domain.Reservation, error)
	// Cancel returns false without error when the reservation is no longer ACTIVE.
	Cancel(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (*domain.Reservation, error)
	ListActiveForMember(ctx context.Context, memberID uuid.UUID) ([]domain.Reservation, error)
	ListHistoryForMember(ctx context.Context, memberID uuid.UUID, page, pageSize int32) ([]domain.Reservation, int32, error)
	Search(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, int32, error)
}

// CheckoutEntry is one line of a checkout batch. Set ReservationID to check
// out a reservation (Due then optionally overrides its end), or ToolIDs and Due
// for a direct loan. MemberID is only read for direct entries of batches run
// on behalf of a member by an administrator.
type CheckoutEntry struct {
	ReservationID *uuid.UUID
	MemberID      uuid.UUID
	ToolIDs       []uuid.UUID
	Due           *time.Time
}

func (e CheckoutEntry) fromReservation() bool {
	return e.ReservationID != nil
}

type LoanService interface {
	CheckoutFromReservation(ctx context.Context, reservationID uuid.UUID, dueOverride *time.Time, actingMemberID *uuid.UUID) (*domain.Loan, error)
	CheckoutDirect(ctx context.Context, memberID uuid.UUID, toolIDs []uuid.UUID, due time.Time) (*domain.Loan, error)
	// CheckoutBatch validates every entry before writing anything. With a
	// non-nil actingMemberID all loans are opened for that member.
	CheckoutBatch(ctx context.Context, entries []CheckoutEntry, actingMemberID *uuid.UUID) ([]domain.Loan, error)
	Return(ctx context.Context, loanID uuid.UUID, returnedAt time.Time, notes string, actingMemberID *uuid.UUID) (*domain.Loan, error)
	Get(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (*domain.Loan, error)
	Search(ctx context.Context, f repository.LoanFilter) ([]domain.Loan, int32, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error)
}

type EmailService interface {
	SendOverdueLoanReminder(ctx context.Context, member *domain.Member, loan *domain.Loan) error
}

// BookingPolicy holds the tunables of the booking engine.
type BookingPolicy struct {
	LateFeePerDay decimal.Decimal
	MaxBatchSize  int
	// StartGrace is how far in the past a new reservation may start.
	StartGrace time.Duration
	// ReturnGrace is how far in the future a reported return time may lie.
	ReturnGrace time.Duration
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		LateFeePerDay: decimal.NewFromInt(50),
		MaxBatchSize:  50,
		StartGrace:    5 * time.Minute,
		ReturnGrace:   5 * time.Minute,
	}
}
