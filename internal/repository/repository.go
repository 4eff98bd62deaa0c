package repository

import (
	"context"
	"errors"
	"time"

	"toolrent-backend/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned by every repository when the requested row does not
// exist or is soft-deleted.
var ErrNotFound = errors.New("record not found")

// ErrStatusConflict is returned by conditional status updates when the row is
// no longer in the expected source status.
var ErrStatusConflict = errors.New("status changed concurrently")

type ToolRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tool, error)
	// GetByIDs returns the tools that exist, in no particular order. Missing
	// ids are simply absent from the result. Soft-deleted tools are included
	// so callers can tell "deleted" from "never existed".
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Tool, error)
	// ListBookable returns tools that are not deleted and are in service.
	ListBookable(ctx context.Context) ([]domain.Tool, error)
	// LockForBooking serializes writers booking any of ids until the
	// surrounding transaction ends. Outside a transaction it is a no-op.
	LockForBooking(ctx context.Context, ids []uuid.UUID) error
}

type MemberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}

type ReservationRepository interface {
	// Create persists the reservation and all of its items.
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	// UpdateStatus moves a reservation from one status to another and returns
	// ErrStatusConflict when it is not in status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.ReservationStatus) error
	// ActiveConflicts returns the subset of toolIDs held by an ACTIVE
	// reservation overlapping w, ignoring the reservation ignoreID.
	ActiveConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error)
	ListActiveByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]domain.Reservation, error)
	ListHistoryByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time, page, pageSize int32) ([]domain.Reservation, int32, error)
	Search(ctx context.Context, f ReservationFilter) ([]domain.Reservation, int32, error)
}

type LoanRepository interface {
	// Create persists the loan and all of its items.
	Create(ctx context.Context, l *domain.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	// Return closes an OPEN loan with the given status, timestamp, fee and
	// notes, and returns ErrStatusConflict when the loan is no longer OPEN.
	Return(ctx context.Context, l *domain.Loan) error
	// OpenConflicts returns the subset of toolIDs held by an OPEN loan whose
	// [checkout, returned ?? due) overlaps w, ignoring the loan ignoreID.
	OpenConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error)
	Search(ctx context.Context, f LoanFilter) ([]domain.Loan, int32, error)
}

type ReservationFilter struct {
	MemberID *uuid.UUID
	From     *time.Time // start >= From
	To       *time.Time // start < To
	Status   *domain.ReservationStatus
	Page     int32
	PageSize int32
}

type LoanFilter struct {
	MemberID *uuid.UUID
	ToolID   *uuid.UUID
	Status   *domain.LoanStatus
	OpenOnly bool
	Page     int32
	PageSize int32
}

// Repositories groups the stores a single unit of work operates on.
type Repositories struct {
	Tools        ToolRepository
	Members      MemberRepository
	Reservations ReservationRepository
	Loans        LoanRepository
}

// Transactor runs fn inside one atomic unit of work. Every write made through
// the repositories handed to fn commits together when fn returns nil, and
// none of them is visible when fn returns an error or ctx is cancelled.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// NormalizePage applies the default paging used by every list endpoint.
func NormalizePage(page, pageSize int32) (int32, int32) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}
