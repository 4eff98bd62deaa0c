package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"
	"toolrent-backend/internal/utils"

	"github.com/google/uuid"
)

type loanService struct {
	repos  repository.Repositories
	tx     repository.Transactor
	clock  Clock
	ids    IDGenerator
	policy BookingPolicy
}

func NewLoanService(
	repos repository.Repositories,
	tx repository.Transactor,
	clock Clock,
	ids IDGenerator,
	policy BookingPolicy,
) LoanService {
	return &loanService{
		repos:  repos,
		tx:     tx,
		clock:  clock,
		ids:    ids,
		policy: policy,
	}
}

// Return closes an open loan. Returning a loan that is already closed is a
// no-op that reports the stored state.
func (s *loanService) Return(ctx context.Context, loanID uuid.UUID, returnedAt time.Time, notes string, actingMemberID *uuid.UUID) (*domain.Loan, error) {
	logger.EnterMethod("loanService.Return", "loanID", loanID, "returnedAt", returnedAt)

	var result *domain.Loan
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		l, err := repos.Loans.GetByID(ctx, loanID)
		if err != nil {
			return mapNotFound(err, "loan")
		}
		if actingMemberID != nil && l.MemberID != *actingMemberID {
			return fmt.Errorf("%w: loan", ErrNotFound)
		}
		if l.Status.IsTerminal() {
			result = l
			return nil
		}

		if returnedAt.Before(l.CheckedOutAt) {
			return invalidWindow("return cannot precede checkout")
		}
		if returnedAt.After(s.clock.Now().Add(s.policy.ReturnGrace)) {
			return invalidWindow("return cannot lie in the future")
		}

		returned := returnedAt
		l.ReturnedAt = &returned
		l.Notes = notes
		l.UpdatedOn = s.clock.Now()
		if fee, late := utils.LateFee(l.DueAt, returnedAt, s.policy.LateFeePerDay); late {
			l.Status = domain.LoanStatusLate
			l.LateFee = &fee
		} else {
			l.Status = domain.LoanStatusReturned
			l.LateFee = nil
		}

		err = repos.Loans.Return(ctx, l)
		if errors.Is(err, repository.ErrStatusConflict) {
			// Closed by a concurrent return; report what won.
			current, err := repos.Loans.GetByID(ctx, loanID)
			if err != nil {
				return mapNotFound(err, "loan")
			}
			result = current
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to return loan: %w", err)
		}
		result = l
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.Return", err)
		return nil, err
	}

	if result.LateFee != nil {
		logger.Info("Loan returned late", "loanID", loanID, "fee", result.LateFee.String())
	}
	logger.ExitMethod("loanService.Return", "status", result.Status)
	return result, nil
}

func (s *loanService) Get(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (*domain.Loan, error) {
	l, err := s.repos.Loans.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "loan")
	}
	if actingMemberID != nil && l.MemberID != *actingMemberID {
		return nil, fmt.Errorf("%w: loan", ErrNotFound)
	}
	return l, nil
}

func (s *loanService) Search(ctx context.Context, f repository.LoanFilter) ([]domain.Loan, int32, error) {
	logger.EnterMethod("loanService.Search")

	f.Page, f.PageSize = repository.NormalizePage(f.Page, f.PageSize)
	list, total, err := s.repos.Loans.Search(ctx, f)
	if err != nil {
		logger.ExitMethodWithError("loanService.Search", err)
		return nil, 0, fmt.Errorf("failed to search loans: %w", err)
	}

	logger.ExitMethod("loanService.Search", "count", len(list), "total", total)
	return list, total, nil
}

func (s *loanService) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	list, err := s.repos.Loans.ListOverdue(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	return list, nil
}
