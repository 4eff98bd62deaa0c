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

// checkoutPlan is a validated batch entry waiting for its availability check.
type checkoutPlan struct {
	memberID    uuid.UUID
	reservation *domain.Reservation
	toolIDs     []uuid.UUID
	window      domain.Window
}

func (p checkoutPlan) exclusions() Exclusions {
	if p.reservation == nil {
		return Exclusions{}
	}
	id := p.reservation.ID
	return Exclusions{ReservationID: &id}
}

func (s *loanService) CheckoutFromReservation(ctx context.Context, reservationID uuid.UUID, dueOverride *time.Time, actingMemberID *uuid.UUID) (*domain.Loan, error) {
	loans, err := s.CheckoutBatch(ctx, []CheckoutEntry{{ReservationID: &reservationID, Due: dueOverride}}, actingMemberID)
	if err != nil {
		return nil, err
	}
	return &loans[0], nil
}

func (s *loanService) CheckoutDirect(ctx context.Context, memberID uuid.UUID, toolIDs []uuid.UUID, due time.Time) (*domain.Loan, error) {
	loans, err := s.CheckoutBatch(ctx, []CheckoutEntry{{MemberID: memberID, ToolIDs: toolIDs, Due: &due}}, nil)
	if err != nil {
		return nil, err
	}
	return &loans[0], nil
}

func (s *loanService) CheckoutBatch(ctx context.Context, entries []CheckoutEntry, actingMemberID *uuid.UUID) ([]domain.Loan, error) {
	logger.EnterMethod("loanService.CheckoutBatch", "entries", len(entries))

	if len(entries) == 0 {
		err := invalidArgument("at least one checkout entry is required")
		logger.ExitMethodWithError("loanService.CheckoutBatch", err)
		return nil, err
	}
	if s.policy.MaxBatchSize > 0 && len(entries) > s.policy.MaxBatchSize {
		err := invalidArgument(fmt.Sprintf("at most %d entries per checkout batch", s.policy.MaxBatchSize))
		logger.ExitMethodWithError("loanService.CheckoutBatch", err)
		return nil, err
	}

	var loans []domain.Loan
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		now := s.clock.Now()

		plans := make([]checkoutPlan, 0, len(entries))
		var allTools []uuid.UUID
		for i, e := range entries {
			p, err := s.planEntry(ctx, repos, e, actingMemberID, now)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			plans = append(plans, p)
			allTools = append(allTools, p.toolIDs...)
		}
		if dups := findDuplicates(allTools); len(dups) > 0 {
			return &DuplicateInBatchError{ToolIDs: dups}
		}

		if err := repos.Tools.LockForBooking(ctx, allTools); err != nil {
			return fmt.Errorf("failed to lock tools: %w", err)
		}

		checks := make([]windowCheck, len(plans))
		var available, unavailable []uuid.UUID
		for i, p := range plans {
			check, err := checkWindow(ctx, repos, p.toolIDs, p.window, p.exclusions())
			if err != nil {
				return err
			}
			ok, blocked := check.split(p.toolIDs)
			available = append(available, ok...)
			unavailable = append(unavailable, blocked...)
			checks[i] = check
		}
		if len(unavailable) > 0 {
			return &UnavailableError{AvailableIDs: available, UnavailableIDs: unavailable}
		}

		loans = make([]domain.Loan, 0, len(plans))
		for i, p := range plans {
			l := s.buildLoan(p, checks[i], now)
			if err := repos.Loans.Create(ctx, l); err != nil {
				return fmt.Errorf("failed to create loan: %w", err)
			}
			if p.reservation != nil {
				err := repos.Reservations.UpdateStatus(ctx, p.reservation.ID, domain.ReservationStatusActive, domain.ReservationStatusCompleted)
				if errors.Is(err, repository.ErrStatusConflict) {
					return invalidState("reservation is no longer active")
				}
				if err != nil {
					return fmt.Errorf("failed to complete reservation: %w", err)
				}
			}
			loans = append(loans, *l)
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.CheckoutBatch", err)
		return nil, err
	}

	for _, l := range loans {
		logger.Info("Loan opened", "loanID", l.ID, "memberID", l.MemberID, "tools", len(l.Items), "due", l.DueAt)
	}
	logger.ExitMethod("loanService.CheckoutBatch", "loans", len(loans))
	return loans, nil
}

// planEntry validates one batch entry without touching availability.
func (s *loanService) planEntry(ctx context.Context, repos repository.Repositories, e CheckoutEntry, actingMemberID *uuid.UUID, now time.Time) (checkoutPlan, error) {
	if e.fromReservation() {
		return s.planFromReservation(ctx, repos, e, actingMemberID, now)
	}

	memberID := e.MemberID
	if actingMemberID != nil {
		memberID = *actingMemberID
	}
	if memberID == uuid.Nil {
		return checkoutPlan{}, invalidArgument("member is required")
	}
	if len(e.ToolIDs) == 0 {
		return checkoutPlan{}, invalidArgument("at least one tool is required")
	}
	if dups := findDuplicates(e.ToolIDs); len(dups) > 0 {
		return checkoutPlan{}, &DuplicateInBatchError{ToolIDs: dups}
	}
	if e.Due == nil {
		return checkoutPlan{}, invalidArgument("due date is required")
	}
	if !e.Due.After(now) {
		return checkoutPlan{}, invalidWindow("due must be in the future")
	}

	member, err := repos.Members.GetByID(ctx, memberID)
	if err != nil {
		return checkoutPlan{}, mapNotFound(err, "member")
	}
	if !member.CanBook() {
		return checkoutPlan{}, fmt.Errorf("%w: member", ErrNotFound)
	}

	return checkoutPlan{
		memberID: memberID,
		toolIDs:  e.ToolIDs,
		window:   domain.Window{Start: now, End: *e.Due},
	}, nil
}

func (s *loanService) planFromReservation(ctx context.Context, repos repository.Repositories, e CheckoutEntry, actingMemberID *uuid.UUID, now time.Time) (checkoutPlan, error) {
	r, err := repos.Reservations.GetByID(ctx, *e.ReservationID)
	if err != nil {
		return checkoutPlan{}, mapNotFound(err, "reservation")
	}
	if actingMemberID != nil && r.MemberID != *actingMemberID {
		return checkoutPlan{}, fmt.Errorf("%w: reservation", ErrNotFound)
	}
	if r.Status != domain.ReservationStatusActive {
		return checkoutPlan{}, invalidState(fmt.Sprintf("reservation is %s", r.Status))
	}
	if !r.Window().Contains(now) {
		return checkoutPlan{}, invalidWindow("checkout must happen within the reservation window")
	}

	due := r.End
	if e.Due != nil {
		due = *e.Due
	}
	if !due.After(now) {
		return checkoutPlan{}, invalidWindow("due must be in the future")
	}

	return checkoutPlan{
		memberID:    r.MemberID,
		reservation: r,
		toolIDs:     r.ToolIDs(),
		window:      domain.Window{Start: now, End: due},
	}, nil
}

func (s *loanService) buildLoan(p checkoutPlan, check windowCheck, now time.Time) *domain.Loan {
	l := &domain.Loan{
		ID:           s.ids.New(),
		MemberID:     p.memberID,
		CheckedOutAt: now,
		DueAt:        p.window.End,
		Status:       domain.LoanStatusOpen,
		Items:        make([]domain.LoanItem, len(p.toolIDs)),
		CreatedOn:    now,
		UpdatedOn:    now,
	}
	if p.reservation != nil {
		id := p.reservation.ID
		l.ReservationID = &id
		for i, it := range p.reservation.Items {
			l.Items[i] = domain.LoanItem{ToolID: it.ToolID, PricePerDay: it.PricePerDay}
		}
	} else {
		for i, id := range p.toolIDs {
			l.Items[i] = domain.LoanItem{ToolID: id, PricePerDay: check.tools[id].PricePerDay}
		}
	}
	l.TotalPrice = utils.TotalPrice(utils.LoanItemPrices(l.Items), p.window)
	return l
}
