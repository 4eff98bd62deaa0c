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

type reservationService struct {
	repos  repository.Repositories
	tx     repository.Transactor
	clock  Clock
	ids    IDGenerator
	policy BookingPolicy
}

func NewReservationService(
	repos repository.Repositories,
	tx repository.Transactor,
	clock Clock,
	ids IDGenerator,
	policy BookingPolicy,
) ReservationService {
	return &reservationService{
		repos:  repos,
		tx:     tx,
		clock:  clock,
		ids:    ids,
		policy: policy,
	}
}

func (s *reservationService) CreateBatch(ctx context.Context, memberID uuid.UUID, toolIDs []uuid.UUID, start, end time.Time) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.CreateBatch", "memberID", memberID, "tools", len(toolIDs), "start", start, "end", end)

	w, err := s.validateRequest(toolIDs, start, end)
	if err != nil {
		logger.ExitMethodWithError("reservationService.CreateBatch", err)
		return nil, err
	}

	member, err := s.repos.Members.GetByID(ctx, memberID)
	if err != nil {
		err = mapNotFound(err, "member")
		logger.ExitMethodWithError("reservationService.CreateBatch", err)
		return nil, err
	}
	if !member.CanBook() {
		err = fmt.Errorf("%w: member", ErrNotFound)
		logger.ExitMethodWithError("reservationService.CreateBatch", err)
		return nil, err
	}

	var created *domain.Reservation
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tools.LockForBooking(ctx, toolIDs); err != nil {
			return fmt.Errorf("failed to lock tools: %w", err)
		}

		check, err := checkWindow(ctx, repos, toolIDs, w, Exclusions{})
		if err != nil {
			return err
		}
		available, unavailable := check.split(toolIDs)
		if len(unavailable) > 0 {
			return &UnavailableError{AvailableIDs: available, UnavailableIDs: unavailable}
		}

		now := s.clock.Now()
		r := &domain.Reservation{
			ID:        s.ids.New(),
			MemberID:  memberID,
			Start:     w.Start,
			End:       w.End,
			Status:    domain.ReservationStatusActive,
			Items:     make([]domain.ReservationItem, len(toolIDs)),
			CreatedOn: now,
			UpdatedOn: now,
		}
		for i, id := range toolIDs {
			r.Items[i] = domain.ReservationItem{ToolID: id, PricePerDay: check.tools[id].PricePerDay}
		}
		r.TotalPrice = utils.TotalPrice(utils.ReservationItemPrices(r.Items), w)

		if err := repos.Reservations.Create(ctx, r); err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.CreateBatch", err)
		return nil, err
	}

	logger.Info("Reservation created", "reservationID", created.ID, "memberID", memberID, "tools", len(created.Items), "total", created.TotalPrice.String())
	logger.ExitMethod("reservationService.CreateBatch", "reservationID", created.ID)
	return created, nil
}

func (s *reservationService) validateRequest(toolIDs []uuid.UUID, start, end time.Time) (domain.Window, error) {
	if len(toolIDs) == 0 {
		return domain.Window{}, invalidArgument("at least one tool is required")
	}
	if s.policy.MaxBatchSize > 0 && len(toolIDs) > s.policy.MaxBatchSize {
		return domain.Window{}, invalidArgument(fmt.Sprintf("at most %d tools per reservation", s.policy.MaxBatchSize))
	}
	if dups := findDuplicates(toolIDs); len(dups) > 0 {
		return domain.Window{}, &DuplicateInBatchError{ToolIDs: dups}
	}

	w, err := domain.NewWindow(start, end)
	if err != nil {
		return domain.Window{}, invalidWindow(err.Error())
	}
	if w.Start.Before(s.clock.Now().Add(-s.policy.StartGrace)) {
		return domain.Window{}, invalidWindow("start lies in the past")
	}
	return w, nil
}

func (s *reservationService) Cancel(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (bool, error) {
	logger.EnterMethod("reservationService.Cancel", "reservationID", id)

	cancelled := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		r, err := repos.Reservations.GetByID(ctx, id)
		if err != nil {
			return mapNotFound(err, "reservation")
		}
		if actingMemberID != nil && r.MemberID != *actingMemberID {
			return fmt.Errorf("%w: reservation", ErrNotFound)
		}
		if r.Status != domain.ReservationStatusActive {
			return nil
		}

		err = repos.Reservations.UpdateStatus(ctx, id, domain.ReservationStatusActive, domain.ReservationStatusCancelled)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		cancelled = true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.Cancel", err)
		return false, err
	}

	if cancelled {
		logger.Info("Reservation cancelled", "reservationID", id)
	}
	logger.ExitMethod("reservationService.Cancel", "cancelled", cancelled)
	return cancelled, nil
}

func (s *reservationService) Get(ctx context.Context, id uuid.UUID, actingMemberID *uuid.UUID) (*domain.Reservation, error) {
	r, err := s.repos.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "reservation")
	}
	if actingMemberID != nil && r.MemberID != *actingMemberID {
		return nil, fmt.Errorf("%w: reservation", ErrNotFound)
	}
	return r, nil
}

func (s *reservationService) ListActiveForMember(ctx context.Context, memberID uuid.UUID) ([]domain.Reservation, error) {
	list, err := s.repos.Reservations.ListActiveByMember(ctx, memberID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return list, nil
}

func (s *reservationService) ListHistoryForMember(ctx context.Context, memberID uuid.UUID, page, pageSize int32) ([]domain.Reservation, int32, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)
	list, total, err := s.repos.Reservations.ListHistoryByMember(ctx, memberID, s.clock.Now(), page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reservation history: %w", err)
	}
	return list, total, nil
}

func (s *reservationService) Search(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, int32, error) {
	logger.EnterMethod("reservationService.Search")

	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		err := invalidWindow("to must be after from")
		logger.ExitMethodWithError("reservationService.Search", err)
		return nil, 0, err
	}
	f.Page, f.PageSize = repository.NormalizePage(f.Page, f.PageSize)

	list, total, err := s.repos.Reservations.Search(ctx, f)
	if err != nil {
		logger.ExitMethodWithError("reservationService.Search", err)
		return nil, 0, fmt.Errorf("failed to search reservations: %w", err)
	}

	logger.ExitMethod("reservationService.Search", "count", len(list), "total", total)
	return list, total, nil
}
