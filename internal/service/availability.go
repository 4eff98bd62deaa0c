package service

import (
	"context"
	"errors"
	"fmt"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
)

type availabilityService struct {
	repos repository.Repositories
}

func NewAvailabilityService(repos repository.Repositories) AvailabilityService {
	return &availabilityService{repos: repos}
}

func (s *availabilityService) CheckWindow(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ex Exclusions) (map[uuid.UUID]bool, error) {
	logger.EnterMethod("availabilityService.CheckWindow", "tools", len(toolIDs), "start", w.Start, "end", w.End)

	if err := w.Validate(); err != nil {
		logger.ExitMethodWithError("availabilityService.CheckWindow", err)
		return nil, invalidWindow(err.Error())
	}

	check, err := checkWindow(ctx, s.repos, toolIDs, w, ex)
	if err != nil {
		logger.ExitMethodWithError("availabilityService.CheckWindow", err)
		return nil, err
	}

	logger.ExitMethod("availabilityService.CheckWindow")
	return check.free, nil
}

func (s *availabilityService) ListAvailableTools(ctx context.Context, w domain.Window) ([]domain.Tool, error) {
	logger.EnterMethod("availabilityService.ListAvailableTools", "start", w.Start, "end", w.End)

	if err := w.Validate(); err != nil {
		logger.ExitMethodWithError("availabilityService.ListAvailableTools", err)
		return nil, invalidWindow(err.Error())
	}

	tools, err := s.repos.Tools.ListBookable(ctx)
	if err != nil {
		logger.ExitMethodWithError("availabilityService.ListAvailableTools", err)
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if len(tools) == 0 {
		logger.ExitMethod("availabilityService.ListAvailableTools", "count", 0)
		return []domain.Tool{}, nil
	}

	ids := make([]uuid.UUID, len(tools))
	for i, t := range tools {
		ids[i] = t.ID
	}
	busy, err := conflicts(ctx, s.repos, ids, w, Exclusions{})
	if err != nil {
		logger.ExitMethodWithError("availabilityService.ListAvailableTools", err)
		return nil, err
	}

	free := make([]domain.Tool, 0, len(tools))
	for _, t := range tools {
		if !busy[t.ID] {
			free = append(free, t)
		}
	}

	logger.ExitMethod("availabilityService.ListAvailableTools", "count", len(free))
	return free, nil
}

// windowCheck is the outcome of one batched availability pass.
type windowCheck struct {
	free  map[uuid.UUID]bool
	tools map[uuid.UUID]domain.Tool
}

// split partitions ids, in their given order, into bookable and blocked ones.
func (c windowCheck) split(ids []uuid.UUID) (available, unavailable []uuid.UUID) {
	for _, id := range ids {
		if c.free[id] {
			available = append(available, id)
		} else {
			unavailable = append(unavailable, id)
		}
	}
	return available, unavailable
}

// checkWindow evaluates every id with one tool read and one conflict query per
// booking kind. Run it with transaction-scoped repositories when the result
// gates a write.
func checkWindow(ctx context.Context, repos repository.Repositories, toolIDs []uuid.UUID, w domain.Window, ex Exclusions) (windowCheck, error) {
	check := windowCheck{
		free:  make(map[uuid.UUID]bool, len(toolIDs)),
		tools: make(map[uuid.UUID]domain.Tool, len(toolIDs)),
	}
	if len(toolIDs) == 0 {
		return check, nil
	}

	ids := uniqueIDs(toolIDs)
	for _, id := range ids {
		check.free[id] = false
	}

	tools, err := repos.Tools.GetByIDs(ctx, ids)
	if err != nil {
		return check, fmt.Errorf("failed to load tools: %w", err)
	}

	candidates := make([]uuid.UUID, 0, len(tools))
	for _, t := range tools {
		check.tools[t.ID] = t
		if t.Bookable() {
			candidates = append(candidates, t.ID)
		}
	}
	if len(candidates) == 0 {
		return check, nil
	}

	busy, err := conflicts(ctx, repos, candidates, w, ex)
	if err != nil {
		return check, err
	}
	for _, id := range candidates {
		check.free[id] = !busy[id]
	}
	return check, nil
}

// conflicts returns the ids held by an active reservation or open loan over w.
func conflicts(ctx context.Context, repos repository.Repositories, ids []uuid.UUID, w domain.Window, ex Exclusions) (map[uuid.UUID]bool, error) {
	reserved, err := repos.Reservations.ActiveConflicts(ctx, ids, w, ex.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reservation conflicts: %w", err)
	}
	loaned, err := repos.Loans.OpenConflicts(ctx, ids, w, ex.LoanID)
	if err != nil {
		return nil, fmt.Errorf("failed to check loan conflicts: %w", err)
	}

	busy := make(map[uuid.UUID]bool, len(reserved)+len(loaned))
	for _, id := range reserved {
		busy[id] = true
	}
	for _, id := range loaned {
		busy[id] = true
	}
	return busy, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// mapNotFound turns a store miss into the service-level not-found error.
func mapNotFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
