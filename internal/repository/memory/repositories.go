package memory

import (
	"context"
	"sort"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
)

type toolRepository struct{ v *view }

func (r *toolRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tool, error) {
	var out *domain.Tool
	err := r.v.read(func(d *data) error {
		t, ok := d.tools[id]
		if !ok || t.IsDeleted() {
			return repository.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *toolRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Tool, error) {
	var out []domain.Tool
	err := r.v.read(func(d *data) error {
		seen := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if t, ok := d.tools[id]; ok {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (r *toolRepository) ListBookable(ctx context.Context) ([]domain.Tool, error) {
	var out []domain.Tool
	err := r.v.read(func(d *data) error {
		for _, t := range d.tools {
			if t.Bookable() {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// LockForBooking is satisfied by the store-wide writer lock held by WithinTx.
func (r *toolRepository) LockForBooking(ctx context.Context, ids []uuid.UUID) error {
	return ctx.Err()
}

type memberRepository struct{ v *view }

func (r *memberRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	var out *domain.Member
	err := r.v.read(func(d *data) error {
		m, ok := d.members[id]
		if !ok || m.DeletedOn != nil {
			return repository.ErrNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

type reservationRepository struct{ v *view }

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.v.write(func(d *data) error {
		d.reservations[res.ID] = copyReservation(*res)
		return nil
	})
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	var out *domain.Reservation
	err := r.v.read(func(d *data) error {
		res, ok := d.reservations[id]
		if !ok || res.DeletedOn != nil {
			return repository.ErrNotFound
		}
		c := copyReservation(res)
		out = &c
		return nil
	})
	return out, err
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.ReservationStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.v.write(func(d *data) error {
		res, ok := d.reservations[id]
		if !ok || res.DeletedOn != nil {
			return repository.ErrNotFound
		}
		if res.Status != from {
			return repository.ErrStatusConflict
		}
		res.Status = to
		res.UpdatedOn = time.Now().UTC()
		d.reservations[id] = res
		return nil
	})
}

func (r *reservationRepository) ActiveConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error) {
	wanted := make(map[uuid.UUID]bool, len(toolIDs))
	for _, id := range toolIDs {
		wanted[id] = true
	}

	hit := make(map[uuid.UUID]bool)
	err := r.v.read(func(d *data) error {
		for _, res := range d.reservations {
			if res.Status != domain.ReservationStatusActive || res.DeletedOn != nil {
				continue
			}
			if ignoreID != nil && res.ID == *ignoreID {
				continue
			}
			if !res.Window().Overlaps(w) {
				continue
			}
			for _, it := range res.Items {
				if wanted[it.ToolID] {
					hit[it.ToolID] = true
				}
			}
		}
		return nil
	})
	return keys(hit), err
}

func (r *reservationRepository) ListActiveByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]domain.Reservation, error) {
	out := []domain.Reservation{}
	err := r.v.read(func(d *data) error {
		for _, res := range d.reservations {
			if res.MemberID == memberID && res.DeletedOn == nil &&
				res.Status == domain.ReservationStatusActive && res.End.After(asOf) {
				out = append(out, copyReservation(res))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, err
}

func (r *reservationRepository) ListHistoryByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time, page, pageSize int32) ([]domain.Reservation, int32, error) {
	var all []domain.Reservation
	err := r.v.read(func(d *data) error {
		for _, res := range d.reservations {
			if res.MemberID != memberID || res.DeletedOn != nil {
				continue
			}
			if res.Status == domain.ReservationStatusActive && res.End.After(asOf) {
				continue
			}
			all = append(all, copyReservation(res))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.After(all[j].Start) })
	return paginate(all, page, pageSize), int32(len(all)), nil
}

func (r *reservationRepository) Search(ctx context.Context, f repository.ReservationFilter) ([]domain.Reservation, int32, error) {
	var all []domain.Reservation
	err := r.v.read(func(d *data) error {
		for _, res := range d.reservations {
			if res.DeletedOn != nil {
				continue
			}
			if f.MemberID != nil && res.MemberID != *f.MemberID {
				continue
			}
			if f.Status != nil && res.Status != *f.Status {
				continue
			}
			if f.From != nil && res.Start.Before(*f.From) {
				continue
			}
			if f.To != nil && !res.Start.Before(*f.To) {
				continue
			}
			all = append(all, copyReservation(res))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.After(all[j].Start) })
	return paginate(all, f.Page, f.PageSize), int32(len(all)), nil
}

type loanRepository struct{ v *view }

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.v.write(func(d *data) error {
		d.loans[l.ID] = copyLoan(*l)
		return nil
	})
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	var out *domain.Loan
	err := r.v.read(func(d *data) error {
		l, ok := d.loans[id]
		if !ok || l.DeletedOn != nil {
			return repository.ErrNotFound
		}
		c := copyLoan(l)
		out = &c
		return nil
	})
	return out, err
}

func (r *loanRepository) Return(ctx context.Context, l *domain.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.v.write(func(d *data) error {
		stored, ok := d.loans[l.ID]
		if !ok || stored.DeletedOn != nil {
			return repository.ErrNotFound
		}
		if stored.Status != domain.LoanStatusOpen {
			return repository.ErrStatusConflict
		}
		closed := copyLoan(*l)
		stored.Status = closed.Status
		stored.ReturnedAt = closed.ReturnedAt
		stored.LateFee = closed.LateFee
		stored.Notes = closed.Notes
		stored.UpdatedOn = closed.UpdatedOn
		d.loans[l.ID] = stored
		return nil
	})
}

func (r *loanRepository) OpenConflicts(ctx context.Context, toolIDs []uuid.UUID, w domain.Window, ignoreID *uuid.UUID) ([]uuid.UUID, error) {
	wanted := make(map[uuid.UUID]bool, len(toolIDs))
	for _, id := range toolIDs {
		wanted[id] = true
	}

	hit := make(map[uuid.UUID]bool)
	err := r.v.read(func(d *data) error {
		for _, l := range d.loans {
			if l.Status != domain.LoanStatusOpen || l.DeletedOn != nil {
				continue
			}
			if ignoreID != nil && l.ID == *ignoreID {
				continue
			}
			if !l.Window().Overlaps(w) {
				continue
			}
			for _, it := range l.Items {
				if wanted[it.ToolID] {
					hit[it.ToolID] = true
				}
			}
		}
		return nil
	})
	return keys(hit), err
}

func (r *loanRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	out := []domain.Loan{}
	err := r.v.read(func(d *data) error {
		for _, l := range d.loans {
			if l.Status == domain.LoanStatusOpen && l.DeletedOn == nil && l.DueAt.Before(asOf) {
				out = append(out, copyLoan(l))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, err
}

func (r *loanRepository) Search(ctx context.Context, f repository.LoanFilter) ([]domain.Loan, int32, error) {
	var all []domain.Loan
	err := r.v.read(func(d *data) error {
		for _, l := range d.loans {
			if l.DeletedOn != nil {
				continue
			}
			if f.MemberID != nil && l.MemberID != *f.MemberID {
				continue
			}
			if f.Status != nil && l.Status != *f.Status {
				continue
			}
			if f.OpenOnly && l.Status != domain.LoanStatusOpen {
				continue
			}
			if f.ToolID != nil && !hasTool(l, *f.ToolID) {
				continue
			}
			all = append(all, copyLoan(l))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckedOutAt.After(all[j].CheckedOutAt) })
	return paginate(all, f.Page, f.PageSize), int32(len(all)), nil
}

func hasTool(l domain.Loan, toolID uuid.UUID) bool {
	for _, it := range l.Items {
		if it.ToolID == toolID {
			return true
		}
	}
	return false
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
