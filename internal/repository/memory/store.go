// Package memory is an in-process implementation of the repository contracts.
// Transactions take a single writer lock and work on a copy of the data that
// replaces the live state only when the unit of work succeeds.
package memory

import (
	"context"
	"sync"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"

	"github.com/google/uuid"
)

type data struct {
	tools        map[uuid.UUID]domain.Tool
	members      map[uuid.UUID]domain.Member
	reservations map[uuid.UUID]domain.Reservation
	loans        map[uuid.UUID]domain.Loan
}

func newData() *data {
	return &data{
		tools:        make(map[uuid.UUID]domain.Tool),
		members:      make(map[uuid.UUID]domain.Member),
		reservations: make(map[uuid.UUID]domain.Reservation),
		loans:        make(map[uuid.UUID]domain.Loan),
	}
}

func (d *data) clone() *data {
	c := &data{
		tools:        make(map[uuid.UUID]domain.Tool, len(d.tools)),
		members:      make(map[uuid.UUID]domain.Member, len(d.members)),
		reservations: make(map[uuid.UUID]domain.Reservation, len(d.reservations)),
		loans:        make(map[uuid.UUID]domain.Loan, len(d.loans)),
	}
	for k, v := range d.tools {
		c.tools[k] = v
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.reservations {
		c.reservations[k] = copyReservation(v)
	}
	for k, v := range d.loans {
		c.loans[k] = copyLoan(v)
	}
	return c
}

type Store struct {
	// writer serializes every mutation, transactional or not.
	writer sync.Mutex
	mu     sync.RWMutex
	state  *data
}

func NewStore() *Store {
	return &Store{state: newData()}
}

// Repositories returns repositories that read and write the live state.
func (s *Store) Repositories() repository.Repositories {
	return s.view(nil)
}

func (s *Store) view(tx *data) repository.Repositories {
	v := &view{store: s, tx: tx}
	return repository.Repositories{
		Tools:        &toolRepository{v},
		Members:      &memberRepository{v},
		Reservations: &reservationRepository{v},
		Loans:        &loanRepository{v},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writer.Lock()
	defer s.writer.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s.view(snapshot)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = snapshot
	s.mu.Unlock()
	return nil
}

// AddTool inserts or replaces a catalog entry.
func (s *Store) AddTool(t domain.Tool) {
	s.writer.Lock()
	defer s.writer.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tools[t.ID] = t
}

// AddMember inserts or replaces a member.
func (s *Store) AddMember(m domain.Member) {
	s.writer.Lock()
	defer s.writer.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.members[m.ID] = m
}

// view routes reads and writes either to a transaction snapshot or to the
// live state.
type view struct {
	store *Store
	tx    *data
}

func (v *view) read(fn func(d *data) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

func (v *view) write(fn func(d *data) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.writer.Lock()
	defer v.store.writer.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func copyReservation(r domain.Reservation) domain.Reservation {
	r.Items = append([]domain.ReservationItem(nil), r.Items...)
	return r
}

func copyLoan(l domain.Loan) domain.Loan {
	l.Items = append([]domain.LoanItem(nil), l.Items...)
	if l.ReturnedAt != nil {
		t := *l.ReturnedAt
		l.ReturnedAt = &t
	}
	if l.LateFee != nil {
		f := *l.LateFee
		l.LateFee = &f
	}
	return l
}

func paginate[T any](items []T, page, pageSize int32) []T {
	page, pageSize = repository.NormalizePage(page, pageSize)
	offset := int((page - 1) * pageSize)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + int(pageSize)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
