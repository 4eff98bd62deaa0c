package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusOpen     LoanStatus = "OPEN"
	LoanStatusReturned LoanStatus = "RETURNED"
	LoanStatusLate     LoanStatus = "LATE"
)

func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusOpen, LoanStatusReturned, LoanStatusLate:
		return true
	}
	return false
}

func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusReturned || s == LoanStatusLate
}

func ParseLoanStatus(v string) (LoanStatus, error) {
	s := LoanStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown loan status %q", v)
	}
	return s, nil
}

type Loan struct {
	ID            uuid.UUID  `json:"id"`
	MemberID      uuid.UUID  `json:"member_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	CheckedOutAt  time.Time  `json:"checked_out_at"`
	DueAt         time.Time  `json:"due_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	Status        LoanStatus `json:"status"`
	// LateFee is only ever set together with LoanStatusLate.
	LateFee    *decimal.Decimal `json:"late_fee,omitempty"`
	Notes      string           `json:"notes"`
	Items      []LoanItem       `json:"items"`
	TotalPrice decimal.Decimal  `json:"total_price"`
	CreatedOn  time.Time        `json:"created_on"`
	UpdatedOn  time.Time        `json:"updated_on"`
	DeletedOn  *time.Time       `json:"deleted_on,omitempty"`
}

type LoanItem struct {
	ToolID      uuid.UUID       `json:"tool_id"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
}

// EffectiveEnd is the instant the loan stops occupying its tools.
func (l *Loan) EffectiveEnd() time.Time {
	if l.ReturnedAt != nil {
		return *l.ReturnedAt
	}
	return l.DueAt
}

func (l *Loan) Window() Window {
	return Window{Start: l.CheckedOutAt, End: l.EffectiveEnd()}
}

func (l *Loan) ToolIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(l.Items))
	for i, it := range l.Items {
		ids[i] = it.ToolID
	}
	return ids
}
