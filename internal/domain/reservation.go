package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusCancelled, ReservationStatusCompleted:
		return true
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusCompleted
}

// ParseReservationStatus accepts any letter case, e.g. "active" or "ACTIVE".
func ParseReservationStatus(v string) (ReservationStatus, error) {
	s := ReservationStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown reservation status %q", v)
	}
	return s, nil
}

type Reservation struct {
	ID       uuid.UUID         `json:"id"`
	MemberID uuid.UUID         `json:"member_id"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Status   ReservationStatus `json:"status"`
	IsPaid   bool              `json:"is_paid"`
	// TotalPrice is computed from the frozen item prices at booking time.
	TotalPrice decimal.Decimal   `json:"total_price"`
	Items      []ReservationItem `json:"items"`
	CreatedOn  time.Time         `json:"created_on"`
	UpdatedOn  time.Time         `json:"updated_on"`
	DeletedOn  *time.Time        `json:"deleted_on,omitempty"`
}

type ReservationItem struct {
	ToolID      uuid.UUID       `json:"tool_id"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
}

func (r *Reservation) Window() Window {
	return Window{Start: r.Start, End: r.End}
}

func (r *Reservation) ToolIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ToolID
	}
	return ids
}
