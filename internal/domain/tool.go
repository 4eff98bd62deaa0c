package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tool is the catalog view the booking engine reads. Catalog management owns
// the record; IsAvailable is the manual in-service switch and is independent of
// whether the tool is currently booked.
type Tool struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	CategoryID  uuid.UUID       `json:"category_id"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
	IsAvailable bool            `json:"is_available"`
	CreatedOn   time.Time       `json:"created_on"`
	DeletedOn   *time.Time      `json:"deleted_on,omitempty"`
}

func (t *Tool) IsDeleted() bool {
	return t.DeletedOn != nil
}

// Bookable reports whether the tool may take part in a booking at all,
// regardless of its calendar.
func (t *Tool) Bookable() bool {
	return !t.IsDeleted() && t.IsAvailable
}
