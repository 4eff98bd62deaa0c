package domain

import (
	"time"

	"github.com/google/uuid"
)

type Member struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	IsActive  bool       `json:"is_active"`
	CreatedOn time.Time  `json:"created_on"`
	DeletedOn *time.Time `json:"deleted_on,omitempty"`
}

// CanBook reports whether the member may open new reservations or loans.
func (m *Member) CanBook() bool {
	return m.IsActive && m.DeletedOn == nil
}
