package domain

import (
	"time"

	"github.com/google/uuid"
)

// RTO represents a registered training organisation, the tenant unit of the system.
type RTO struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRTO creates a new RTO with immutable pattern
func NewRTO(code, name, contactEmail string) RTO {
	now := time.Now()
	return RTO{
		ID:           uuid.New(),
		Code:         code,
		Name:         name,
		ContactEmail: contactEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
