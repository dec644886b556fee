package models

import (
	"time"

	"github.com/folio-tracker/internal/types"
)

// Portfolio is a named collection of coin balances owned by a user
type Portfolio struct {
	ID          int64               `json:"id" db:"id"`
	UserID      string              `json:"user_id" db:"user_id"`
	Name        string              `json:"name" db:"name"`
	Kind        types.PortfolioKind `json:"kind" db:"kind"`
	IsActive    bool                `json:"is_active" db:"is_active"`
	Description *string             `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}
