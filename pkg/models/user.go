package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that owns uploaded files and API keys. Identity itself
// lives with the external provider; this row only anchors ownership.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
