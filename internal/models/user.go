package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an operator authenticated via OIDC.
type User struct {
	ID        uuid.UUID `json:"id"`
	Sub       string    `json:"sub"` // OIDC subject identifier
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnerKey identifies the user's live batch job.
func (u *User) OwnerKey() string {
	return u.ID.String()
}
