package model

import "time"

// User roles.
const (
	RoleUser    = "user"
	RoleManager = "manager"
)

type User struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Username     string    `json:"username" bson:"username" validate:"required,min=2,max=60"`
	Email        string    `json:"email" bson:"email" validate:"required,email"`
	Number       string    `json:"number,omitempty" bson:"number,omitempty" validate:"omitempty,e164"`
	Role         string    `json:"role" bson:"role" validate:"required,oneof=user manager"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Principal is the authenticated caller resolved from the bearer token and
// injected into the request context by the auth middleware.
type Principal struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Number   string `json:"number,omitempty"`
	Role     string `json:"role"`
}

// IsManager reports whether the principal may perform manager-only
// operations (approve, merge, unmerge, reschedule).
func (p Principal) IsManager() bool {
	return p.Role == RoleManager
}
