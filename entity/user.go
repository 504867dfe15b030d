package entity

import (
	"net/http"
	"time"

	"keyadmin/lib/validate"
)

// AdminRole controls what an authenticated API user may do.
type AdminRole string

const (
	RoleViewer AdminRole = "viewer" // read-only dashboards
	RoleAdmin  AdminRole = "admin"  // may issue and delete keys
)

// User is an operator of the admin API, authenticated by bearer token.
type User struct {
	Username  string    `json:"username" bson:"username" validate:"required"`
	Name      string    `json:"name" bson:"name" validate:"omitempty"`
	Email     string    `json:"email" bson:"email" validate:"omitempty"`
	Token     string    `json:"token" bson:"token" validate:"required,min=1"`
	Role      AdminRole `json:"role" bson:"role"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (u *User) Bind(_ *http.Request) error {
	return validate.Struct(u)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
