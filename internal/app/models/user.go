package models

import (
	"time"
)

// User is a member of the user directory
type User struct {
	ID           string    `json:"id" db:"id" example:"5d1c0c55-4f3a-4a57-9d55-0c8f0d9f2f10"`
	Name         string    `json:"name" db:"name" example:"Айгерим"`
	Email        string    `json:"email" db:"email" example:"student@school.kz"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         RoleType  `json:"role" db:"role" example:"student"`
	Avatar       string    `json:"avatar,omitempty" db:"avatar"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// IsAdmin reports whether the user may use admin endpoints
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
