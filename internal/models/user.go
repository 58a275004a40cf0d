// Package models contains the wire types exchanged with the backend.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a backend account. The client receives it as a profile.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id" yaml:"id"`
	Username  string         `gorm:"unique;not null" json:"username" yaml:"username"`
	Email     string         `gorm:"unique;not null" json:"email" yaml:"email"`
	Password  string         `gorm:"not null" json:"-" yaml:"-"`
	Provider  string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

// Profile is the user as returned by /api/users/me.
type Profile = User

// AuthResponse is returned by login, signup and the OAuth exchange.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdate is the body of PUT /api/users/me.
type ProfileUpdate struct {
	Username string `json:"username"`
}

// PasswordChange is the body of PUT /api/users/me/password.
type PasswordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}
