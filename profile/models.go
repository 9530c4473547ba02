package profile

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

// Profile is the domain representation of a marketplace account.
// It mirrors the profiles table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Profile struct {
	ID           string
	FirstName    string
	LastName     string
	Profession   string
	Email        string
	PasswordHash string
	Type         Role
	Balance      decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains profile registration data supplied by callers.
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Profession string `json:"profession"`
	Type       Role   `json:"type"`
}

// LoginRequest contains profile login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
