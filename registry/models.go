package registry

import (
	"time"
)

const DateLayout = "2006-01-02"

type Department struct {
	ID          int64     `json:"id"`
	PublicID    string    `json:"public_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Position struct {
	ID           int64     `json:"id"`
	PublicID     string    `json:"public_id"`
	Title        string    `json:"title"`
	DepartmentID int64     `json:"department_id"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Person struct {
	ID        int64     `json:"id"`
	PublicID  string    `json:"public_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Employment links a person to a position. Dates use DateLayout.
type Employment struct {
	ID         int64     `json:"id"`
	PersonID   int64     `json:"person_id"`
	PositionID int64     `json:"position_id"`
	StartDate  string    `json:"start_date"`
	EndDate    *string   `json:"end_date,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PersonInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
}

type DepartmentInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type PositionInput struct {
	Title        string `json:"title" validate:"required,max=100"`
	DepartmentID int64  `json:"department_id" validate:"required,gt=0"`
	Description  string `json:"description" validate:"max=1000"`
}

type EmploymentInput struct {
	PersonID   int64   `json:"person_id" validate:"required,gt=0"`
	PositionID int64   `json:"position_id" validate:"required,gt=0"`
	StartDate  string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive   *bool   `json:"is_active"`
}

func (in EmploymentInput) active() bool {
	if in.IsActive != nil {
		return *in.IsActive
	}
	return in.EndDate == nil
}

type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

type DepartmentHeadcount struct {
	DepartmentID int64  `json:"department_id"`
	Name         string `json:"name"`
	Active       int    `json:"active_employees"`
}

type Statistics struct {
	People           int                   `json:"people"`
	Departments      int                   `json:"departments"`
	Positions        int                   `json:"positions"`
	Employment       int                   `json:"employment"`
	ActiveEmployment int                   `json:"active_employment"`
	Headcount        []DepartmentHeadcount `json:"headcount"`
}
