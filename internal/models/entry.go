package models

import "time"

// Entry types. Anything else is rejected at the handler boundary.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Entry represents a single income or expense record owned by a user.
type Entry struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Amount   float64   `json:"amount"`
	Comment  string    `json:"comment"`
	Date     time.Time `json:"date"`
	UserID   int64     `json:"user_id"`
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a server-side login session.
type Session struct {
	Token        string    `json:"token"`
	UserID       int64     `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}
