package models

import "time"

// DateLayout is the storage and form format of an expense date.
const DateLayout = "2006-01-02"

// MaxAmount is the largest accepted expense amount. The expenses table
// enforces the same bound.
const MaxAmount = 1e12

// Categories is the fixed set of expense categories offered to users.
var Categories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Bills & Utilities",
	"Healthcare",
	"Education",
	"Travel",
	"Other",
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Expense represents a financial expense record.
type Expense struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// DateString returns the expense date in DateLayout.
func (e Expense) DateString() string {
	return e.Date.Format(DateLayout)
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CategoryTotal is the summed amount of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// Stats summarises a user's expenses.
type Stats struct {
	Total            float64         `json:"total"`
	Monthly          float64         `json:"monthly"`
	Weekly           float64         `json:"weekly"`
	ByCategory       []CategoryTotal `json:"by_category"`
	TransactionCount int             `json:"transaction_count"`
	Average          float64         `json:"average"`
}

// MonthTotal is one bucket of the monthly trend series.
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}
