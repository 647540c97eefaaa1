package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"finance-tracker/internal/models"
)

const expenseColumns = "id, user_id, description, amount, category, date, created_at"

// CreateExpense inserts a new expense owned by e.UserID and returns its ID.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (user_id, description, amount, category, date) VALUES (?, ?, ?, ?, ?)",
		e.UserID, e.Description, e.Amount, e.Category, e.DateString(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return result.LastInsertId()
}

// GetExpense retrieves a single expense by ID if it belongs to userID.
func (db *DB) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListExpenses returns every expense of userID, newest first. Expenses on
// the same date are ordered by creation time.
func (db *DB) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}

	return expenses, rows.Err()
}

// UpdateExpense replaces description, amount, category and date of the
// expense e.ID. It returns ErrNotFound and changes nothing when the row
// does not exist or is owned by someone other than e.UserID.
func (db *DB) UpdateExpense(ctx context.Context, e *models.Expense) error {
	if err := db.checkOwnership(ctx, e.UserID, e.ID); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx,
		"UPDATE expenses SET description = ?, amount = ?, category = ?, date = ? WHERE id = ? AND user_id = ?",
		e.Description, e.Amount, e.Category, e.DateString(), e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	return nil
}

// DeleteExpense removes expense id if it belongs to userID.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	if err := db.checkOwnership(ctx, userID, id); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return nil
}

func (db *DB) checkOwnership(ctx context.Context, userID, id int64) error {
	ok, err := db.exists(ctx, "SELECT 1 FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("check ownership of expense %d: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// CountExpenses returns the number of expenses owned by userID.
func (db *DB) CountExpenses(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses WHERE user_id = ?", userID).Scan(&count)
	return count, err
}

// SumExpenses sums the amounts of userID dated in [from, to). A zero bound
// leaves that side open.
func (db *DB) SumExpenses(ctx context.Context, userID int64, from, to time.Time) (float64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COALESCE(SUM(amount), 0.0) FROM expenses WHERE user_id = ?")
	args := []any{userID}
	if !from.IsZero() {
		sb.WriteString(" AND date >= ?")
		args = append(args, from.Format(models.DateLayout))
	}
	if !to.IsZero() {
		sb.WriteString(" AND date < ?")
		args = append(args, to.Format(models.DateLayout))
	}

	var total float64
	if err := db.conn.QueryRowContext(ctx, sb.String(), args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum expenses: %w", err)
	}
	return total, nil
}

// CategoryTotals returns the summed amount per category of userID, largest
// first.
func (db *DB) CategoryTotals(ctx context.Context, userID int64) ([]models.CategoryTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, SUM(amount) AS total
		FROM expenses
		WHERE user_id = ?
		GROUP BY category
		ORDER BY total DESC, category ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []models.CategoryTotal{}
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (*models.Expense, error) {
	var e models.Expense
	var date string
	if err := s.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &date, &e.CreatedAt); err != nil {
		return nil, err
	}
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date of expense %d: %w", e.ID, err)
	}
	e.Date = d
	return &e, nil
}
