package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"finance-tracker/internal/auth"
	"finance-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func date(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// DBTestSuite provides a test suite for expense operations
type DBTestSuite struct {
	suite.Suite
	db    *DB
	ctx   context.Context
	alice *models.User
	bob   *models.User
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	suite.alice, err = db.CreateUser(suite.ctx, "alice", "alice@example.com", "hash")
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser(suite.ctx, "bob", "bob@example.com", "hash")
	require.NoError(suite.T(), err)
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *DBTestSuite) addExpense(user *models.User, desc string, amount float64, category, day string) int64 {
	id, err := suite.db.CreateExpense(suite.ctx, &models.Expense{
		UserID:      user.ID,
		Description: desc,
		Amount:      amount,
		Category:    category,
		Date:        date(day),
	})
	require.NoError(suite.T(), err, "failed to create expense: %s", desc)
	return id
}

func (suite *DBTestSuite) TestCreateExpense() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	e, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Lunch", e.Description)
	assert.Equal(suite.T(), 12.50, e.Amount)
	assert.Equal(suite.T(), "Food & Dining", e.Category)
	assert.Equal(suite.T(), "2024-03-01", e.DateString())
	assert.Equal(suite.T(), suite.alice.ID, e.UserID)
	assert.False(suite.T(), e.CreatedAt.IsZero(), "created_at should be set")
}

func (suite *DBTestSuite) TestCreateExpenseRejectedByConstraints() {
	tests := []struct {
		name    string
		expense models.Expense
	}{
		{"zero amount", models.Expense{UserID: suite.alice.ID, Description: "x", Amount: 0, Category: "Other", Date: date("2024-01-01")}},
		{"negative amount", models.Expense{UserID: suite.alice.ID, Description: "x", Amount: -1, Category: "Other", Date: date("2024-01-01")}},
		{"unknown category", models.Expense{UserID: suite.alice.ID, Description: "x", Amount: 1, Category: "Gambling", Date: date("2024-01-01")}},
		{"blank description", models.Expense{UserID: suite.alice.ID, Description: "  ", Amount: 1, Category: "Other", Date: date("2024-01-01")}},
		{"unknown user", models.Expense{UserID: 9999, Description: "x", Amount: 1, Category: "Other", Date: date("2024-01-01")}},
		{"amount above bound", models.Expense{UserID: suite.alice.ID, Description: "x", Amount: models.MaxAmount * 10, Category: "Other", Date: date("2024-01-01")}},
		{"infinite amount", models.Expense{UserID: suite.alice.ID, Description: "x", Amount: math.Inf(1), Category: "Other", Date: date("2024-01-01")}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.db.CreateExpense(suite.ctx, &tt.expense)
			assert.Error(suite.T(), err)
		})
	}

	count, err := suite.db.CountExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)
}

func (suite *DBTestSuite) TestUpdateExpenseAmountBound() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	err := suite.db.UpdateExpense(suite.ctx, &models.Expense{
		ID:          id,
		UserID:      suite.alice.ID,
		Description: "Lunch",
		Amount:      math.Inf(1),
		Category:    "Food & Dining",
		Date:        date("2024-03-01"),
	})
	assert.Error(suite.T(), err)

	// The largest accepted amount still fits.
	suite.addExpense(suite.alice, "Yacht", models.MaxAmount, "Travel", "2024-03-02")

	e, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 12.50, e.Amount)
}

func (suite *DBTestSuite) TestListExpenses() {
	suite.addExpense(suite.alice, "Bus", 20.00, "Transportation", "2024-03-01")
	suite.addExpense(suite.alice, "Coffee", 5.00, "Food & Dining", "2024-03-03")
	suite.addExpense(suite.alice, "Snack", 15.00, "Food & Dining", "2024-03-03")
	suite.addExpense(suite.bob, "Not mine", 99.00, "Other", "2024-03-04")

	result, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), result, 3, "expected only alice's expenses")

	// Same date: the later insert comes first.
	assert.Equal(suite.T(), "Snack", result[0].Description)
	assert.Equal(suite.T(), "Coffee", result[1].Description)
	assert.Equal(suite.T(), "Bus", result[2].Description)
}

func (suite *DBTestSuite) TestUpdateExpenseInPlace() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	err := suite.db.UpdateExpense(suite.ctx, &models.Expense{
		ID: id, UserID: suite.alice.ID, Description: "Dinner", Amount: 20.00, Category: "Entertainment", Date: date("2024-03-02"),
	})
	require.NoError(suite.T(), err)

	e, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Dinner", e.Description)
	assert.Equal(suite.T(), 20.00, e.Amount)
	assert.Equal(suite.T(), "Entertainment", e.Category)
	assert.Equal(suite.T(), "2024-03-02", e.DateString())

	count, err := suite.db.CountExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *DBTestSuite) TestUpdateExpenseOwnedByOtherUser() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	err := suite.db.UpdateExpense(suite.ctx, &models.Expense{
		ID: id, UserID: suite.bob.ID, Description: "Hijacked", Amount: 1, Category: "Other", Date: date("2024-03-01"),
	})
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	e, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Lunch", e.Description)
	assert.Equal(suite.T(), 12.50, e.Amount)
}

func (suite *DBTestSuite) TestUpdateMissingExpense() {
	err := suite.db.UpdateExpense(suite.ctx, &models.Expense{
		ID: 42, UserID: suite.alice.ID, Description: "x", Amount: 1, Category: "Other", Date: date("2024-03-01"),
	})
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestDeleteExpense() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	// Bob cannot delete it.
	assert.ErrorIs(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.bob.ID, id), ErrNotFound)
	_, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	require.NoError(suite.T(), err, "expense should survive a foreign delete")

	require.NoError(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.alice.ID, id))
	_, err = suite.db.GetExpense(suite.ctx, suite.alice.ID, id)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	assert.ErrorIs(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.alice.ID, id), ErrNotFound)
}

func (suite *DBTestSuite) TestGetExpenseOfOtherUser() {
	id := suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")

	_, err := suite.db.GetExpense(suite.ctx, suite.bob.ID, id)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *DBTestSuite) TestSumExpenses() {
	suite.addExpense(suite.alice, "Jan", 10, "Other", "2024-01-31")
	suite.addExpense(suite.alice, "Feb 1", 20, "Other", "2024-02-01")
	suite.addExpense(suite.alice, "Feb 29", 30, "Other", "2024-02-29")
	suite.addExpense(suite.alice, "Mar", 40, "Other", "2024-03-01")
	suite.addExpense(suite.bob, "Bob", 1000, "Other", "2024-02-10")

	tests := []struct {
		name     string
		from, to time.Time
		want     float64
	}{
		{"unbounded", time.Time{}, time.Time{}, 100},
		{"from only", date("2024-02-01"), time.Time{}, 90},
		{"to only", time.Time{}, date("2024-02-01"), 10},
		{"half open month", date("2024-02-01"), date("2024-03-01"), 50},
		{"empty range", date("2025-01-01"), date("2025-02-01"), 0},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			got, err := suite.db.SumExpenses(suite.ctx, suite.alice.ID, tt.from, tt.to)
			require.NoError(suite.T(), err)
			assert.InDelta(suite.T(), tt.want, got, 1e-9)
		})
	}
}

func (suite *DBTestSuite) TestCategoryTotals() {
	suite.addExpense(suite.alice, "Lunch", 12.50, "Food & Dining", "2024-03-01")
	suite.addExpense(suite.alice, "Dinner", 30.00, "Food & Dining", "2024-03-02")
	suite.addExpense(suite.alice, "Train", 50.00, "Transportation", "2024-03-02")
	suite.addExpense(suite.alice, "Book", 8.00, "Education", "2024-03-03")
	suite.addExpense(suite.bob, "Bob", 500.00, "Travel", "2024-03-03")

	totals, err := suite.db.CategoryTotals(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), []models.CategoryTotal{
		{Category: "Transportation", Total: 50.00},
		{Category: "Food & Dining", Total: 42.50},
		{Category: "Education", Total: 8.00},
	}, totals)
}

func (suite *DBTestSuite) TestCategoryTotalsEmpty() {
	totals, err := suite.db.CategoryTotals(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), totals)
	assert.Empty(suite.T(), totals)
}

// UserTestSuite provides a test suite for user operations
type UserTestSuite struct {
	suite.Suite
	db  *DB
	ctx context.Context
}

// SetupTest runs before each test
func (suite *UserTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *UserTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *UserTestSuite) TestCreateAndGetUser() {
	user, err := suite.db.CreateUser(suite.ctx, "alice", "alice@example.com", "hash")
	require.NoError(suite.T(), err)
	assert.NotZero(suite.T(), user.ID)
	assert.Equal(suite.T(), "alice@example.com", user.Email)

	byName, err := suite.db.GetUserByUsername(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, byName.ID)
	assert.Equal(suite.T(), "hash", byName.PasswordHash)
}

func (suite *UserTestSuite) TestGetUnknownUser() {
	_, err := suite.db.GetUserByUsername(suite.ctx, "nobody")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.db.GetUserByID(suite.ctx, 12345)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *UserTestSuite) TestUniqueness() {
	_, err := suite.db.CreateUser(suite.ctx, "alice", "alice@example.com", "hash")
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateUser(suite.ctx, "alice", "other@example.com", "hash")
	assert.Error(suite.T(), err, "duplicate username must be rejected")

	_, err = suite.db.CreateUser(suite.ctx, "alice2", "alice@example.com", "hash")
	assert.Error(suite.T(), err, "duplicate email must be rejected")

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)

	exists, err := suite.db.UsernameExists(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)

	exists, err = suite.db.EmailExists(suite.ctx, "nobody@example.com")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists)
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	user *models.User
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	// Create a test user
	password, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err, "failed to hash password")

	user, err := suite.db.CreateUser(suite.ctx, "testuser", "test@example.com", password)
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, expiresAt)
	require.NoError(suite.T(), err)

	// Validate the session
	sessionUser, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", sessionUser.Username)
	assert.Equal(suite.T(), suite.user.ID, sessionUser.ID)
}

func (suite *SessionTestSuite) TestValidateSessionWithInfo() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, expiresAt)
	require.NoError(suite.T(), err)

	// Get session info
	info, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", info.User.Username)

	// Check that last_activity is recent
	timeSinceActivity := time.Since(info.LastActivity)
	assert.Less(suite.T(), timeSinceActivity, 5*time.Second, "LastActivity should be recent")
}

func (suite *SessionTestSuite) TestExpiredSessionIsInvalid() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(-time.Minute))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestRenewSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	originalExpiry := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, originalExpiry)
	require.NoError(suite.T(), err)

	// Wait a moment to ensure timestamps differ
	time.Sleep(10 * time.Millisecond)

	// Get original session info
	originalInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	// Renew the session
	newExpiry := time.Now().Add(60 * 24 * time.Hour)
	err = suite.db.RenewSession(suite.ctx, token, newExpiry)
	require.NoError(suite.T(), err)

	// Get updated session info
	updatedInfo, err := suite.db.ValidateSessionWithInfo(suite.ctx, token)
	require.NoError(suite.T(), err)

	// Verify last_activity was updated
	assert.True(suite.T(), updatedInfo.LastActivity.After(originalInfo.LastActivity),
		"LastActivity should be updated after renewal")

	// Verify expires_at was updated
	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, expiresAt)
	require.NoError(suite.T(), err)

	// Verify session exists
	_, err = suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err, "session should exist before deletion")

	// Delete session
	err = suite.db.DeleteSession(suite.ctx, token)
	require.NoError(suite.T(), err)

	// Verify session is gone
	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.Error(suite.T(), err, "expected error after deleting session")
}

func (suite *SessionTestSuite) TestCleanExpiredSessions() {
	live, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	stale, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, live, suite.user.ID, time.Now().Add(time.Hour)))
	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, stale, suite.user.ID, time.Now().Add(-time.Hour)))

	removed, err := suite.db.CleanExpiredSessions(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), removed)

	_, err = suite.db.ValidateSession(suite.ctx, live)
	assert.NoError(suite.T(), err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	_, err = db.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must keep existing data.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.UserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// Test suite runners
func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestUserSuite(t *testing.T) {
	suite.Run(t, new(UserTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
