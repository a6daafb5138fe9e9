package storage

import (
	"testing"
	"time"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// UserTestSuite provides a test suite for credential operations
type UserTestSuite struct {
	suite.Suite
	db *DB
}

func (suite *UserTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
}

func (suite *UserTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *UserTestSuite) TestCreateUser() {
	hash, err := auth.HashPassword("pw1")
	require.NoError(suite.T(), err)

	user, err := suite.db.CreateUser("alice", hash)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)
	assert.NotZero(suite.T(), user.ID)
	assert.NotEqual(suite.T(), "pw1", user.PasswordHash, "plaintext must never be stored")
}

func (suite *UserTestSuite) TestDuplicateUsername() {
	hash, err := auth.HashPassword("pw1")
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateUser("alice", hash)
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateUser("alice", hash)
	assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)

	// Cardinality for the username stays 1
	count, err := suite.db.UserCount()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *UserTestSuite) TestAuthenticate() {
	hash, err := auth.HashPassword("pw1")
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateUser("alice", hash)
	require.NoError(suite.T(), err)

	user, err := suite.db.Authenticate("alice", "pw1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "alice", user.Username)

	// Wrong password and unknown username fail with the same error
	_, err = suite.db.Authenticate("alice", "pw2")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
	_, err = suite.db.Authenticate("nobody", "pw1")
	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
}

// EntryTestSuite provides a test suite for entry operations
type EntryTestSuite struct {
	suite.Suite
	db    *DB
	alice *models.User
	bob   *models.User
}

func (suite *EntryTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	hash, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err)

	suite.alice, err = db.CreateUser("alice", hash)
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser("bob", hash)
	require.NoError(suite.T(), err)
}

func (suite *EntryTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *EntryTestSuite) TestCreateEntry() {
	entry, err := suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 12.50, "lunch", time.Time{})
	require.NoError(suite.T(), err)

	assert.NotZero(suite.T(), entry.ID)
	assert.Equal(suite.T(), models.TypeExpense, entry.Type)
	assert.Equal(suite.T(), "food", entry.Category)
	assert.Equal(suite.T(), 12.50, entry.Amount)
	assert.Equal(suite.T(), "lunch", entry.Comment)
	assert.Equal(suite.T(), suite.alice.ID, entry.UserID)
	assert.Less(suite.T(), time.Since(entry.Date), 5*time.Second, "zero date should be stamped with server time")
}

func (suite *EntryTestSuite) TestListEntriesNewestFirst() {
	base := time.Now().Add(-time.Hour)

	_, err := suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 5.00, "coffee", base)
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "transport", 20.00, "bus", base.Add(time.Minute))
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 15.00, "snack", base.Add(2*time.Minute))
	require.NoError(suite.T(), err)

	entries, err := suite.db.ListEntries(suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 3)

	assert.Equal(suite.T(), "snack", entries[0].Comment)
	assert.Equal(suite.T(), "bus", entries[1].Comment)
	assert.Equal(suite.T(), "coffee", entries[2].Comment)
}

func (suite *EntryTestSuite) TestListEntriesSameTimestamp() {
	now := time.Now()

	e1, err := suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 10.00, "first", now)
	require.NoError(suite.T(), err)
	e2, err := suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 20.00, "second", now)
	require.NoError(suite.T(), err)

	// Equal timestamps fall back to insert order, newest first
	entries, err := suite.db.ListEntries(suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), e2.ID, entries[0].ID)
	assert.Equal(suite.T(), e1.ID, entries[1].ID)
}

func (suite *EntryTestSuite) TestListEntriesScopedToOwner() {
	_, err := suite.db.CreateEntry(suite.alice.ID, models.TypeIncome, "salary", 1000, "", time.Time{})
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateEntry(suite.bob.ID, models.TypeExpense, "rent", 500, "", time.Time{})
	require.NoError(suite.T(), err)

	aliceEntries, err := suite.db.ListEntries(suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), aliceEntries, 1)
	assert.Equal(suite.T(), "salary", aliceEntries[0].Category)

	empty, err := suite.db.ListEntries(suite.alice.ID + suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), empty)
}

func (suite *EntryTestSuite) TestDeleteEntry() {
	entry, err := suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 10, "", time.Time{})
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.DeleteEntry(suite.alice.ID, entry.ID))

	_, err = suite.db.GetEntry(entry.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	// Second delete of the same entry
	err = suite.db.DeleteEntry(suite.alice.ID, entry.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *EntryTestSuite) TestDeleteEntryForbidden() {
	entry, err := suite.db.CreateEntry(suite.bob.ID, models.TypeExpense, "rent", 500, "", time.Time{})
	require.NoError(suite.T(), err)

	err = suite.db.DeleteEntry(suite.alice.ID, entry.ID)
	assert.ErrorIs(suite.T(), err, ErrForbidden)

	// The entry is untouched and still visible to its owner
	bobEntries, err := suite.db.ListEntries(suite.bob.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), bobEntries, 1)
	assert.Equal(suite.T(), entry.ID, bobEntries[0].ID)
}

func (suite *EntryTestSuite) TestDeleteEntryNotFound() {
	err := suite.db.DeleteEntry(suite.alice.ID, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// AggregationTestSuite provides a test suite for totals and category sums
type AggregationTestSuite struct {
	suite.Suite
	db    *DB
	alice *models.User
	bob   *models.User
}

func (suite *AggregationTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	hash, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err)

	suite.alice, err = db.CreateUser("alice", hash)
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser("bob", hash)
	require.NoError(suite.T(), err)
}

func (suite *AggregationTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *AggregationTestSuite) TestTotalsEmpty() {
	totals, err := suite.db.GetTotals(suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), totals.IncomeSum)
	assert.Zero(suite.T(), totals.ExpenseSum)
	assert.Zero(suite.T(), totals.Balance)
}

func (suite *AggregationTestSuite) TestTotals() {
	_, err := suite.db.CreateEntry(suite.alice.ID, models.TypeIncome, "salary", 1000, "", time.Time{})
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "rent", 200, "", time.Time{})
	require.NoError(suite.T(), err)

	totals, err := suite.db.GetTotals(suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1000.0, totals.IncomeSum)
	assert.Equal(suite.T(), 200.0, totals.ExpenseSum)
	assert.Equal(suite.T(), 800.0, totals.Balance)
}

func (suite *AggregationTestSuite) TestExpenseMovesTotalsExactly() {
	before, err := suite.db.GetTotals(suite.alice.ID)
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateEntry(suite.alice.ID, models.TypeExpense, "food", 12.5, "", time.Time{})
	require.NoError(suite.T(), err)

	after, err := suite.db.GetTotals(suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), before.ExpenseSum+12.5, after.ExpenseSum)
	assert.Equal(suite.T(), before.Balance-12.5, after.Balance)
	assert.Equal(suite.T(), before.IncomeSum, after.IncomeSum)
}

func (suite *AggregationTestSuite) TestTotalsScopedToOwner() {
	_, err := suite.db.CreateEntry(suite.bob.ID, models.TypeIncome, "salary", 5000, "", time.Time{})
	require.NoError(suite.T(), err)

	totals, err := suite.db.GetTotals(suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), totals.IncomeSum)
}

func (suite *AggregationTestSuite) TestCategoryTotals() {
	seed := []struct {
		entryType string
		category  string
		amount    float64
	}{
		{models.TypeExpense, "food", 10},
		{models.TypeExpense, "food", 15},
		{models.TypeExpense, "transport", 30},
		{models.TypeExpense, "Food", 7}, // case-sensitive: distinct from "food"
		{models.TypeIncome, "salary", 1000},
	}
	for _, s := range seed {
		_, err := suite.db.CreateEntry(suite.alice.ID, s.entryType, s.category, s.amount, "", time.Time{})
		require.NoError(suite.T(), err)
	}

	expenses, err := suite.db.GetCategoryTotals(suite.alice.ID, models.TypeExpense)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 3)

	byCategory := make(map[string]float64, len(expenses))
	for _, ct := range expenses {
		byCategory[ct.Category] = ct.Total
	}
	assert.Equal(suite.T(), 25.0, byCategory["food"])
	assert.Equal(suite.T(), 30.0, byCategory["transport"])
	assert.Equal(suite.T(), 7.0, byCategory["Food"])
	assert.NotContains(suite.T(), byCategory, "salary", "income categories are absent from the expense breakdown")

	// Largest total comes first
	assert.Equal(suite.T(), "transport", expenses[0].Category)

	incomes, err := suite.db.GetCategoryTotals(suite.alice.ID, models.TypeIncome)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), incomes, 1)
	assert.Equal(suite.T(), "salary", incomes[0].Category)
	assert.Equal(suite.T(), 1000.0, incomes[0].Total)
}

func (suite *AggregationTestSuite) TestCategoryTotalsEmpty() {
	totals, err := suite.db.GetCategoryTotals(suite.alice.ID, models.TypeExpense)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), totals)
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db   *DB
	user *models.User
}

func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	hash, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err, "failed to hash password")

	user, err := suite.db.CreateUser("testuser", hash)
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(token, suite.user.ID, time.Now().Add(30*24*time.Hour))
	require.NoError(suite.T(), err)

	sessionUser, err := suite.db.ValidateSession(token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", sessionUser.Username)
}

func (suite *SessionTestSuite) TestValidateUnknownToken() {
	_, err := suite.db.ValidateSession("no-such-token")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestValidateExpiredSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(token, suite.user.ID, time.Now().Add(-time.Hour))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(token)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestRenewSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(token, suite.user.ID, time.Now().Add(30*24*time.Hour))
	require.NoError(suite.T(), err)

	time.Sleep(10 * time.Millisecond)

	originalInfo, err := suite.db.ValidateSessionWithInfo(token)
	require.NoError(suite.T(), err)

	err = suite.db.RenewSession(token, time.Now().Add(60*24*time.Hour))
	require.NoError(suite.T(), err)

	updatedInfo, err := suite.db.ValidateSessionWithInfo(token)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), updatedInfo.LastActivity.After(originalInfo.LastActivity),
		"LastActivity should advance on renewal")
	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should extend on renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(token, suite.user.ID, time.Now().Add(30*24*time.Hour))
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.DeleteSession(token))

	_, err = suite.db.ValidateSession(token)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	// Deleting again is a no-op, not an error
	assert.NoError(suite.T(), suite.db.DeleteSession(token))
}

func (suite *SessionTestSuite) TestPurgeExpiredSessions() {
	live, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	stale, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.CreateSession(live, suite.user.ID, time.Now().Add(time.Hour)))
	require.NoError(suite.T(), suite.db.CreateSession(stale, suite.user.ID, time.Now().Add(-time.Hour)))

	require.NoError(suite.T(), suite.db.PurgeExpiredSessions())

	_, err = suite.db.ValidateSession(live)
	assert.NoError(suite.T(), err)
	_, err = suite.db.ValidateSession(stale)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// Test suite runners
func TestUserSuite(t *testing.T) {
	suite.Run(t, new(UserTestSuite))
}

func TestEntrySuite(t *testing.T) {
	suite.Run(t, new(EntryTestSuite))
}

func TestAggregationSuite(t *testing.T) {
	suite.Run(t, new(AggregationTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
