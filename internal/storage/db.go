package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the budget database.
type DB struct {
	conn *sql.DB
}

// NewDB opens the database at path and applies schema migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// open a second one.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser creates a new user with the given username and password hash.
// It fails with ErrDuplicateUsername if the username is already taken.
func (db *DB) CreateUser(username, passwordHash string) (*models.User, error) {
	if _, err := db.GetUserByUsername(username); err == nil {
		return nil, ErrDuplicateUsername
	}

	result, err := db.conn.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		// Backstop for races between the existence check and the insert.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Authenticate verifies a username/password pair. It fails uniformly with
// ErrInvalidCredentials whether the username is unknown or the password is
// wrong, so login failures leak nothing about which part was bad.
func (db *DB) Authenticate(username, password string) (*models.User, error) {
	user, err := db.GetUserByUsername(username)
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateEntry inserts a new entry owned by userID. A zero date is stamped
// with the current server time.
func (db *DB) CreateEntry(userID int64, entryType, category string, amount float64, comment string, date time.Time) (*models.Entry, error) {
	if date.IsZero() {
		date = time.Now()
	}
	result, err := db.conn.Exec(
		"INSERT INTO entries (type, category, amount, comment, date, user_id) VALUES (?, ?, ?, ?, ?, ?)",
		entryType, category, amount, comment, date, userID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetEntry(id)
}

// GetEntry retrieves a single entry by ID.
func (db *DB) GetEntry(id int64) (*models.Entry, error) {
	row := db.conn.QueryRow(
		"SELECT id, type, category, amount, comment, date, user_id FROM entries WHERE id = ?",
		id,
	)

	var e models.Entry
	if err := row.Scan(&e.ID, &e.Type, &e.Category, &e.Amount, &e.Comment, &e.Date, &e.UserID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListEntries returns all entries owned by userID, newest first. Entries with
// equal timestamps fall back to id order so the result stays stable.
func (db *DB) ListEntries(userID int64) ([]models.Entry, error) {
	rows, err := db.conn.Query(
		"SELECT id, type, category, amount, comment, date, user_id FROM entries WHERE user_id = ? ORDER BY date DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &e.Amount, &e.Comment, &e.Date, &e.UserID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteEntry removes the entry if it exists and is owned by userID. The
// ownership check and the delete share one transaction, so concurrent
// deletes of the same entry resolve to one success and one ErrNotFound.
func (db *DB) DeleteEntry(userID, entryID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.QueryRow("SELECT user_id FROM entries WHERE id = ?", entryID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrForbidden
	}

	if _, err := tx.Exec("DELETE FROM entries WHERE id = ?", entryID); err != nil {
		return err
	}
	return tx.Commit()
}

// Totals holds the aggregate sums for one user.
type Totals struct {
	IncomeSum  float64 `json:"income_sum"`
	ExpenseSum float64 `json:"expense_sum"`
	Balance    float64 `json:"balance"`
}

// GetTotals computes the income sum, expense sum, and balance for userID.
// Users with no entries of a type get zero for that sum.
func (db *DB) GetTotals(userID int64) (Totals, error) {
	var t Totals
	err := db.conn.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN type = ? THEN amount END), 0),
			COALESCE(SUM(CASE WHEN type = ? THEN amount END), 0)
		FROM entries WHERE user_id = ?
	`, models.TypeIncome, models.TypeExpense, userID).Scan(&t.IncomeSum, &t.ExpenseSum)
	if err != nil {
		return Totals{}, err
	}
	t.Balance = t.IncomeSum - t.ExpenseSum
	return t, nil
}

// CategoryTotal holds the summed amount for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// GetCategoryTotals groups userID's entries of the given type by category
// (exact, case-sensitive match) and sums their amounts, largest first.
// Categories with no matching entries are absent from the result.
func (db *DB) GetCategoryTotals(userID int64, entryType string) ([]CategoryTotal, error) {
	rows, err := db.conn.Query(`
		SELECT category, SUM(amount), COUNT(*)
		FROM entries
		WHERE user_id = ? AND type = ?
		GROUP BY category
		ORDER BY SUM(amount) DESC
	`, userID, entryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt, time.Now(),
	)
	return err
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ValidateSession checks a session token and returns the associated user.
func (db *DB) ValidateSession(token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks a session token and returns session details.
// Unknown or expired tokens fail with ErrNotFound.
func (db *DB) ValidateSessionWithInfo(token string) (*SessionInfo, error) {
	row := db.conn.QueryRow(`
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP
	`, token)

	var info SessionInfo
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &info.LastActivity, &info.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info.User = &u
	return &info, nil
}

// RenewSession updates last_activity and expires_at for a session.
func (db *DB) RenewSession(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now(), newExpiresAt, token,
	)
	return err
}

// DeleteSession removes a session by token. Deleting a missing session is
// not an error.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// PurgeExpiredSessions removes all expired sessions.
func (db *DB) PurgeExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= CURRENT_TIMESTAMP")
	return err
}
