package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFirstRun is returned by SetupFirstRun once any user exists.
var ErrNotFirstRun = errors.New("setup already completed")

// Roles a user can hold.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Company groups users and every record they manage.
type Company struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// UserRecord represents a dashboard account stored in the database.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CompanyID    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord represents a login session stored in the database.
type SessionRecord struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

// CreateCompany inserts a company.
func (db *DB) CreateCompany(name string) (*Company, error) {
	now := time.Now()
	result, err := db.Exec("INSERT INTO companies (name, created_at) VALUES (?, ?)", name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get company id: %w", err)
	}
	return &Company{ID: id, Name: name, CreatedAt: now}, nil
}

// SetupFirstRun creates the first company and its admin in one transaction.
// Nothing is written when a user already exists or either insert fails.
func (db *DB) SetupFirstRun(companyName, username, passwordHash string) (*Company, *UserRecord, error) {
	var (
		company *Company
		user    *UserRecord
	)
	err := db.Transaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			return fmt.Errorf("failed to check users: %w", err)
		}
		if count > 0 {
			return ErrNotFirstRun
		}

		now := time.Now()
		result, err := tx.Exec("INSERT INTO companies (name, created_at) VALUES (?, ?)", companyName, now)
		if err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		companyID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get company id: %w", err)
		}
		company = &Company{ID: companyID, Name: companyName, CreatedAt: now}

		result, err = tx.Exec(`
			INSERT INTO users (username, password_hash, role, company_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, username, passwordHash, RoleAdmin, companyID, now, now)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		userID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get user id: %w", err)
		}
		user = &UserRecord{
			ID:           userID,
			Username:     username,
			PasswordHash: passwordHash,
			Role:         RoleAdmin,
			CompanyID:    companyID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return company, user, nil
}

// OwnerCompanyID returns the id of the company created by first-run setup,
// or 0 before setup.
func (db *DB) OwnerCompanyID() (int64, error) {
	var id sql.NullInt64
	if err := db.QueryRow("SELECT MIN(id) FROM companies").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get owner company: %w", err)
	}
	return id.Int64, nil
}

// GetCompany retrieves a company by ID.
func (db *DB) GetCompany(id int64) (*Company, error) {
	c := &Company{}
	err := db.QueryRow("SELECT id, name, created_at FROM companies WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

const userColumns = "id, username, password_hash, role, company_id, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*UserRecord, error) {
	u := &UserRecord{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CompanyID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a new user record.
func (db *DB) CreateUser(username, passwordHash, role string, companyID int64) (*UserRecord, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO users (username, password_hash, role, company_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, username, passwordHash, role, companyID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &UserRecord{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CompanyID:    companyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*UserRecord, error) {
	u, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*UserRecord, error) {
	u, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns the users of a company ordered by username.
func (db *DB) ListUsers(companyID int64) ([]*UserRecord, error) {
	rows, err := db.Query("SELECT "+userColumns+" FROM users WHERE company_id = ? ORDER BY username", companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CompanyUserIDs returns which of ids belong to users of companyID.
func (db *DB) CompanyUserIDs(companyID int64, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	for _, id := range ids {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE id = ? AND company_id = ?", id, companyID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to check user %d: %w", id, err)
		}
		if n > 0 {
			found[id] = true
		}
	}
	return found, nil
}

// DeleteUser removes a user of a company. Returns false when no row matched.
func (db *DB) DeleteUser(id, companyID int64) (bool, error) {
	result, err := db.Exec("DELETE FROM users WHERE id = ? AND company_id = ?", id, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateUserPassword updates the user's password hash.
func (db *DB) UpdateUserPassword(userID int64, passwordHash string) error {
	_, err := db.Exec(`
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (db *DB) CreateSession(id string, userID int64, expiresAt time.Time) (*SessionRecord, error) {
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, id, userID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &SessionRecord{ID: id, UserID: userID, ExpiresAt: expiresAt, CreatedAt: now}, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	s := &SessionRecord{}
	err := db.QueryRow(`
		SELECT id, user_id, expires_at, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// DeleteSession removes a session by ID.
func (db *DB) DeleteSession(id string) error {
	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExtendSession updates a session's expiration time.
func (db *DB) ExtendSession(id string, expiresAt time.Time) error {
	if _, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt, id); err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (db *DB) DeleteExpiredSessions(now time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
