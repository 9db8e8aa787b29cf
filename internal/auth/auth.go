package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/saltyorg/opsboard/internal/apperr"
	"github.com/saltyorg/opsboard/internal/database"
)

const (
	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
	// BcryptCost is the bcrypt cost factor
	BcryptCost = 12
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 8
)

var (
	// ErrSetupComplete is returned by Setup once a user exists.
	ErrSetupComplete = database.ErrNotFirstRun
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = apperr.BadRequest("password must be at least %d characters", MinPasswordLength)
)

// User is an authenticated dashboard account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CompanyID int64     `json:"companyId"`
	CreatedAt time.Time `json:"createdAt"`

	passwordHash string
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == database.RoleAdmin
}

// Session represents a user session. The session ID doubles as the
// bearer token.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuthService handles authentication
type AuthService struct {
	db  *database.DB
	now func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(db *database.DB) *AuthService {
	return &AuthService{db: db, now: time.Now}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func userFromRecord(r *database.UserRecord) *User {
	if r == nil {
		return nil
	}
	return &User{
		ID:           r.ID,
		Username:     r.Username,
		Role:         r.Role,
		CompanyID:    r.CompanyID,
		CreatedAt:    r.CreatedAt,
		passwordHash: r.PasswordHash,
	}
}

// Setup creates the first company and its admin. It fails with
// ErrSetupComplete once any user exists. Inputs are validated before
// anything is written, so a rejected attempt can be retried as is.
func (s *AuthService) Setup(companyName, username, password string) (*User, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, apperr.BadRequest("company name is required")
	}
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	first, err := s.db.IsFirstRun()
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrSetupComplete
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	_, record, err := s.db.SetupFirstRun(companyName, username, hash)
	if err != nil {
		return nil, err
	}
	return userFromRecord(record), nil
}

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.BadRequest("username is required")
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	return username, nil
}

// CreateUser creates a new user account in a company
func (s *AuthService) CreateUser(username, password, role string, companyID int64) (*User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	record, err := s.db.CreateUser(username, hash, role, companyID)
	if err != nil {
		return nil, err
	}
	return userFromRecord(record), nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(id int64) (*User, error) {
	record, err := s.db.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	return userFromRecord(record), nil
}

// ListUsers returns the users of a company.
func (s *AuthService) ListUsers(companyID int64) ([]*User, error) {
	records, err := s.db.ListUsers(companyID)
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(records))
	for _, r := range records {
		users = append(users, userFromRecord(r))
	}
	return users, nil
}

// DeleteUser removes a user of a company. Returns false when nothing matched.
func (s *AuthService) DeleteUser(id, companyID int64) (bool, error) {
	return s.db.DeleteUser(id, companyID)
}

// Authenticate verifies credentials and returns the user
func (s *AuthService) Authenticate(username, password string) (*User, error) {
	record, err := s.db.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	if !CheckPassword(password, record.PasswordHash) {
		return nil, nil
	}
	return userFromRecord(record), nil
}

// ChangePassword replaces a user's password after verifying the current one.
// Returns false when the current password does not match.
func (s *AuthService) ChangePassword(userID int64, current, next string) (bool, error) {
	record, err := s.db.GetUserByID(userID)
	if err != nil {
		return false, err
	}
	if record == nil || !CheckPassword(current, record.PasswordHash) {
		return false, nil
	}
	if err := s.UpdatePassword(userID, next); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePassword changes a user's password
func (s *AuthService) UpdatePassword(userID int64, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.UpdateUserPassword(userID, hash)
}

// CreateSession creates a new session for a user
func (s *AuthService) CreateSession(userID int64) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	record, err := s.db.CreateSession(sessionID, userID, s.now().Add(SessionDuration))
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        record.ID,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

// GetSession retrieves a live session by ID. Expired sessions are removed
// and reported as missing.
func (s *AuthService) GetSession(sessionID string) (*Session, error) {
	record, err := s.db.GetSession(sessionID)
	if err != nil || record == nil {
		return nil, err
	}

	if s.now().After(record.ExpiresAt) {
		if err := s.db.DeleteSession(sessionID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	return &Session{
		ID:        record.ID,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}, nil
}

// ValidateToken resolves a bearer token to its user and extends the
// session. Returns nil when the token is unknown, expired or orphaned.
func (s *AuthService) ValidateToken(token string) (*User, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.GetSession(token)
	if err != nil || session == nil {
		return nil, err
	}
	user, err := s.GetUserByID(session.UserID)
	if err != nil || user == nil {
		return nil, err
	}
	if err := s.ExtendSession(session.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteSession removes a session
func (s *AuthService) DeleteSession(sessionID string) error {
	return s.db.DeleteSession(sessionID)
}

// ExtendSession extends a session's expiration
func (s *AuthService) ExtendSession(sessionID string) error {
	return s.db.ExtendSession(sessionID, s.now().Add(SessionDuration))
}

// PurgeExpiredSessions removes every session past its expiry.
func (s *AuthService) PurgeExpiredSessions() (int64, error) {
	return s.db.DeleteExpiredSessions(s.now())
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
