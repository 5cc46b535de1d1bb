package credential

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Account is an approved login row.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// PendingRegistration is a self-service registration awaiting admin approval.
type PendingRegistration struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Course   string `json:"course"`
}

// Store persists accounts and pending registrations.
type Store struct {
	db          *sql.DB
	emailDomain string
}

// NewStore creates a credential store enforcing the given email domain on registration.
func NewStore(db *sql.DB, emailDomain string) *Store {
	return &Store{db: db, emailDomain: emailDomain}
}

// HashPassword returns the hex-encoded SHA-256 digest of the password.
// Unsalted on purpose: stored hashes stay compatible with the legacy portal.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Authenticate looks up an exact (username, password hash) match.
// Returns nil on any mismatch; unknown user and wrong password are indistinguishable.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, is_admin FROM users
		WHERE username = $1 AND password = $2
	`, username, HashPassword(password))
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Username, &acc.IsAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// IsAdmin reports whether the account has the admin flag.
// A missing account is treated as non-admin.
func (s *Store) IsAdmin(ctx context.Context, accountID string) bool {
	row := s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = $1`, accountID)
	var isAdmin bool
	if err := row.Scan(&isAdmin); err != nil {
		return false
	}
	return isAdmin
}

// SubmitRegistration queues a self-service registration for admin approval.
// Business rejections (wrong email domain, taken username) come back as
// (false, message); only storage failures are returned as errors.
func (s *Store) SubmitRegistration(ctx context.Context, username, password, name, email, course string) (bool, string, error) {
	if !strings.HasSuffix(email, "@"+s.emailDomain) {
		return false, fmt.Sprintf("Please use an email address with the domain %s", s.emailDomain), nil
	}

	// Pending and approved usernames share one namespace.
	var taken bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&taken); err != nil {
		return false, "", err
	}
	if !taken {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pending_registrations (id, username, password, name, email, course)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), username, HashPassword(password), name, email, course)
		if err == nil {
			return true, "Registration submitted successfully! Please wait for admin approval.", nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			return false, "", err
		}
	}
	return false, "Username already exists. Please choose a different username.", nil
}

// PendingRegistrations lists registrations awaiting approval.
func (s *Store) PendingRegistrations(ctx context.Context) ([]PendingRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, email, course FROM pending_registrations
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []PendingRegistration
	for rows.Next() {
		var p PendingRegistration
		if err := rows.Scan(&p.ID, &p.Username, &p.Name, &p.Email, &p.Course); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ApproveRegistration converts a pending row into an account plus a bare
// student profile and removes the pending row, all in one transaction.
// Returns false when the id does not exist (already consumed or never there).
func (s *Store) ApproveRegistration(ctx context.Context, pendingID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT username, password, name, email, course
		FROM pending_registrations WHERE id = $1
	`, pendingID)
	var username, password, name, email, course string
	if err := row.Scan(&username, &password, &name, &email, &course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	accountID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password, is_admin) VALUES ($1, $2, $3, FALSE)
	`, accountID, username, password); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO students (id, user_id, name, email, course) VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), accountID, name, email, course); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pending_registrations WHERE id = $1
	`, pendingID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CreateAdmin inserts an admin account, returning false if the username is taken.
func (s *Store) CreateAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, is_admin) VALUES ($1, $2, $3, TRUE)
	`, uuid.NewString(), username, HashPassword(password))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
