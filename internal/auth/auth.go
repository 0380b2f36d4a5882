package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookie = "microblog_session"

// ErrBadCredentials is returned when a password check fails.
var ErrBadCredentials = errors.New("invalid username or password")

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash against a candidate password.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Manager issues and resolves cookie sessions backed by the sessions
// table. It supplies the opaque "current user or anonymous" identity the
// core consumes; the core itself never touches credentials.
type Manager struct {
	db     *sql.DB
	maxAge time.Duration
}

// NewManager creates a session manager. Sessions expire after maxAge.
func NewManager(db *sql.DB, maxAge time.Duration) *Manager {
	return &Manager{db: db, maxAge: maxAge}
}

// Create opens a session for userID and sets the session cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID string) error {
	id := uuid.New().String()
	expires := time.Now().UTC().Add(m.maxAge)

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		id, userID, expires.UnixNano())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	return nil
}

// Destroy removes the request's session, if any, and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		m.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
	})
}

// CurrentUserID resolves the request's session to a user id. The second
// return is false for anonymous or expired sessions.
func (m *Manager) CurrentUserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	var (
		userID  string
		expires int64
	)
	err = m.db.QueryRowContext(r.Context(),
		`SELECT user_id, expires_at FROM sessions WHERE id = ?`, c.Value,
	).Scan(&userID, &expires)
	if err != nil || time.Now().UnixNano() > expires {
		return "", false
	}
	return userID, true
}
