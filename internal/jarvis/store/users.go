package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("store: email already exists")

// User is an account that owns tasks.
type User struct {
	ID          int64          `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	MatrixID    sql.NullString `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CreateUser inserts a user. matrixID may be empty.
func (s *Store) CreateUser(ctx context.Context, email, displayName, matrixID string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("store: email is required")
	}

	if _, err := s.UserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u := &User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   time.Now().UTC(),
	}
	if mx := strings.TrimSpace(matrixID); mx != "" {
		u.MatrixID = sql.NullString{String: mx, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, display_name, matrix_id, created_at)
		VALUES (?, ?, ?, ?)
	`, u.Email, u.DisplayName, u.MatrixID, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("store: create user id: %w", err)
	}
	return u, nil
}

// UserByEmail looks a user up by (case-insensitive) email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// UserByMatrixID looks a user up by linked Matrix ID.
func (s *Store) UserByMatrixID(ctx context.Context, mxid string) (*User, error) {
	return s.getUser(ctx, `WHERE matrix_id = ?`, mxid)
}

// UserByID looks a user up by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, matrix_id, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.MatrixID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// IssueToken creates a new API token for userID. Only its hash is stored; the
// returned raw value cannot be recovered later.
func (s *Store) IssueToken(ctx context.Context, userID int64) (string, error) {
	raw := "jv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, user_id, created_at) VALUES (?, ?, ?)`,
		hashToken(raw), userID, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("store: issue token: %w", err)
	}
	return raw, nil
}

// UserByToken resolves a raw API token to its owner.
func (s *Store) UserByToken(ctx context.Context, raw string) (*User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotFound
	}
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM api_tokens WHERE token_hash = ?`, hashToken(raw),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: resolve token: %w", err)
	}
	return s.UserByID(ctx, userID)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
