package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no user matches the lookup
var ErrNotFound = errors.New("user not found")

// User is an application user record
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	OrganizationID string     `json:"organization_id,omitempty"`
	FullName       string     `json:"full_name,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// Directory resolves users from the application's user store
type Directory interface {
	// FindByEmail looks up an active user by email alone. Only safe when
	// the assertion carries no organization scope.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByOrgAndEmail looks up an active user by email within one
	// organization. Two tenants may share an email address; the
	// organization scope keeps their users distinct.
	FindByOrgAndEmail(ctx context.Context, orgID, email string) (*User, error)
}

// SQLDirectory is a Directory over a SQL users table
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory over the given database handle
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// FindByEmail implements Directory
func (d *SQLDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, organization_id, full_name, is_active, created_at, last_login_at
		FROM users
		WHERE email = $1 AND is_active = true
	`, normalizeEmail(email)).Scan(
		&user.ID, &user.Email, &user.OrganizationID, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	return user, nil
}

// FindByOrgAndEmail implements Directory
func (d *SQLDirectory) FindByOrgAndEmail(ctx context.Context, orgID, email string) (*User, error) {
	user := &User{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, organization_id, full_name, is_active, created_at, last_login_at
		FROM users
		WHERE organization_id = $1 AND email = $2 AND is_active = true
	`, orgID, normalizeEmail(email)).Scan(
		&user.ID, &user.Email, &user.OrganizationID, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	return user, nil
}

// StaticDirectory is an in-memory Directory for development and tests
type StaticDirectory struct {
	users []User
}

// NewStaticDirectory creates a directory over a fixed user list
func NewStaticDirectory(users ...User) *StaticDirectory {
	return &StaticDirectory{users: users}
}

// FindByEmail implements Directory
func (d *StaticDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	for i := range d.users {
		if d.users[i].IsActive && normalizeEmail(d.users[i].Email) == email {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// FindByOrgAndEmail implements Directory
func (d *StaticDirectory) FindByOrgAndEmail(ctx context.Context, orgID, email string) (*User, error) {
	email = normalizeEmail(email)
	for i := range d.users {
		if d.users[i].IsActive && d.users[i].OrganizationID == orgID && normalizeEmail(d.users[i].Email) == email {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
