// Package repository provides PostgreSQL persistence for accounts and
// documents.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/atinyakov/GophSpend/internal/models"
)

var (
	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned when no account has the email.
	ErrAccountNotFound = errors.New("account not found")
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresAuthRepository stores login accounts.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a PostgresAuthRepository with the given
// database connection.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// CreateAccount inserts a new account. A taken email yields
// ErrAccountExists.
func (r *PostgresAuthRepository) CreateAccount(ctx context.Context, acc models.Account) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO accounts (email, password_hash) VALUES ($1, $2)`,
		acc.Email, acc.PasswordHash,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount loads the account registered under email.
func (r *PostgresAuthRepository) GetAccount(ctx context.Context, email string) (*models.Account, error) {
	var acc models.Account
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT email, password_hash, created_at FROM accounts WHERE email = $1`,
		email,
	).Scan(&acc.Email, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}
