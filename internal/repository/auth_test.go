package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/atinyakov/GophSpend/internal/models"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

const insertAccount = `INSERT INTO accounts (email, password_hash) VALUES ($1, $2)`

func TestCreateAccount_Success(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	acc := models.Account{Email: "ann@example.com", PasswordHash: []byte("hash")}
	mock.ExpectExec(regexp.QuoteMeta(insertAccount)).
		WithArgs(acc.Email, acc.PasswordHash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(insertAccount)).
		WithArgs("ann@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.CreateAccount(context.Background(), models.Account{Email: "ann@example.com", PasswordHash: []byte("x")})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreateAccount_OtherError(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(insertAccount)).
		WillReturnError(errors.New("connection reset"))

	err := repo.CreateAccount(context.Background(), models.Account{Email: "a@b.c"})
	if err == nil || errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetAccount_Found(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT email, password_hash, created_at FROM accounts WHERE email = $1`)).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "password_hash", "created_at"}).
			AddRow("ann@example.com", []byte("hash"), created))

	acc, err := repo.GetAccount(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(acc.PasswordHash) != "hash" || !acc.CreatedAt.Equal(created) {
		t.Errorf("unexpected account: %+v", acc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT email, password_hash, created_at FROM accounts`)).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "password_hash", "created_at"}))

	_, err := repo.GetAccount(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
