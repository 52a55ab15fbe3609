package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/GophSpend/internal/models"
	"github.com/atinyakov/GophSpend/internal/repository"
)

type mockAccountRepo struct {
	CreateAccountFunc func(ctx context.Context, acc models.Account) error
	GetAccountFunc    func(ctx context.Context, email string) (*models.Account, error)
}

func (m *mockAccountRepo) CreateAccount(ctx context.Context, acc models.Account) error {
	return m.CreateAccountFunc(ctx, acc)
}
func (m *mockAccountRepo) GetAccount(ctx context.Context, email string) (*models.Account, error) {
	return m.GetAccountFunc(ctx, email)
}

type stubIssuer struct {
	err error
}

func (s stubIssuer) Issue(email string) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "token-for-" + email, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func newTestAuth(repo AccountRepository, issuer TokenIssuer) *AuthService {
	svc := NewAuthService(repo, issuer, nil)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegister_Success(t *testing.T) {
	var stored models.Account
	repo := &mockAccountRepo{
		CreateAccountFunc: func(ctx context.Context, acc models.Account) error {
			stored = acc
			return nil
		},
	}
	svc := newTestAuth(repo, stubIssuer{})

	session, err := svc.Register(context.Background(), "  Alice@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if stored.Email != "alice@example.com" {
		t.Errorf("stored email = %q; want normalized address", stored.Email)
	}
	if bcrypt.CompareHashAndPassword(stored.PasswordHash, []byte("hunter22")) != nil {
		t.Error("stored hash does not match the password")
	}
	if session.Token != "token-for-alice@example.com" || session.Email != "alice@example.com" {
		t.Errorf("unexpected session %+v", session)
	}
}

func TestRegister_Validation(t *testing.T) {
	repo := &mockAccountRepo{
		CreateAccountFunc: func(context.Context, models.Account) error {
			t.Fatal("CreateAccount must not be called for invalid input")
			return nil
		},
	}
	svc := newTestAuth(repo, stubIssuer{})

	cases := []struct {
		name, email, password string
	}{
		{"empty email", "", "hunter22"},
		{"no at sign", "alice", "hunter22"},
		{"short password", "a@b.c", "12345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.email, tc.password)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Register error = %v; want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	repo := &mockAccountRepo{
		CreateAccountFunc: func(context.Context, models.Account) error {
			return repository.ErrAccountExists
		},
	}
	svc := newTestAuth(repo, stubIssuer{})

	if _, err := svc.Register(context.Background(), "a@b.c", "hunter22"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("Register error = %v; want ErrAccountExists", err)
	}
}

func TestRegister_IssuerError(t *testing.T) {
	wantErr := errors.New("sign failed")
	repo := &mockAccountRepo{
		CreateAccountFunc: func(context.Context, models.Account) error { return nil },
	}
	svc := newTestAuth(repo, stubIssuer{err: wantErr})

	if _, err := svc.Register(context.Background(), "a@b.c", "hunter22"); !errors.Is(err, wantErr) {
		t.Fatalf("Register error = %v; want %v", err, wantErr)
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	dbErr := errors.New("db down")
	repo := &mockAccountRepo{
		GetAccountFunc: func(ctx context.Context, email string) (*models.Account, error) {
			switch email {
			case "alice@example.com":
				return &models.Account{Email: email, PasswordHash: hash}, nil
			case "broken@example.com":
				return nil, dbErr
			default:
				return nil, repository.ErrAccountNotFound
			}
		},
	}
	svc := newTestAuth(repo, stubIssuer{})

	cases := []struct {
		name, email, password string
		wantErr               error
	}{
		{"ok", "ALICE@example.com", "hunter22", nil},
		{"wrong password", "alice@example.com", "nope", ErrInvalidCredentials},
		{"unknown email", "bob@example.com", "hunter22", ErrInvalidCredentials},
		{"repository error", "broken@example.com", "hunter22", dbErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, err := svc.Login(context.Background(), tc.email, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Login error = %v; want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && session.Email != "alice@example.com" {
				t.Errorf("session email = %q", session.Email)
			}
		})
	}
}
