// Package service holds the document store's business logic: account
// sign-up and login, and document reads and writes with change fan-out.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/GophSpend/internal/metrics"
	"github.com/atinyakov/GophSpend/internal/models"
	"github.com/atinyakov/GophSpend/internal/repository"
)

const minPasswordLen = 6

var (
	// ErrInvalidInput wraps validation failures; the wrapped message is safe
	// to show to users.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountExists is returned by Register for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AccountRepository persists login accounts.
type AccountRepository interface {
	// CreateAccount returns repository.ErrAccountExists for a taken email.
	CreateAccount(ctx context.Context, acc models.Account) error
	// GetAccount returns repository.ErrAccountNotFound for an unknown email.
	GetAccount(ctx context.Context, email string) (*models.Account, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(email string) (string, time.Time, error)
}

// AuthService registers accounts and exchanges credentials for sessions.
type AuthService struct {
	repo    AccountRepository
	issuer  TokenIssuer
	metrics *metrics.Metrics
	cost    int
}

// NewAuthService constructs an AuthService. m may be nil.
func NewAuthService(repo AccountRepository, issuer TokenIssuer, m *metrics.Metrics) *AuthService {
	return &AuthService{repo: repo, issuer: issuer, metrics: m, cost: bcrypt.DefaultCost}
}

// Register creates an account and returns its first session.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Session, error) {
	session, err := s.register(ctx, email, password)
	s.metrics.AuthAttempt("register", err == nil)
	return session, err
}

func (s *AuthService) register(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	err = s.repo.CreateAccount(ctx, models.Account{Email: email, PasswordHash: hash})
	if errors.Is(err, repository.ErrAccountExists) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, err
	}
	return s.session(email)
}

// Login checks the credentials and returns a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	session, err := s.login(ctx, email, password)
	s.metrics.AuthAttempt("login", err == nil)
	return session, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	acc, err := s.repo.GetAccount(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(email)
}

func (s *AuthService) session(email string) (*models.Session, error) {
	token, expires, err := s.issuer.Issue(email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &models.Session{Token: token, Email: email, ExpiresAt: expires}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email must be a valid address", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	return nil
}
