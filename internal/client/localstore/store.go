// Package localstore persists users, expenses and the pending-operation
// outbox on the client, over a pluggable key-value backend.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/GophSpend/internal/models"
)

// Keys of the three persisted entries. Each holds a JSON array.
const (
	KeyUsers             = "users"
	KeyExpenses          = "expenses"
	KeyPendingOperations = "pendingOperations"
)

// ErrNotFound is returned by single-record lookups.
var ErrNotFound = errors.New("record not found")

// Store is the client's durable copy of both collections plus the outbox.
// Every mutation appends a pending operation in the same backend write.
type Store struct {
	backend Backend
	ids     *IDGenerator
	now     func() time.Time

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

// New returns a Store over backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		ids:     NewIDGenerator(),
		now:     time.Now,
	}
}

// Backend returns the underlying medium.
func (s *Store) Backend() Backend {
	return s.backend
}

// Initialize seeds any missing entry: the sample users, the sample expenses
// and an empty outbox. Existing entries are left untouched.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed := map[string]any{
		KeyUsers:             sampleUsers,
		KeyExpenses:          sampleExpenses,
		KeyPendingOperations: []models.PendingOperation{},
	}
	missing := map[string][]byte{}
	for key, value := range seed {
		_, ok, err := s.backend.Get(key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		missing[key] = raw
	}
	if len(missing) > 0 {
		if err := s.backend.Set(missing); err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
	}

	// Keep freshly generated ids above any stored local id.
	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return err
	}
	for _, u := range users {
		s.ids.Observe(u.ID)
	}
	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return err
	}
	for _, e := range expenses {
		s.ids.Observe(e.ID)
	}
	return nil
}

// GetUsers returns all users in insertion order.
func (s *Store) GetUsers() ([]models.User, error) {
	return readList[models.User](s.backend, KeyUsers)
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(id string) (models.User, error) {
	users, err := s.GetUsers()
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

// GetExpenses returns all expenses in insertion order.
func (s *Store) GetExpenses() ([]models.Expense, error) {
	return readList[models.Expense](s.backend, KeyExpenses)
}

// GetExpense returns the expense with the given id.
func (s *Store) GetExpense(id string) (models.Expense, error) {
	expenses, err := s.GetExpenses()
	if err != nil {
		return models.Expense{}, err
	}
	for _, e := range expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return models.Expense{}, ErrNotFound
}

// AddUser stores a new user under a generated id.
func (s *Store) AddUser(in models.UserInput) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{ID: s.ids.Next(), Name: in.Name, Email: in.Email, Phone: in.Phone}
	users = append(users, user)

	if err := s.commit(KeyUsers, users, models.OpAddUser, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UpdateUser replaces the user with the same id. An unknown id leaves the
// collection unchanged.
func (s *Store) UpdateUser(user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return models.User{}, err
	}
	for i := range users {
		if users[i].ID == user.ID {
			users[i] = user
		}
	}
	if err := s.commit(KeyUsers, users, models.OpUpdateUser, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// DeleteUser removes the user. Expenses that reference it are kept.
func (s *Store) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return err
	}
	kept := users[:0]
	for _, u := range users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	return s.commit(KeyUsers, kept, models.OpDeleteUser, idRef{ID: id})
}

// AddExpense stores a new expense. The user name is resolved from the
// current users and createdAt is stamped with the current instant.
func (s *Store) AddExpense(in models.ExpenseInput) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return models.Expense{}, err
	}
	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return models.Expense{}, err
	}

	expense := models.Expense{
		ID:          s.ids.Next(),
		Title:       in.Title,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
		UserID:      in.UserID,
		UserName:    ResolveUserName(users, in.UserID),
		Date:        in.Date,
		Time:        in.Time,
		CreatedAt:   models.FormatISO(s.now()),
	}
	expenses = append(expenses, expense)

	if err := s.commit(KeyExpenses, expenses, models.OpAddExpense, expense); err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

// UpdateExpense replaces the expense with the same id. An unknown id leaves
// the collection unchanged.
func (s *Store) UpdateExpense(expense models.Expense) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return models.Expense{}, err
	}
	for i := range expenses {
		if expenses[i].ID == expense.ID {
			expenses[i] = expense
		}
	}
	if err := s.commit(KeyExpenses, expenses, models.OpUpdateExpense, expense); err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

// DeleteExpense removes the expense.
func (s *Store) DeleteExpense(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return err
	}
	kept := expenses[:0]
	for _, e := range expenses {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.commit(KeyExpenses, kept, models.OpDeleteExpense, idRef{ID: id})
}

// ReplaceUsers overwrites the users collection without touching the outbox.
func (s *Store) ReplaceUsers(users []models.User) error {
	return s.replace(KeyUsers, users)
}

// ReplaceExpenses overwrites the expenses collection without touching the
// outbox.
func (s *Store) ReplaceExpenses(expenses []models.Expense) error {
	return s.replace(KeyExpenses, expenses)
}

// PutUser stores a user the remote store has already accepted, adding it
// when absent. The outbox is left alone.
func (s *Store) PutUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return err
	}
	return s.save(KeyUsers, upsert(users, user, func(u models.User) string { return u.ID }))
}

// RemoveUser drops a user the remote store has already deleted. The outbox
// is left alone.
func (s *Store) RemoveUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := readList[models.User](s.backend, KeyUsers)
	if err != nil {
		return err
	}
	return s.save(KeyUsers, without(users, id, func(u models.User) string { return u.ID }))
}

// PutExpense is PutUser for expenses.
func (s *Store) PutExpense(expense models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return err
	}
	return s.save(KeyExpenses, upsert(expenses, expense, func(x models.Expense) string { return x.ID }))
}

// RemoveExpense is RemoveUser for expenses.
func (s *Store) RemoveExpense(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readList[models.Expense](s.backend, KeyExpenses)
	if err != nil {
		return err
	}
	return s.save(KeyExpenses, without(expenses, id, func(x models.Expense) string { return x.ID }))
}

func upsert[T any](list []T, v T, id func(T) string) []T {
	for i := range list {
		if id(list[i]) == id(v) {
			list[i] = v
			return list
		}
	}
	return append(list, v)
}

func without[T any](list []T, target string, id func(T) string) []T {
	kept := list[:0]
	for _, v := range list {
		if id(v) != target {
			kept = append(kept, v)
		}
	}
	return kept
}

// ResolveUserName returns the name of the user with userID, or the unknown
// user placeholder.
func ResolveUserName(users []models.User, userID string) string {
	for _, u := range users {
		if u.ID == userID {
			return u.Name
		}
	}
	return models.UnknownUserName
}

type idRef struct {
	ID string `json:"id"`
}

// commit writes the collection together with a new outbox entry.
func (s *Store) commit(key string, collection any, typ models.OperationType, data any) error {
	ops, err := readList[models.PendingOperation](s.backend, KeyPendingOperations)
	if err != nil {
		return err
	}
	op, err := s.newOperation(typ, data)
	if err != nil {
		return err
	}
	ops = append(ops, op)

	rawCollection, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	rawOps, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode pending operations: %w", err)
	}
	if err := s.backend.Set(map[string][]byte{key: rawCollection, KeyPendingOperations: rawOps}); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *Store) replace(key string, list any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(key, list)
}

// save writes one collection without an outbox entry.
func (s *Store) save(key string, list any) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if string(raw) == "null" {
		raw = []byte("[]")
	}
	if err := s.backend.Set(map[string][]byte{key: raw}); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *Store) newOperation(typ models.OperationType, data any) (models.PendingOperation, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.PendingOperation{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return models.PendingOperation{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      raw,
		Timestamp: s.now().UnixMilli(),
	}, nil
}

func readList[T any](b Backend, key string) ([]T, error) {
	raw, ok, err := b.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := []T{}
	if !ok || len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
