package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/client/localstore"
	"github.com/atinyakov/GophSpend/internal/models"
)

// AddUser creates a user. Online, the remote store assigns the id and the
// local store is left for the next pull to fill.
func (a *App) AddUser(ctx context.Context, in models.UserInput) (models.User, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	var user models.User
	err := a.write("add user",
		func() (err error) {
			user, err = a.deps.Remote.CreateUser(ctx, in)
			return err
		},
		func() (err error) {
			user, err = a.deps.Local.AddUser(in)
			return err
		},
		nil,
	)
	if err != nil {
		return models.User{}, err
	}
	a.apply(func(st *Snapshot) { st.Users = append(st.Users, user) })
	return user, nil
}

// UpdateUser replaces the user with the same id.
func (a *App) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		return models.User{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(user.Name) == "" {
		return models.User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	err := a.write("update user",
		func() error {
			_, err := a.deps.Remote.UpdateUser(ctx, user)
			return err
		},
		func() error {
			_, err := a.deps.Local.UpdateUser(user)
			return err
		},
		func() error { return a.deps.Local.PutUser(user) },
	)
	if err != nil {
		return models.User{}, err
	}
	a.apply(func(st *Snapshot) {
		st.Users = replaceByID(st.Users, user, func(u models.User) string { return u.ID })
	})
	return user, nil
}

// DeleteUser removes a user that no expense refers to.
func (a *App) DeleteUser(ctx context.Context, id string) error {
	for _, x := range a.Expenses() {
		if x.UserID == id {
			return ErrUserHasExpenses
		}
	}

	err := a.write("delete user",
		func() error { return a.deps.Remote.DeleteUser(ctx, id) },
		func() error { return a.deps.Local.DeleteUser(id) },
		func() error { return a.deps.Local.RemoveUser(id) },
	)
	if err != nil {
		return err
	}
	a.apply(func(st *Snapshot) {
		st.Users = removeByID(st.Users, id, func(u models.User) string { return u.ID })
	})
	return nil
}

// AddExpense records an expense. userName is taken from the current users.
func (a *App) AddExpense(ctx context.Context, in models.ExpenseInput) (models.Expense, error) {
	if err := validateExpense(in.Title, in.Amount, in.Date, in.Time); err != nil {
		return models.Expense{}, err
	}
	userName := localstore.ResolveUserName(a.Users(), in.UserID)

	var expense models.Expense
	err := a.write("add expense",
		func() (err error) {
			expense, err = a.deps.Remote.CreateExpense(ctx, in, userName)
			return err
		},
		func() (err error) {
			expense, err = a.deps.Local.AddExpense(in)
			return err
		},
		nil,
	)
	if err != nil {
		return models.Expense{}, err
	}
	a.apply(func(st *Snapshot) { st.Expenses = append(st.Expenses, expense) })
	return expense, nil
}

// UpdateExpense replaces the expense with the same id. userName is
// refreshed from the current users and a missing createdAt keeps the
// stored one.
func (a *App) UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	if expense.ID == "" {
		return models.Expense{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := validateExpense(expense.Title, expense.Amount, expense.Date, expense.Time); err != nil {
		return models.Expense{}, err
	}
	expense.UserName = localstore.ResolveUserName(a.Users(), expense.UserID)
	if expense.CreatedAt == "" {
		if cur, ok := a.Expense(expense.ID); ok {
			expense.CreatedAt = cur.CreatedAt
		}
	}

	err := a.write("update expense",
		func() error {
			_, err := a.deps.Remote.UpdateExpense(ctx, expense)
			return err
		},
		func() error {
			_, err := a.deps.Local.UpdateExpense(expense)
			return err
		},
		func() error { return a.deps.Local.PutExpense(expense) },
	)
	if err != nil {
		return models.Expense{}, err
	}
	a.apply(func(st *Snapshot) {
		st.Expenses = replaceByID(st.Expenses, expense, func(x models.Expense) string { return x.ID })
	})
	return expense, nil
}

// DeleteExpense removes an expense.
func (a *App) DeleteExpense(ctx context.Context, id string) error {
	err := a.write("delete expense",
		func() error { return a.deps.Remote.DeleteExpense(ctx, id) },
		func() error { return a.deps.Local.DeleteExpense(id) },
		func() error { return a.deps.Local.RemoveExpense(id) },
	)
	if err != nil {
		return err
	}
	a.apply(func(st *Snapshot) {
		st.Expenses = removeByID(st.Expenses, id, func(x models.Expense) string { return x.ID })
	})
	return nil
}

// write runs remoteFn when online and falls back to localFn when offline or
// when the remote call fails. A successful remote write is copied locally
// with mirrorFn, which must not queue an outbox entry.
func (a *App) write(what string, remoteFn, localFn, mirrorFn func() error) error {
	if a.deps.Monitor.IsOnline() {
		err := remoteFn()
		if err == nil {
			if mirrorFn != nil {
				if err := mirrorFn(); err != nil {
					a.log.Warn("mirror "+what, zap.Error(err))
				}
			}
			return nil
		}
		a.log.Warn("remote "+what+" failed, writing locally", zap.Error(err))
	}
	return localFn()
}

func validateExpense(title string, amount float64, date, clock string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case !(amount > 0):
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	return nil
}

func replaceByID[T any](list []T, v T, id func(T) string) []T {
	out := make([]T, len(list))
	copy(out, list)
	for i := range out {
		if id(out[i]) == id(v) {
			out[i] = v
		}
	}
	return out
}

func removeByID[T any](list []T, target string, id func(T) string) []T {
	out := make([]T, 0, len(list))
	for _, v := range list {
		if id(v) != target {
			out = append(out, v)
		}
	}
	return out
}
