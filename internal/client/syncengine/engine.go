// Package syncengine reconciles the local store with the remote store.
//
// A sync run drains the outbox, pushes every local record, pulls both remote
// collections and overwrites the local copy with them. The remote copy wins.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/GophSpend/internal/models"
)

// LocalStore is the part of the local store the engine reads and replaces.
type LocalStore interface {
	GetUsers() ([]models.User, error)
	GetExpenses() ([]models.Expense, error)
	ReplaceUsers([]models.User) error
	ReplaceExpenses([]models.Expense) error
	PendingOperations() ([]models.PendingOperation, error)
	AckPendingOperation(id string) error
	MarkAttempt(id string) error
}

// Remote is the part of the remote store the engine writes to. Update calls
// must create missing documents.
type Remote interface {
	UpdateUser(ctx context.Context, user models.User) (models.User, error)
	UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error)
	DeleteUser(ctx context.Context, id string) error
	DeleteExpense(ctx context.Context, id string) error
	FetchUsers(ctx context.Context) ([]models.User, error)
	FetchExpenses(ctx context.Context) ([]models.Expense, error)
}

// Result is the remote state a successful sync left in the local store.
type Result struct {
	Users    []models.User
	Expenses []models.Expense
}

// Backoff controls retries of a single outbox item within one drain.
type Backoff struct {
	Base     time.Duration
	Factor   float64
	Attempts int
}

// DefaultBackoff retries three times: immediately, after 200ms and after
// 400ms.
var DefaultBackoff = Backoff{Base: 200 * time.Millisecond, Factor: 2, Attempts: 3}

// Engine runs sync and outbox drains. It is safe for concurrent use.
type Engine struct {
	local   LocalStore
	remote  Remote
	log     *zap.Logger
	backoff Backoff

	group   singleflight.Group
	drainMu sync.Mutex

	mu        sync.Mutex
	status    models.SyncStatus
	listeners []func(models.SyncStatus)
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff replaces DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(e *Engine) { e.backoff = b }
}

// New returns an idle engine.
func New(local LocalStore, remote Remote, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		local:   local,
		remote:  remote,
		log:     log,
		backoff: DefaultBackoff,
		status:  models.SyncIdle,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Status returns the current sync status.
func (e *Engine) Status() models.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// OnStatus registers fn to be called on every status change.
func (e *Engine) OnStatus(fn func(models.SyncStatus)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *Engine) setStatus(s models.SyncStatus) {
	e.mu.Lock()
	e.status = s
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Sync runs one full reconciliation. Calls made while a run is in flight
// wait for it and share its result. On error the status is set to error and
// whatever was already written stays written.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	v, err, shared := e.group.Do("sync", func() (any, error) {
		return e.run(ctx)
	})
	if shared {
		e.log.Debug("joined in-flight sync")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) run(ctx context.Context) (Result, error) {
	e.setStatus(models.SyncSyncing)
	started := time.Now()

	res, err := e.reconcile(ctx)
	if err != nil {
		e.log.Error("sync failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		e.setStatus(models.SyncError)
		return Result{}, err
	}

	e.log.Info("sync complete",
		zap.Int("users", len(res.Users)),
		zap.Int("expenses", len(res.Expenses)),
		zap.Duration("elapsed", time.Since(started)),
	)
	e.setStatus(models.SyncSynced)
	return res, nil
}

func (e *Engine) reconcile(ctx context.Context) (Result, error) {
	if _, err := e.DrainOutbox(ctx); err != nil {
		return Result{}, err
	}

	users, err := e.local.GetUsers()
	if err != nil {
		return Result{}, fmt.Errorf("read local users: %w", err)
	}
	expenses, err := e.local.GetExpenses()
	if err != nil {
		return Result{}, fmt.Errorf("read local expenses: %w", err)
	}

	for _, u := range users {
		if _, err := e.remote.UpdateUser(ctx, u); err != nil {
			return Result{}, fmt.Errorf("push user %s: %w", u.ID, err)
		}
	}
	for _, x := range expenses {
		if _, err := e.remote.UpdateExpense(ctx, x); err != nil {
			return Result{}, fmt.Errorf("push expense %s: %w", x.ID, err)
		}
	}

	remoteUsers, err := e.remote.FetchUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pull users: %w", err)
	}
	remoteExpenses, err := e.remote.FetchExpenses(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pull expenses: %w", err)
	}

	if err := e.local.ReplaceUsers(remoteUsers); err != nil {
		return Result{}, fmt.Errorf("store users: %w", err)
	}
	if err := e.local.ReplaceExpenses(remoteExpenses); err != nil {
		return Result{}, fmt.Errorf("store expenses: %w", err)
	}
	return Result{Users: remoteUsers, Expenses: remoteExpenses}, nil
}

// DrainOutbox delivers pending operations in order and acknowledges each one
// as it lands. It stops at the first item that still fails after the
// configured retries, leaving it and everything behind it queued. It returns
// the number of operations delivered.
func (e *Engine) DrainOutbox(ctx context.Context) (int, error) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	ops, err := e.local.PendingOperations()
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	delivered := 0
	for _, op := range ops {
		err := e.retry(ctx, func() error { return e.deliver(ctx, op) })
		if errors.Is(err, errMalformed) {
			e.log.Error("dropping malformed operation",
				zap.String("id", op.ID), zap.String("type", string(op.Type)), zap.Error(err))
			if err := e.local.AckPendingOperation(op.ID); err != nil {
				return delivered, fmt.Errorf("ack %s: %w", op.ID, err)
			}
			continue
		}
		if err != nil {
			if markErr := e.local.MarkAttempt(op.ID); markErr != nil {
				e.log.Warn("record delivery attempt", zap.String("id", op.ID), zap.Error(markErr))
			}
			return delivered, fmt.Errorf("deliver %s %s: %w", op.Type, op.ID, err)
		}
		if err := e.local.AckPendingOperation(op.ID); err != nil {
			return delivered, fmt.Errorf("ack %s: %w", op.ID, err)
		}
		delivered++
	}
	if delivered > 0 {
		e.log.Info("outbox drained", zap.Int("delivered", delivered))
	}
	return delivered, nil
}

var errMalformed = errors.New("malformed operation")

func (e *Engine) deliver(ctx context.Context, op models.PendingOperation) error {
	switch op.Type {
	case models.OpAddUser, models.OpUpdateUser:
		var u models.User
		if err := json.Unmarshal(op.Data, &u); err != nil || u.ID == "" {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		_, err := e.remote.UpdateUser(ctx, u)
		return err
	case models.OpAddExpense, models.OpUpdateExpense:
		var x models.Expense
		if err := json.Unmarshal(op.Data, &x); err != nil || x.ID == "" {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		_, err := e.remote.UpdateExpense(ctx, x)
		return err
	case models.OpDeleteUser, models.OpDeleteExpense:
		id, err := op.RecordID()
		if err != nil || id == "" {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		if op.Type == models.OpDeleteUser {
			return e.remote.DeleteUser(ctx, id)
		}
		return e.remote.DeleteExpense(ctx, id)
	default:
		return fmt.Errorf("%w: unknown type %q", errMalformed, op.Type)
	}
}

func (e *Engine) retry(ctx context.Context, fn func() error) error {
	attempts := e.backoff.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := e.backoff.Base

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay = time.Duration(float64(delay) * e.backoff.Factor)
		}
		if err = fn(); err == nil || errors.Is(err, errMalformed) {
			return err
		}
	}
	return err
}
