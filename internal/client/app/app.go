// Package app is the client's single source of truth. It holds the
// in-memory view of users and expenses, routes mutations to the remote or
// local store depending on connectivity, and keeps the view current from
// syncs, live subscriptions and changes made by other processes.
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/client/analytics"
	"github.com/atinyakov/GophSpend/internal/client/remote"
	"github.com/atinyakov/GophSpend/internal/client/syncengine"
	"github.com/atinyakov/GophSpend/internal/models"
)

var (
	// ErrUserHasExpenses rejects deleting a user that expenses still refer to.
	ErrUserHasExpenses = errors.New("user has expenses")
	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOffline is returned by operations that need the remote store.
	ErrOffline = errors.New("offline")
)

// LocalStore is the durable client copy.
type LocalStore interface {
	Initialize() error
	GetUsers() ([]models.User, error)
	GetExpenses() ([]models.Expense, error)
	AddUser(models.UserInput) (models.User, error)
	UpdateUser(models.User) (models.User, error)
	DeleteUser(id string) error
	AddExpense(models.ExpenseInput) (models.Expense, error)
	UpdateExpense(models.Expense) (models.Expense, error)
	DeleteExpense(id string) error
	PutUser(models.User) error
	RemoveUser(id string) error
	PutExpense(models.Expense) error
	RemoveExpense(id string) error
	ReplaceUsers([]models.User) error
	ReplaceExpenses([]models.Expense) error
}

// Remote is the remote document store.
type Remote interface {
	CreateUser(ctx context.Context, in models.UserInput) (models.User, error)
	UpdateUser(ctx context.Context, user models.User) (models.User, error)
	DeleteUser(ctx context.Context, id string) error
	CreateExpense(ctx context.Context, in models.ExpenseInput, userName string) (models.Expense, error)
	UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	SubscribeUsers(ctx context.Context, fn func([]models.User)) (remote.Unsubscribe, error)
	SubscribeExpenses(ctx context.Context, fn func([]models.Expense)) (remote.Unsubscribe, error)
}

// Syncer runs reconciliation.
type Syncer interface {
	Sync(ctx context.Context) (syncengine.Result, error)
	Status() models.SyncStatus
	OnStatus(fn func(models.SyncStatus))
}

// Connectivity reports and announces online/offline transitions.
type Connectivity interface {
	IsOnline() bool
	OnChange(fn func(online bool))
	Start(ctx context.Context)
	Stop()
}

// Scheduler runs background work while the app is started.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
}

// Watcher reports changes made to the local store by other processes.
type Watcher interface {
	Watch(ctx context.Context, onChange func(), log *zap.Logger) error
}

// Deps are the collaborators of an App. Scheduler and Watcher are optional.
type Deps struct {
	Local     LocalStore
	Remote    Remote
	Sync      Syncer
	Monitor   Connectivity
	Scheduler Scheduler
	Watcher   Watcher
}

// Snapshot is a consistent copy of the app state.
type Snapshot struct {
	Users      []models.User
	Expenses   []models.Expense
	Loading    bool
	SyncStatus models.SyncStatus
	IsOnline   bool
	// Revision increases by one on every state change.
	Revision uint64
}

func (s Snapshot) clone() Snapshot {
	s.Users = append([]models.User(nil), s.Users...)
	s.Expenses = append([]models.Expense(nil), s.Expenses...)
	return s
}

// App owns the in-memory state. Create it with New.
type App struct {
	deps Deps
	log  *zap.Logger

	// applyMu orders state changes together with their notifications.
	applyMu   sync.Mutex
	stateMu   sync.RWMutex
	state     Snapshot
	observers map[int]func(Snapshot)
	nextObs   int

	subMu  sync.Mutex
	unsubs []remote.Unsubscribe

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an App in the loading state.
func New(deps Deps, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		deps:      deps,
		log:       log,
		state:     Snapshot{Loading: true, SyncStatus: models.SyncIdle},
		observers: map[int]func(Snapshot){},
	}
}

// Start loads the local store, begins tracking connectivity and, when
// online, syncs and opens the live subscriptions.
func (a *App) Start(ctx context.Context) error {
	if err := a.deps.Local.Initialize(); err != nil {
		return err
	}
	if err := a.reloadLocal(); err != nil {
		return err
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.deps.Sync.OnStatus(func(s models.SyncStatus) {
		a.apply(func(st *Snapshot) { st.SyncStatus = s })
	})
	a.apply(func(st *Snapshot) {
		st.Loading = false
		st.SyncStatus = a.deps.Sync.Status()
	})

	a.deps.Monitor.OnChange(a.onConnectivity)
	a.deps.Monitor.Start(a.ctx)

	if a.deps.Scheduler != nil {
		if err := a.deps.Scheduler.Start(a.ctx); err != nil {
			return err
		}
	}
	if a.deps.Watcher != nil {
		err := a.deps.Watcher.Watch(a.ctx, func() {
			if err := a.reloadLocal(); err != nil {
				a.log.Warn("reload local store", zap.Error(err))
			}
		}, a.log)
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop releases subscriptions and background workers.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.deps.Monitor.Stop()
	if a.deps.Scheduler != nil {
		a.deps.Scheduler.Stop()
	}
	a.closeSubscriptions()
	a.wg.Wait()
}

// Subscribe registers fn to receive every new snapshot, in revision order.
// fn must not call mutating App methods. The returned func unregisters it.
func (a *App) Subscribe(fn func(Snapshot)) func() {
	a.applyMu.Lock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = fn
	a.applyMu.Unlock()
	return func() {
		a.applyMu.Lock()
		delete(a.observers, id)
		a.applyMu.Unlock()
	}
}

// apply is the only writer of the state.
func (a *App) apply(fn func(*Snapshot)) {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	a.stateMu.Lock()
	fn(&a.state)
	a.state.Revision++
	snap := a.state.clone()
	a.stateMu.Unlock()

	for _, obs := range a.observers {
		obs(snap)
	}
}

func (a *App) onConnectivity(online bool) {
	a.apply(func(st *Snapshot) { st.IsOnline = online })
	if !online {
		a.closeSubscriptions()
		return
	}
	if a.ctx == nil || a.ctx.Err() != nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.SyncNow(a.ctx); err != nil {
			a.log.Warn("sync after reconnect", zap.Error(err))
		}
		a.openSubscriptions(a.ctx)
	}()
}

func (a *App) openSubscriptions(ctx context.Context) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if len(a.unsubs) > 0 || ctx.Err() != nil || !a.deps.Monitor.IsOnline() {
		return
	}

	unsubUsers, err := a.deps.Remote.SubscribeUsers(ctx, a.onRemoteUsers)
	if err != nil {
		a.log.Warn("subscribe users", zap.Error(err))
		return
	}
	unsubExpenses, err := a.deps.Remote.SubscribeExpenses(ctx, a.onRemoteExpenses)
	if err != nil {
		unsubUsers()
		a.log.Warn("subscribe expenses", zap.Error(err))
		return
	}
	a.unsubs = []remote.Unsubscribe{unsubUsers, unsubExpenses}
	a.log.Debug("live subscriptions open")
}

func (a *App) closeSubscriptions() {
	a.subMu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.subMu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func (a *App) onRemoteUsers(users []models.User) {
	if err := a.deps.Local.ReplaceUsers(users); err != nil {
		a.log.Warn("store remote users", zap.Error(err))
	}
	a.apply(func(st *Snapshot) { st.Users = users })
}

func (a *App) onRemoteExpenses(expenses []models.Expense) {
	if err := a.deps.Local.ReplaceExpenses(expenses); err != nil {
		a.log.Warn("store remote expenses", zap.Error(err))
	}
	a.apply(func(st *Snapshot) { st.Expenses = expenses })
}

func (a *App) reloadLocal() error {
	users, err := a.deps.Local.GetUsers()
	if err != nil {
		return err
	}
	expenses, err := a.deps.Local.GetExpenses()
	if err != nil {
		return err
	}
	a.apply(func(st *Snapshot) {
		st.Users = users
		st.Expenses = expenses
	})
	return nil
}

// SyncNow runs a sync and replaces the in-memory collections with its
// result.
func (a *App) SyncNow(ctx context.Context) error {
	if !a.deps.Monitor.IsOnline() {
		return ErrOffline
	}
	res, err := a.deps.Sync.Sync(ctx)
	if err != nil {
		return err
	}
	a.apply(func(st *Snapshot) {
		st.Users = res.Users
		st.Expenses = res.Expenses
	})
	return nil
}

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() Snapshot {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state.clone()
}

// Users returns the in-memory users.
func (a *App) Users() []models.User { return a.Snapshot().Users }

// Expenses returns the in-memory expenses.
func (a *App) Expenses() []models.Expense { return a.Snapshot().Expenses }

// User looks up a user by id.
func (a *App) User(id string) (models.User, bool) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	for _, u := range a.state.Users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// Expense looks up an expense by id.
func (a *App) Expense(id string) (models.Expense, bool) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	for _, x := range a.state.Expenses {
		if x.ID == id {
			return x, true
		}
	}
	return models.Expense{}, false
}

// Summary aggregates the in-memory expenses.
func (a *App) Summary() analytics.Summary {
	s := a.Snapshot()
	return analytics.Summarize(s.Users, s.Expenses)
}
