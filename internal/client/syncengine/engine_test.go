package syncengine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/GophSpend/internal/client/localstore"
	"github.com/atinyakov/GophSpend/internal/models"
)

// memRemote is an in-memory remote store. Hooks run before the default
// behavior and may return an error to fail the call.
type memRemote struct {
	mu       sync.Mutex
	users    []models.User
	expenses []models.Expense
	deleted  []string

	UpdateExpenseHook func(models.Expense) error
	DeleteUserHook    func(id string) error
	FetchUsersHook    func() error
}

func (r *memRemote) UpdateUser(_ context.Context, u models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == u.ID {
			r.users[i] = u
			return u, nil
		}
	}
	r.users = append(r.users, u)
	return u, nil
}

func (r *memRemote) UpdateExpense(_ context.Context, x models.Expense) (models.Expense, error) {
	if r.UpdateExpenseHook != nil {
		if err := r.UpdateExpenseHook(x); err != nil {
			return models.Expense{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.expenses {
		if r.expenses[i].ID == x.ID {
			r.expenses[i] = x
			return x, nil
		}
	}
	r.expenses = append(r.expenses, x)
	return x, nil
}

func (r *memRemote) DeleteUser(_ context.Context, id string) error {
	if r.DeleteUserHook != nil {
		if err := r.DeleteUserHook(id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, "users/"+id)
	for i := range r.users {
		if r.users[i].ID == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memRemote) DeleteExpense(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, "expenses/"+id)
	for i := range r.expenses {
		if r.expenses[i].ID == id {
			r.expenses = append(r.expenses[:i], r.expenses[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memRemote) FetchUsers(context.Context) ([]models.User, error) {
	if r.FetchUsersHook != nil {
		if err := r.FetchUsersHook(); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.User(nil), r.users...), nil
}

func (r *memRemote) FetchExpenses(context.Context) ([]models.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Expense(nil), r.expenses...), nil
}

func newStore(t *testing.T) *localstore.Store {
	t.Helper()
	b, err := localstore.OpenFile(filepath.Join(t.TempDir(), "storage.json"))
	require.NoError(t, err)
	s := localstore.New(b)
	require.NoError(t, s.ReplaceUsers(nil))
	require.NoError(t, s.ReplaceExpenses(nil))
	require.NoError(t, s.Initialize())
	return s
}

var fastBackoff = WithBackoff(Backoff{Base: time.Millisecond, Factor: 2, Attempts: 3})

func TestSync_RemoteWins(t *testing.T) {
	local := newStore(t)
	require.NoError(t, local.ReplaceExpenses([]models.Expense{{ID: "1", Title: "Lunch", Amount: 10}}))

	// Another device writes amount 20 between our push and our pull.
	remote := &memRemote{}
	remote.FetchUsersHook = func() error {
		remote.mu.Lock()
		remote.expenses = []models.Expense{{ID: "1", Title: "Lunch", Amount: 20}}
		remote.mu.Unlock()
		return nil
	}

	e := New(local, remote, nil)
	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.Equal(t, 20.0, res.Expenses[0].Amount)

	got, err := local.GetExpense("1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Amount)
	assert.Equal(t, models.SyncSynced, e.Status())
}

func TestSync_PushesLocalAndPullsRemote(t *testing.T) {
	local := newStore(t)
	u, err := local.AddUser(models.UserInput{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	remote := &memRemote{users: []models.User{{ID: "r1", Name: "Remote"}}}
	e := New(local, remote, nil)

	var statuses []models.SyncStatus
	e.OnStatus(func(s models.SyncStatus) { statuses = append(statuses, s) })

	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.SyncStatus{models.SyncSyncing, models.SyncSynced}, statuses)

	ids := []string{}
	for _, x := range res.Users {
		ids = append(ids, x.ID)
	}
	assert.ElementsMatch(t, []string{"r1", u.ID}, ids)

	users, err := local.GetUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)

	ops, err := local.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, ops, "delivered operations are acknowledged")
}

func TestSync_ErrorKeepsPartialProgress(t *testing.T) {
	local := newStore(t)
	_, err := local.AddUser(models.UserInput{Name: "Ann"})
	require.NoError(t, err)
	before, err := local.GetUsers()
	require.NoError(t, err)

	remote := &memRemote{FetchUsersHook: func() error { return errors.New("unavailable") }}
	e := New(local, remote, nil)

	_, err = e.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.SyncError, e.Status())

	// The push landed even though the pull failed.
	remote.mu.Lock()
	assert.Len(t, remote.users, 1)
	remote.mu.Unlock()

	after, err := local.GetUsers()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSync_ConcurrentCallsCoalesce(t *testing.T) {
	local := newStore(t)
	require.NoError(t, local.ReplaceExpenses([]models.Expense{{ID: "1", Amount: 1}}))

	var pushes atomic.Int32
	release := make(chan struct{})
	remote := &memRemote{}
	remote.UpdateExpenseHook = func(models.Expense) error {
		pushes.Add(1)
		<-release
		return nil
	}
	e := New(local, remote, nil)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Sync(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return pushes.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), pushes.Load())
}

func TestDrainOutbox_DeliversInOrderAndAcks(t *testing.T) {
	local := newStore(t)
	u, err := local.AddUser(models.UserInput{Name: "Ann"})
	require.NoError(t, err)
	x, err := local.AddExpense(models.ExpenseInput{Title: "Tea", Amount: 3, UserID: u.ID})
	require.NoError(t, err)
	require.NoError(t, local.DeleteExpense(x.ID))

	remote := &memRemote{}
	e := New(local, remote, nil, fastBackoff)

	n, err := e.DrainOutbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"expenses/" + x.ID}, remote.deleted)
	assert.Len(t, remote.users, 1)
	assert.Empty(t, remote.expenses)

	ops, err := local.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDrainOutbox_RetriesThenStops(t *testing.T) {
	local := newStore(t)
	_, err := local.AddPendingOperation(models.OpDeleteUser, map[string]string{"id": "7"})
	require.NoError(t, err)
	_, err = local.AddPendingOperation(models.OpDeleteExpense, map[string]string{"id": "8"})
	require.NoError(t, err)

	var calls int
	remote := &memRemote{DeleteUserHook: func(string) error {
		calls++
		return errors.New("503")
	}}
	e := New(local, remote, nil, fastBackoff)

	n, err := e.DrainOutbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, calls)
	assert.Empty(t, remote.deleted, "later items wait behind the failing one")

	ops, err := local.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.Equal(t, 0, ops[1].Attempts)
}

func TestDrainOutbox_TransientFailureRecovers(t *testing.T) {
	local := newStore(t)
	_, err := local.AddPendingOperation(models.OpDeleteUser, map[string]string{"id": "7"})
	require.NoError(t, err)

	var calls int
	remote := &memRemote{DeleteUserHook: func(string) error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	}}
	e := New(local, remote, nil, fastBackoff)

	n, err := e.DrainOutbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}

func TestDrainOutbox_DropsMalformed(t *testing.T) {
	local := newStore(t)
	_, err := local.AddPendingOperation(models.OpUpdateUser, map[string]string{"name": "no id"})
	require.NoError(t, err)
	_, err = local.AddPendingOperation(models.OpDeleteExpense, map[string]string{"id": "8"})
	require.NoError(t, err)

	remote := &memRemote{}
	e := New(local, remote, nil, fastBackoff)

	n, err := e.DrainOutbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"expenses/8"}, remote.deleted)

	ops, err := local.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, ops)
}

type onlineFlag struct{ v atomic.Bool }

func (o *onlineFlag) IsOnline() bool { return o.v.Load() }

func TestScheduler_DrainsOnlyWhileOnline(t *testing.T) {
	local := newStore(t)
	_, err := local.AddPendingOperation(models.OpDeleteExpense, map[string]string{"id": "8"})
	require.NoError(t, err)

	remote := &memRemote{}
	online := &onlineFlag{}
	s := NewScheduler(New(local, remote, nil, fastBackoff), online, time.Second, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(1200 * time.Millisecond)
	ops, err := local.PendingOperations()
	require.NoError(t, err)
	assert.Len(t, ops, 1)

	online.v.Store(true)
	require.Eventually(t, func() bool {
		ops, err := local.PendingOperations()
		return err == nil && len(ops) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RejectsZeroInterval(t *testing.T) {
	s := NewScheduler(nil, &onlineFlag{}, 0, nil)
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}
