package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/models"
)

func TestNormalizeDocument(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"timestamp object", `{"id":"a","createdAt":{"seconds":1686839400,"nanos":5000000}}`, `{"id":"a","createdAt":"2023-06-15T14:30:00.005Z"}`},
		{"iso string kept", `{"id":"a","createdAt":"2023-06-15T14:30:00"}`, `{"id":"a","createdAt":"2023-06-15T14:30:00"}`},
		{"pending null", `{"id":"a","createdAt":null}`, `{"id":"a","createdAt":""}`},
		{"no timestamp", `{"id":"u","name":"Ann"}`, `{"id":"u","name":"Ann"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeDocument(json.RawMessage(tc.in))
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}

	_, err := NormalizeDocument(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestCreateExpense_ServerAssignsIDAndTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/collections/expenses", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "John Doe", body["userName"])
		assert.NotContains(t, body, "id")
		assert.NotContains(t, body, "createdAt")

		body["id"] = "srv-1"
		body["createdAt"] = models.Timestamp{Seconds: 1700000000}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, srv.Client(), StaticToken("tok"), zap.NewNop())
	got, err := a.CreateExpense(context.Background(), models.ExpenseInput{
		Title: "Coffee", Amount: 4.5, Category: "Food & Dining", UserID: "1", Date: "2024-01-01", Time: "08:00",
	}, "John Doe")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ID)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", got.CreatedAt)
	assert.Equal(t, 4.5, got.Amount)
}

func TestUpdateUser_MergePatch(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, srv.Client(), nil, nil)
	u := models.User{ID: "42", Name: "Ann", Email: "ann@example.com"}
	got, err := a.UpdateUser(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/v1/collections/users/42", gotPath)
}

func TestDelete_Idempotent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, srv.Client(), nil, nil)
	require.NoError(t, a.DeleteUser(context.Background(), "1"))
	require.NoError(t, a.DeleteUser(context.Background(), "1"))
	require.NoError(t, a.DeleteExpense(context.Background(), "9"))
	assert.Equal(t, 3, calls)
}

func TestFetchExpenses_Normalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"a","title":"Old","amount":10,"createdAt":"2023-06-15T14:30:00"},
			{"id":"b","title":"New","amount":20,"createdAt":{"seconds":0,"nanos":0}}
		]`))
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, srv.Client(), nil, nil)
	got, err := a.FetchExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2023-06-15T14:30:00", got[0].CreatedAt)
	assert.Equal(t, "1970-01-01T00:00:00.000Z", got[1].CreatedAt)
}

func TestAPIError_Verbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAuthClient(srv.URL, srv.Client())
	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", err.Error())
}

func TestRegister_ReturnsSession(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/register", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Session{Token: "jwt", Email: body["email"], ExpiresAt: exp})
	}))
	defer srv.Close()

	s, err := NewAuthClient(srv.URL, srv.Client()).Register(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jwt", s.Token)
	assert.Equal(t, "ann@example.com", s.Email)
	assert.True(t, s.ExpiresAt.Equal(exp))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	a := NewAdapter(srv.URL, srv.Client(), nil, nil)
	require.NoError(t, a.Ping(context.Background()))

	srv.Close()
	assert.Error(t, a.Ping(context.Background()))
}

func TestSubscribeUsers_Snapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/collections/users/subscribe", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, names := range [][]string{{"Ann"}, {"Ann", "Bob"}} {
			var docs []models.User
			for i, n := range names {
				docs = append(docs, models.User{ID: string(rune('a' + i)), Name: n})
			}
			_ = conn.WriteJSON(map[string]any{"action": "snapshot", "collection": "users", "payload": docs})
		}
		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var (
		mu   sync.Mutex
		seen [][]models.User
	)
	a := NewAdapter(srv.URL, srv.Client(), nil, zap.NewNop())
	unsubscribe, err := a.SubscribeUsers(context.Background(), func(users []models.User) {
		mu.Lock()
		seen = append(seen, users)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen[0], 1)
	assert.Len(t, seen[1], 2)
	assert.Equal(t, "Bob", seen[1][1].Name)
}

func TestSubscribeUsers_ReconnectsAfterServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var (
		mu    sync.Mutex
		dials int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		docs := []models.User{{ID: "a", Name: "Ann"}}
		if n > 1 {
			docs = append(docs, models.User{ID: "b", Name: "Bob"})
		}
		_ = conn.WriteJSON(map[string]any{"action": "snapshot", "collection": "users", "payload": docs})
		if n == 1 {
			// Simulate a server restart.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	snapshots := make(chan []models.User, 4)
	a := NewAdapter(srv.URL, srv.Client(), nil, zap.NewNop())
	a.resubscribeMin = 10 * time.Millisecond
	unsubscribe, err := a.SubscribeUsers(context.Background(), func(users []models.User) { snapshots <- users })
	require.NoError(t, err)
	defer unsubscribe()

	next := func() []models.User {
		select {
		case users := <-snapshots:
			return users
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
			return nil
		}
	}
	assert.Len(t, next(), 1)
	users := next()
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[1].Name)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, dials)
}

func TestSubscribe_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing auth token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL, srv.Client(), nil, nil)
	_, err := a.SubscribeExpenses(context.Background(), func([]models.Expense) {})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "missing auth token", apiErr.Message)
}

func TestFileTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s", "session.json")
	src, err := NewFileTokenSource(path)
	require.NoError(t, err)
	assert.Equal(t, "", src.Token())

	require.NoError(t, src.Save(&models.Session{Token: "abc", Email: "a@b.c"}))
	again, err := NewFileTokenSource(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", again.Token())
	assert.Equal(t, "a@b.c", again.Session().Email)
}
