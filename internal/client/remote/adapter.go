// Package remote is the client side of the document store: per-collection
// CRUD over HTTP, live snapshots over websocket and the auth endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/models"
)

const (
	apiPrefix   = "/api/v1"
	apiHealth   = apiPrefix + "/health"
	collections = apiPrefix + "/collections/"
)

// APIError is a non-2xx answer from the server. Message is the response body
// as sent, so credential and validation errors reach the user unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// TokenSource supplies the bearer token for authenticated calls. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Adapter talks to the document store's collection API.
type Adapter struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	dialer  *websocket.Dialer
	log     *zap.Logger

	// resubscribeMin and resubscribeMax bound the delay between attempts
	// to reopen a dropped subscription.
	resubscribeMin time.Duration
	resubscribeMax time.Duration
}

// NewAdapter returns an adapter for the server at baseURL. A nil client uses
// a 10s-timeout default; a nil tokens source sends no credentials.
func NewAdapter(baseURL string, client *http.Client, tokens TokenSource, log *zap.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	// Subscriptions trust the same roots as the HTTP calls.
	if t, ok := client.Transport.(*http.Transport); ok && t.TLSClientConfig != nil {
		dialer.TLSClientConfig = t.TLSClientConfig.Clone()
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		tokens:  tokens,
		dialer:  dialer,
		log:     log,

		resubscribeMin: 500 * time.Millisecond,
		resubscribeMax: 30 * time.Second,
	}
}

// Ping checks that the server answers its health endpoint.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, apiHealth, nil, nil)
}

// CreateUser stores a new user; the server assigns the id.
func (a *Adapter) CreateUser(ctx context.Context, in models.UserInput) (models.User, error) {
	var out models.User
	err := a.create(ctx, models.CollectionUsers, in, &out)
	return out, err
}

// UpdateUser merges user into the stored document, creating it if absent.
func (a *Adapter) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	if err := a.merge(ctx, models.CollectionUsers, user.ID, user, nil); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// DeleteUser removes the user. Deleting a missing user succeeds.
func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	return a.delete(ctx, models.CollectionUsers, id)
}

// FetchUsers returns the whole users collection.
func (a *Adapter) FetchUsers(ctx context.Context) ([]models.User, error) {
	return fetch[models.User](ctx, a, models.CollectionUsers)
}

// CreateExpense stores a new expense under a server-assigned id. createdAt
// is taken from the server clock.
func (a *Adapter) CreateExpense(ctx context.Context, in models.ExpenseInput, userName string) (models.Expense, error) {
	body := struct {
		models.ExpenseInput
		UserName string `json:"userName"`
	}{in, userName}

	var out models.Expense
	err := a.create(ctx, models.CollectionExpenses, body, &out)
	return out, err
}

// UpdateExpense merges expense into the stored document, creating it if
// absent.
func (a *Adapter) UpdateExpense(ctx context.Context, expense models.Expense) (models.Expense, error) {
	if err := a.merge(ctx, models.CollectionExpenses, expense.ID, expense, nil); err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

// DeleteExpense removes the expense. Deleting a missing expense succeeds.
func (a *Adapter) DeleteExpense(ctx context.Context, id string) error {
	return a.delete(ctx, models.CollectionExpenses, id)
}

// FetchExpenses returns the whole expenses collection with server
// timestamps normalized.
func (a *Adapter) FetchExpenses(ctx context.Context) ([]models.Expense, error) {
	return fetch[models.Expense](ctx, a, models.CollectionExpenses)
}

func (a *Adapter) create(ctx context.Context, c models.Collection, body, out any) error {
	var raw json.RawMessage
	if err := a.do(ctx, http.MethodPost, collections+string(c), body, &raw); err != nil {
		return fmt.Errorf("create %s: %w", c, err)
	}
	return decodeDocument(raw, out)
}

func (a *Adapter) merge(ctx context.Context, c models.Collection, id string, body, out any) error {
	if id == "" {
		return fmt.Errorf("update %s: empty id", c)
	}
	var raw json.RawMessage
	if err := a.do(ctx, http.MethodPatch, collections+string(c)+"/"+url.PathEscape(id), body, &raw); err != nil {
		return fmt.Errorf("update %s/%s: %w", c, id, err)
	}
	if out == nil {
		return nil
	}
	return decodeDocument(raw, out)
}

func (a *Adapter) delete(ctx context.Context, c models.Collection, id string) error {
	if err := a.do(ctx, http.MethodDelete, collections+string(c)+"/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	return nil
}

func fetch[T any](ctx context.Context, a *Adapter, c models.Collection) ([]T, error) {
	var docs []json.RawMessage
	if err := a.do(ctx, http.MethodGet, collections+string(c), nil, &docs); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c, err)
	}
	return decodeDocuments[T](docs)
}

// do sends one JSON request. out may be nil when the body is not needed.
func (a *Adapter) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := a.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
