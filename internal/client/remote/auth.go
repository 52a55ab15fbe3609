package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atinyakov/GophSpend/internal/models"
)

const (
	apiRegister = apiPrefix + "/auth/register"
	apiLogin    = apiPrefix + "/auth/login"
)

// AuthClient signs in against the document store.
type AuthClient struct {
	adapter *Adapter
}

// NewAuthClient returns an auth client for the server at baseURL.
func NewAuthClient(baseURL string, client *http.Client) *AuthClient {
	return &AuthClient{adapter: NewAdapter(baseURL, client, nil, nil)}
}

// Login exchanges credentials for a session. Server errors are returned as
// *APIError carrying the server message.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*models.Session, error) {
	return c.post(ctx, apiLogin, email, password)
}

// Register creates an account and returns its first session.
func (c *AuthClient) Register(ctx context.Context, email, password string) (*models.Session, error) {
	return c.post(ctx, apiRegister, email, password)
}

func (c *AuthClient) post(ctx context.Context, path, email, password string) (*models.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var session models.Session
	if err := c.adapter.do(ctx, http.MethodPost, path, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// FileTokenSource keeps the current session in a JSON file.
type FileTokenSource struct {
	path string

	mu      sync.Mutex
	session *models.Session
}

// NewFileTokenSource loads the session at path if one is stored.
func NewFileTokenSource(path string) (*FileTokenSource, error) {
	s := &FileTokenSource{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.session = &session
	return s, nil
}

// Token returns the stored bearer token, or "" when logged out.
func (s *FileTokenSource) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// Session returns the stored session or nil.
func (s *FileTokenSource) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Save replaces the stored session.
func (s *FileTokenSource) Save(session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return nil
}
