package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/models"
)

// Unsubscribe closes a live subscription and waits for its reader to stop.
// Until then, a dropped connection is reopened in the background.
// Calling it more than once is harmless. It must not be called from inside
// the snapshot callback.
type Unsubscribe func()

// snapshotMessage is the frame the server pushes on every change.
type snapshotMessage struct {
	Action     string            `json:"action"`
	Collection models.Collection `json:"collection"`
	Payload    []json.RawMessage `json:"payload"`
}

// SubscribeUsers delivers the full users collection on connect and after
// every remote change.
func (a *Adapter) SubscribeUsers(ctx context.Context, onSnapshot func([]models.User)) (Unsubscribe, error) {
	return a.subscribe(ctx, models.CollectionUsers, func(docs []json.RawMessage) error {
		users, err := decodeDocuments[models.User](docs)
		if err != nil {
			return err
		}
		onSnapshot(users)
		return nil
	})
}

// SubscribeExpenses delivers the full expenses collection on connect and
// after every remote change.
func (a *Adapter) SubscribeExpenses(ctx context.Context, onSnapshot func([]models.Expense)) (Unsubscribe, error) {
	return a.subscribe(ctx, models.CollectionExpenses, func(docs []json.RawMessage) error {
		expenses, err := decodeDocuments[models.Expense](docs)
		if err != nil {
			return err
		}
		onSnapshot(expenses)
		return nil
	})
}

// subscription tracks the live connection of one subscribe call. The reader
// swaps in a new connection after each reconnect.
type subscription struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *subscription) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// swap installs conn, closing the previous one. It reports false, and closes
// conn, when the subscription was already closed.
func (s *subscription) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return false
	}
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	prev.Close()
	return true
}

func (s *subscription) close() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.conn
}

// subscribe dials the collection's feed and keeps it open until the returned
// Unsubscribe is called or parent is done. A dropped connection is redialed
// with growing delays; the server sends a full snapshot on every connect.
func (a *Adapter) subscribe(parent context.Context, c models.Collection, handle func([]json.RawMessage) error) (Unsubscribe, error) {
	conn, err := a.dialSubscription(parent, c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	sub := &subscription{conn: conn}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			err := a.readSnapshots(sub.current(), c, handle)
			if ctx.Err() != nil {
				return
			}
			a.log.Warn("subscription dropped, reconnecting", zap.String("collection", string(c)), zap.Error(err))
			next, ok := a.redialSubscription(ctx, c)
			if !ok || !sub.swap(next) {
				return
			}
			a.log.Info("subscription restored", zap.String("collection", string(c)))
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			conn := sub.close()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
				!errors.Is(err, websocket.ErrCloseSent) {
				a.log.Debug("send close frame", zap.Error(err))
			}
			conn.Close()
			<-done
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return unsubscribe, nil
}

func (a *Adapter) dialSubscription(ctx context.Context, c models.Collection) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := a.tokens.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := a.dialer.DialContext(ctx, websocketURL(a.baseURL)+collections+string(c)+"/subscribe", header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, readAPIError(resp)
		}
		return nil, err
	}
	return conn, nil
}

// redialSubscription retries the dial until it succeeds or ctx is done.
func (a *Adapter) redialSubscription(ctx context.Context, c models.Collection) (*websocket.Conn, bool) {
	delay := a.resubscribeMin
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		conn, err := a.dialSubscription(ctx, c)
		if err == nil {
			return conn, true
		}
		a.log.Debug("resubscribe failed", zap.String("collection", string(c)), zap.Duration("delay", delay), zap.Error(err))
		delay = min(delay*2, a.resubscribeMax)
	}
}

// readSnapshots hands every snapshot frame to handle until the connection
// fails.
func (a *Adapter) readSnapshots(conn *websocket.Conn, c models.Collection, handle func([]json.RawMessage) error) error {
	for {
		var msg snapshotMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Action != "snapshot" {
			continue
		}
		if err := handle(msg.Payload); err != nil {
			a.log.Warn("bad snapshot", zap.String("collection", string(c)), zap.Error(err))
		}
	}
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
