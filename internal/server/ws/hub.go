package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/metrics"
	"github.com/atinyakov/GophSpend/internal/models"
)

type publication struct {
	collection models.Collection
	message    []byte
}

type registration struct {
	client *Client
	// initial is sent when nothing has been published for the collection yet.
	initial []byte
}

// Hub maintains the set of subscribed clients and sends them snapshots of
// the collection they follow. All state is owned by the Run goroutine.
type Hub struct {
	register   chan registration
	unregister chan *Client
	publish    chan publication
	done       chan struct{}

	// subscriptions maps a collection to the clients following it.
	subscriptions map[models.Collection]map[*Client]bool
	// latest holds the last published snapshot of each collection.
	latest map[models.Collection][]byte

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Metrics, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:      make(chan registration),
		unregister:    make(chan *Client),
		publish:       make(chan publication),
		done:          make(chan struct{}),
		subscriptions: make(map[models.Collection]map[*Client]bool),
		latest:        make(map[models.Collection][]byte),
		metrics:       m,
		log:           log,
	}
}

// Run processes registrations and publications until ctx is done, then
// closes every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c, subs := range h.subscriptions {
				for client := range subs {
					h.drop(c, client)
				}
			}
			return
		case reg := <-h.register:
			client := reg.client
			subs := h.subscriptions[client.Collection]
			if subs == nil {
				subs = make(map[*Client]bool)
				h.subscriptions[client.Collection] = subs
			}
			subs[client] = true
			h.metrics.SubscriberDelta(string(client.Collection), 1)
			h.log.Debug("subscriber connected", zap.String("collection", string(client.Collection)), zap.Int("total", len(subs)))

			msg := h.latest[client.Collection]
			if msg == nil {
				msg = reg.initial
			}
			h.send(client, msg)
		case client := <-h.unregister:
			if h.subscriptions[client.Collection][client] {
				h.drop(client.Collection, client)
				h.log.Debug("subscriber disconnected", zap.String("collection", string(client.Collection)))
			}
		case p := <-h.publish:
			h.latest[p.collection] = p.message
			for client := range h.subscriptions[p.collection] {
				h.send(client, p.message)
			}
		}
	}
}

// send queues message for client, dropping clients that cannot keep up.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("collection", string(client.Collection)))
		h.drop(client.Collection, client)
	}
}

func (h *Hub) drop(c models.Collection, client *Client) {
	subs := h.subscriptions[c]
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, c)
	}
	close(client.Send)
	h.metrics.SubscriberDelta(string(c), -1)
}

// Register adds client to its collection and queues the first snapshot for
// it: the last published one, or docs when nothing was published yet. It
// reports false once the hub has stopped.
func (h *Hub) Register(client *Client, docs []json.RawMessage) bool {
	msg, err := NewSnapshotMessage(client.Collection, docs)
	if err != nil {
		h.log.Error("failed to encode snapshot", zap.String("collection", string(client.Collection)), zap.Error(err))
		return false
	}
	select {
	case h.register <- registration{client: client, initial: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client and closes its send queue. Unknown clients are
// ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends a snapshot of c to every subscriber of c.
func (h *Hub) Publish(c models.Collection, docs []json.RawMessage) {
	msg, err := NewSnapshotMessage(c, docs)
	if err != nil {
		h.log.Error("failed to encode snapshot", zap.String("collection", string(c)), zap.Error(err))
		return
	}
	select {
	case h.publish <- publication{collection: c, message: msg}:
	case <-h.done:
	}
}
