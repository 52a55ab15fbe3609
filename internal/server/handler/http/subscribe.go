package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/server/ws"
)

// SubscribeHandler upgrades requests to websocket subscriptions of one
// collection. The hub sends the first snapshot on registration.
type SubscribeHandler struct {
	Hub       *ws.Hub
	Documents DocumentService
	Upgrader  websocket.Upgrader
	Log       *zap.Logger
}

// Serve handles GET /collections/{collection}/subscribe.
func (h *SubscribeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	c := collectionParam(r)
	docs, err := h.Documents.List(r.Context(), c)
	if err != nil {
		(&DocumentHandler{Log: h.Log}).fail(w, r, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger(h.Log).Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.Hub, conn, c)
	if !h.Hub.Register(client, docs) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}
