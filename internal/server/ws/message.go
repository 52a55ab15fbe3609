// Package ws fans collection snapshots out to websocket subscribers.
package ws

import (
	"encoding/json"

	"github.com/atinyakov/GophSpend/internal/models"
)

// ActionSnapshot carries the full live content of a collection.
const ActionSnapshot = "snapshot"

// Message is the frame sent to subscribers.
type Message struct {
	Action     string            `json:"action"`
	Collection models.Collection `json:"collection"`
	Payload    []json.RawMessage `json:"payload"`
}

// NewSnapshotMessage encodes a snapshot frame. A nil docs slice is sent as
// an empty array.
func NewSnapshotMessage(c models.Collection, docs []json.RawMessage) ([]byte, error) {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	return json.Marshal(Message{Action: ActionSnapshot, Collection: c, Payload: docs})
}
