package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/GophSpend/internal/models"
)

// timestampFields are document fields the server may fill with its own
// clock.
var timestampFields = []string{"createdAt"}

// NormalizeDocument rewrites server timestamp values ({"seconds","nanos"}
// objects) into ISO strings. Other fields pass through untouched.
func NormalizeDocument(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	changed := false
	for _, name := range timestampFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		switch {
		case len(v) > 0 && v[0] == '{':
			var ts models.Timestamp
			if err := json.Unmarshal(v, &ts); err != nil {
				return nil, fmt.Errorf("decode %s: %w", name, err)
			}
			fields[name], _ = json.Marshal(ts.ISO())
			changed = true
		case bytes.Equal(v, []byte("null")):
			// An unresolved server value reads as empty until the write lands.
			fields[name] = json.RawMessage(`""`)
			changed = true
		}
	}
	if !changed {
		return raw, nil
	}
	return json.Marshal(fields)
}

func decodeDocument(raw json.RawMessage, out any) error {
	norm, err := NormalizeDocument(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(norm, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func decodeDocuments[T any](docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, raw := range docs {
		var v T
		if err := decodeDocument(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
