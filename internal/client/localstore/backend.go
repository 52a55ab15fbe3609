package localstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend is the key-value medium under a Store. Values are raw JSON.
type Backend interface {
	// Get returns the value stored under key; ok is false when the key has
	// never been written.
	Get(key string) (value []byte, ok bool, err error)
	// Set writes all entries at once.
	Set(entries map[string][]byte) error
	// Close releases the medium.
	Close() error
}

// FileBackend keeps every key in one JSON object file.
type FileBackend struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
	// lastWritten is the file content as this process last saw or wrote it.
	lastWritten []byte
	// external is set when Get or Set absorbed another process's write that
	// Reload has not reported yet.
	external bool
}

// OpenFile loads path, creating its directory when needed. A missing file is
// an empty store.
func OpenFile(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	b := &FileBackend{path: path, data: map[string]json.RawMessage{}}
	if _, err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the store file location.
func (b *FileBackend) Path() string {
	return b.path
}

// Get reads key from the file, picking up writes made by other processes.
func (b *FileBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refresh(); err != nil {
		return nil, false, err
	}
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set merges entries over the current file content, including writes made
// by other processes since the last load, and replaces the file atomically.
func (b *FileBackend) Set(entries map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refresh(); err != nil {
		return err
	}

	next := make(map[string]json.RawMessage, len(b.data)+len(entries))
	for k, v := range b.data {
		next[k] = v
	}
	for k, v := range entries {
		next[k] = append(json.RawMessage(nil), v...)
	}

	buf, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".storage-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace store: %w", err)
	}

	b.data = next
	b.lastWritten = buf
	return nil
}

// Reload re-reads the file. It reports whether another process changed it
// since this process last reported, wrote or loaded it.
func (b *FileBackend) Reload() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed, err := b.load()
	if err != nil {
		return false, err
	}
	changed = changed || b.external
	b.external = false
	return changed, nil
}

// refresh loads another process's write and leaves it for Reload to
// report.
func (b *FileBackend) refresh() error {
	changed, err := b.load()
	if changed {
		b.external = true
	}
	return err
}

// load reads the file into data when it differs from lastWritten.
func (b *FileBackend) load() (bool, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read store: %w", err)
	}
	if bytes.Equal(raw, b.lastWritten) {
		return false, nil
	}
	data := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return false, fmt.Errorf("decode store: %w", err)
		}
	}
	b.data = data
	b.lastWritten = raw
	return true, nil
}

func (b *FileBackend) Close() error {
	return nil
}
