package localstore

import (
	"encoding/json"
	"fmt"

	"github.com/atinyakov/GophSpend/internal/models"
)

// PendingOperations returns the outbox in enqueue order.
func (s *Store) PendingOperations() ([]models.PendingOperation, error) {
	return readList[models.PendingOperation](s.backend, KeyPendingOperations)
}

// AddPendingOperation appends an entry for data to the outbox.
func (s *Store) AddPendingOperation(typ models.OperationType, data any) (models.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := s.newOperation(typ, data)
	if err != nil {
		return models.PendingOperation{}, err
	}
	err = s.updateOutbox(func(ops []models.PendingOperation) []models.PendingOperation {
		return append(ops, op)
	})
	return op, err
}

// AckPendingOperation removes the entry with the given id. Unknown ids are
// ignored.
func (s *Store) AckPendingOperation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateOutbox(func(ops []models.PendingOperation) []models.PendingOperation {
		kept := ops[:0]
		for _, op := range ops {
			if op.ID != id {
				kept = append(kept, op)
			}
		}
		return kept
	})
}

// MarkAttempt records one more failed delivery round for the entry.
func (s *Store) MarkAttempt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateOutbox(func(ops []models.PendingOperation) []models.PendingOperation {
		for i := range ops {
			if ops[i].ID == id {
				ops[i].Attempts++
			}
		}
		return ops
	})
}

// ClearPendingOperations empties the outbox.
func (s *Store) ClearPendingOperations() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateOutbox(func([]models.PendingOperation) []models.PendingOperation {
		return []models.PendingOperation{}
	})
}

func (s *Store) updateOutbox(fn func([]models.PendingOperation) []models.PendingOperation) error {
	ops, err := readList[models.PendingOperation](s.backend, KeyPendingOperations)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fn(ops))
	if err != nil {
		return fmt.Errorf("encode pending operations: %w", err)
	}
	if err := s.backend.Set(map[string][]byte{KeyPendingOperations: raw}); err != nil {
		return fmt.Errorf("persist pending operations: %w", err)
	}
	return nil
}
