package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/metrics"
	"github.com/atinyakov/GophSpend/internal/models"
	"github.com/atinyakov/GophSpend/internal/repository"
)

var (
	// ErrUnknownCollection is returned for collection names other than
	// users and expenses.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrInvalidDocument is returned when a body is not a JSON object.
	ErrInvalidDocument = errors.New("document must be a JSON object")
	// ErrNotFound is returned when the document does not exist or was
	// deleted.
	ErrNotFound = errors.New("document not found")
)

// DocumentRepository persists documents.
type DocumentRepository interface {
	List(ctx context.Context, c models.Collection) ([]models.Document, error)
	// Get returns repository.ErrDocumentNotFound for missing documents.
	Get(ctx context.Context, c models.Collection, id string) (*models.Document, error)
	Insert(ctx context.Context, doc *models.Document) error
	Merge(ctx context.Context, c models.Collection, id string, data []byte) (*models.Document, error)
	Delete(ctx context.Context, c models.Collection, id string) error
}

// Publisher fans a collection snapshot out to live subscribers.
type Publisher interface {
	Publish(c models.Collection, docs []json.RawMessage)
}

// DocumentService reads and writes collection documents. After every
// successful write the full collection is published to subscribers.
type DocumentService struct {
	repo      DocumentRepository
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	newID     func() string
}

// NewDocumentService constructs a DocumentService. publisher and m may be
// nil.
func NewDocumentService(repo DocumentRepository, publisher Publisher, m *metrics.Metrics, log *zap.Logger) *DocumentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log,
		newID:     uuid.NewString,
	}
}

// List returns the live documents of c, oldest first.
func (s *DocumentService) List(ctx context.Context, c models.Collection) ([]json.RawMessage, error) {
	if !c.Valid() {
		return nil, ErrUnknownCollection
	}
	docs, err := s.repo.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(docs))
	for i := range docs {
		b, err := render(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Get returns one document.
func (s *DocumentService) Get(ctx context.Context, c models.Collection, id string) (json.RawMessage, error) {
	if !c.Valid() {
		return nil, ErrUnknownCollection
	}
	doc, err := s.repo.Get(ctx, c, id)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return render(doc)
}

// Create stores body under a new id. Client supplied "id" and "createdAt"
// fields are dropped; the server creation time is reported instead.
func (s *DocumentService) Create(ctx context.Context, c models.Collection, body []byte) (json.RawMessage, error) {
	if !c.Valid() {
		return nil, ErrUnknownCollection
	}
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	delete(fields, "createdAt")
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{Collection: c, ID: s.newID(), Data: data}
	if err := s.repo.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert %s: %w", c, err)
	}
	s.metrics.DocumentWrite(string(c), "create")
	s.publish(ctx, c)
	return render(doc)
}

// Merge shallow-merges body into the document with the given id, creating
// it if needed. A deleted document is revived with body as its content.
func (s *DocumentService) Merge(ctx context.Context, c models.Collection, id string, body []byte) (json.RawMessage, error) {
	if !c.Valid() {
		return nil, ErrUnknownCollection
	}
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	delete(fields, "id")
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	doc, err := s.repo.Merge(ctx, c, id, data)
	if err != nil {
		return nil, fmt.Errorf("merge %s/%s: %w", c, id, err)
	}
	s.metrics.DocumentWrite(string(c), "merge")
	s.publish(ctx, c)
	return render(doc)
}

// Delete removes a document. Deleting a missing document succeeds.
func (s *DocumentService) Delete(ctx context.Context, c models.Collection, id string) error {
	if !c.Valid() {
		return ErrUnknownCollection
	}
	if err := s.repo.Delete(ctx, c, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	s.metrics.DocumentWrite(string(c), "delete")
	s.publish(ctx, c)
	return nil
}

// publish sends the current collection to subscribers. A failed read is
// logged; the write it follows has already succeeded.
func (s *DocumentService) publish(ctx context.Context, c models.Collection) {
	if s.publisher == nil {
		return
	}
	docs, err := s.List(context.WithoutCancel(ctx), c)
	if err != nil {
		s.log.Error("failed to load snapshot for subscribers", zap.String("collection", string(c)), zap.Error(err))
		return
	}
	s.publisher.Publish(c, docs)
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, ErrInvalidDocument
	}
	return fields, nil
}

// render produces the wire form of doc: its data with "id" set, and for
// expenses without a string createdAt, the server creation time as a
// Timestamp object.
func render(doc *models.Document) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	id, err := json.Marshal(doc.ID)
	if err != nil {
		return nil, err
	}
	fields["id"] = id

	if doc.Collection == models.CollectionExpenses && !isString(fields["createdAt"]) {
		ts, err := json.Marshal(models.NewTimestamp(doc.CreatedAt))
		if err != nil {
			return nil, err
		}
		fields["createdAt"] = ts
	}
	return json.Marshal(fields)
}

func isString(raw json.RawMessage) bool {
	var s string
	return len(raw) > 0 && json.Unmarshal(raw, &s) == nil
}
