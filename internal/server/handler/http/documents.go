package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/GophSpend/internal/middleware"
	"github.com/atinyakov/GophSpend/internal/models"
	"github.com/atinyakov/GophSpend/internal/service"
)

const maxBodySize = 1 << 20

// DocumentService defines the collection operations behind the document
// endpoints.
type DocumentService interface {
	List(ctx context.Context, c models.Collection) ([]json.RawMessage, error)
	Get(ctx context.Context, c models.Collection, id string) (json.RawMessage, error)
	Create(ctx context.Context, c models.Collection, body []byte) (json.RawMessage, error)
	Merge(ctx context.Context, c models.Collection, id string, body []byte) (json.RawMessage, error)
	Delete(ctx context.Context, c models.Collection, id string) error
}

// DocumentHandler serves /collections/{collection}[/{id}].
type DocumentHandler struct {
	Documents DocumentService
	Log       *zap.Logger
}

// List responds with every live document of the collection.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Documents.List(r.Context(), collectionParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get responds with one document.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Documents.Get(r.Context(), collectionParam(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Create stores the body as a new document and responds 201 with it.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	doc, err := h.Documents.Create(r.Context(), collectionParam(r), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// Merge upserts the body into the document at {id}.
func (h *DocumentHandler) Merge(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	doc, err := h.Documents.Merge(r.Context(), collectionParam(r), chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete removes the document at {id} and responds 204, also when it did
// not exist.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Documents.Delete(r.Context(), collectionParam(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownCollection), errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidDocument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger(h.Log).Error("document request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("account", middleware.GetAccountFromContext(r.Context())),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func collectionParam(r *http.Request) models.Collection {
	return models.Collection(chi.URLParam(r, "collection"))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "invalid request", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}
