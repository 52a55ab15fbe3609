package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/GophSpend/internal/models"
)

// ErrDocumentNotFound is returned by Get for missing or deleted documents.
var ErrDocumentNotFound = errors.New("document not found")

// PostgresDocumentRepository stores JSON documents grouped by collection.
// Deletes are soft; tombstones are purged by db.StartTombstoneCleaner.
type PostgresDocumentRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresDocumentRepository creates a PostgresDocumentRepository using
// the provided *sql.DB.
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{DB: db}
}

// List returns the live documents of a collection in creation order.
func (r *PostgresDocumentRepository) List(ctx context.Context, c models.Collection) ([]models.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = $1 AND deleted = false
		ORDER BY created_at, id
	`, string(c))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc := models.Document{Collection: c}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return docs, nil
}

// Get loads one live document.
func (r *PostgresDocumentRepository) Get(ctx context.Context, c models.Collection, id string) (*models.Document, error) {
	doc := models.Document{Collection: c, ID: id}
	var data []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT data, created_at, updated_at FROM documents
		WHERE collection = $1 AND id = $2 AND deleted = false
	`, string(c), id).Scan(&data, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c, id, err)
	}
	doc.Data = data
	return &doc, nil
}

// Insert stores a new document and fills in its timestamps.
func (r *PostgresDocumentRepository) Insert(ctx context.Context, doc *models.Document) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, string(doc.Collection), doc.ID, []byte(doc.Data)).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return nil
}

// Merge writes data over the stored document field by field, creating the
// document if it does not exist. Writing to a deleted document revives it
// with data alone.
func (r *PostgresDocumentRepository) Merge(ctx context.Context, c models.Collection, id string, data []byte) (*models.Document, error) {
	doc := models.Document{Collection: c, ID: id}
	var merged []byte
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = CASE WHEN documents.deleted THEN EXCLUDED.data
			            ELSE documents.data || EXCLUDED.data END,
			deleted = false,
			updated_at = now()
		RETURNING data, created_at, updated_at
	`, string(c), id, data).Scan(&merged, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("merge %s/%s: %w", c, id, err)
	}
	doc.Data = merged
	return &doc, nil
}

// Delete marks a document deleted. Deleting a missing or already deleted
// document is not an error.
func (r *PostgresDocumentRepository) Delete(ctx context.Context, c models.Collection, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE documents SET deleted = true, updated_at = now()
		WHERE collection = $1 AND id = $2 AND deleted = false
	`, string(c), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	return nil
}
