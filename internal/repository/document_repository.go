package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

// DocumentRepository stores schemaless documents in a Postgres JSONB table.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

type documentRow struct {
	ID         string    `db:"id"`
	Collection string    `db:"collection"`
	Data       []byte    `db:"data"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r documentRow) toDocument() (models.Document, error) {
	doc := models.Document{ID: r.ID, Collection: r.Collection, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &doc.Data); err != nil {
			return models.Document{}, fmt.Errorf("decode document %s/%s: %w", r.Collection, r.ID, err)
		}
	}
	if doc.Data == nil {
		doc.Data = map[string]interface{}{}
	}
	return doc, nil
}

// Query returns the documents of a collection matching every equality filter,
// oldest first. Filters are evaluated with JSONB containment.
func (r *DocumentRepository) Query(ctx context.Context, collection string, filters ...models.Filter) ([]models.Document, error) {
	query := `SELECT id, collection, data, created_at, updated_at FROM documents WHERE collection = $1`
	args := []interface{}{collection}
	for _, f := range filters {
		payload, err := json.Marshal(map[string]interface{}{f.Field: f.Value})
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		query += fmt.Sprintf(" AND data @> $%d::jsonb", len(args)+1)
		args = append(args, string(payload))
	}
	query += " ORDER BY created_at ASC"

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Get returns a single document.
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	const query = `SELECT id, collection, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2 LIMIT 1`
	var row documentRow
	if err := r.db.GetContext(ctx, &row, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc, err := row.toDocument()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Add inserts a document under a generated id and returns that id.
func (r *DocumentRepository) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}
	now := time.Now().UTC()
	const query = `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3::jsonb, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, collection, id, string(payload), now, now); err != nil {
		return "", fmt.Errorf("add %s document: %w", collection, err)
	}
	return id, nil
}

// Set writes a document under a caller-chosen id, replacing any existing data.
func (r *DocumentRepository) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}
	now := time.Now().UTC()
	const query = `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3::jsonb, $4, $5)
        ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, collection, id, string(payload), now, now); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges patch into the top-level fields of an existing document.
func (r *DocumentRepository) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode %s patch: %w", collection, err)
	}
	const query = `UPDATE documents SET data = data || $3::jsonb, updated_at = $4 WHERE collection = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, collection, id, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
