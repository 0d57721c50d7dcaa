package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

// FirestoreDocumentRepository is the Cloud Firestore flavour of the document store.
type FirestoreDocumentRepository struct {
	client *firestore.Client
}

// NewFirestoreDocumentRepository wraps an initialised Firestore client.
func NewFirestoreDocumentRepository(client *firestore.Client) *FirestoreDocumentRepository {
	return &FirestoreDocumentRepository{client: client}
}

// Query returns the documents of a collection matching every equality filter.
func (r *FirestoreDocumentRepository) Query(ctx context.Context, collection string, filters ...models.Filter) ([]models.Document, error) {
	q := r.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []models.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, fromSnapshot(collection, snap))
	}
	return docs, nil
}

// Get returns a single document.
func (r *FirestoreDocumentRepository) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	snap, err := r.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc := fromSnapshot(collection, snap)
	return &doc, nil
}

// Add inserts a document under a Firestore-generated id.
func (r *FirestoreDocumentRepository) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := r.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("add %s document: %w", collection, err)
	}
	return ref.ID, nil
}

// Set writes a document under a caller-chosen id.
func (r *FirestoreDocumentRepository) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if _, err := r.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update patches top-level fields of an existing document.
func (r *FirestoreDocumentRepository) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(patch))
	for field, value := range patch {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	if _, err := r.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func fromSnapshot(collection string, snap *firestore.DocumentSnapshot) models.Document {
	return models.Document{
		ID:         snap.Ref.ID,
		Collection: collection,
		Data:       snap.Data(),
		CreatedAt:  snap.CreateTime,
		UpdatedAt:  snap.UpdateTime,
	}
}
