package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore persists values in Google Cloud Firestore. It is the
// durable storage choice for server deployments where auth state must
// survive instance restarts and be shared across replicas.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// valueDoc is the Firestore document layout for a stored value
type valueDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore-backed store. The collection
// partitions this SDK's keys from other data in the same database.
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		collection = "syauth_state"
	}
	if database == "" {
		database = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

// Close releases the underlying client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Get implements Store
func (s *FirestoreStore) Get(ctx context.Context, key string) (string, error) {
	doc, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting document %s: %w", key, err)
	}

	var v valueDoc
	if err := doc.DataTo(&v); err != nil {
		return "", fmt.Errorf("decoding document %s: %w", key, err)
	}
	return v.Value, nil
}

// Set implements Store
func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Set(ctx, valueDoc{
		Value:     value,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("setting document %s: %w", key, err)
	}
	return nil
}

// Delete implements Store
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting document %s: %w", key, err)
	}
	return nil
}

// Keys implements Store
func (s *FirestoreStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		keys = append(keys, doc.Ref.ID)
	}
	return keys, nil
}
