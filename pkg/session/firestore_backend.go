package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFirestoreCollection = "sessions"

// FirestoreBackend implements Store using Google Cloud Firestore.
// Each user maps to one document in a sessions collection; the JSON
// record is stored as a single field so the on-wire layout stays
// identical to the other backends.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// CredentialsFile is an optional service account key path;
	// Application Default Credentials are used when empty.
	CredentialsFile string
	// Collection is the sessions collection name (default: "sessions").
	Collection string
}

// NewFirestoreBackend creates a new Firestore storage backend.
func NewFirestoreBackend(ctx context.Context, cfg FirestoreConfig) (*FirestoreBackend, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultFirestoreCollection
	}

	return &FirestoreBackend{
		client:     client,
		collection: collection,
	}, nil
}

type firestoreRecord struct {
	Data string `firestore:"data"`
}

func (b *FirestoreBackend) doc(userID string) *firestore.DocumentRef {
	return b.client.Collection(b.collection).Doc(userID)
}

func (b *FirestoreBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// Load retrieves the record for userID.
func (b *FirestoreBackend) Load(ctx context.Context, userID string) (*State, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	snap, err := b.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session document: %w", err)
	}

	var rec firestoreRecord
	if err := snap.DataTo(&rec); err != nil {
		log.Printf("[FirestoreBackend] malformed document for user %s, treating as absent: %v", userID, err)
		return nil, ErrNotFound
	}

	var state State
	if err := json.Unmarshal([]byte(rec.Data), &state); err != nil {
		log.Printf("[FirestoreBackend] malformed record for user %s, treating as absent: %v", userID, err)
		return nil, ErrNotFound
	}

	return &state, nil
}

// Save serializes the state and overwrites any prior document.
func (b *FirestoreBackend) Save(ctx context.Context, userID string, state *State) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	if _, err := b.doc(userID).Set(ctx, firestoreRecord{Data: string(data)}); err != nil {
		return fmt.Errorf("set session document: %w", err)
	}

	return nil
}

// Exists reports whether a document exists for userID.
func (b *FirestoreBackend) Exists(ctx context.Context, userID string) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}

	_, err := b.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("get session document: %w", err)
	}
	return true, nil
}

// Close closes the Firestore client.
func (b *FirestoreBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}
