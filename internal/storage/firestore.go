package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/digitalmarketplace/trybuy-front/internal/log"
)

// Ensure FirestoreStore implements the port
var _ SessionStore = (*FirestoreStore)(nil)

// sessionDoc is the Firestore document layout: one document per session
type sessionDoc struct {
	Values    map[string]string `firestore:"values"`
	UpdatedAt time.Time         `firestore:"updated_at"`
}

// FirestoreStore persists sessions in Google Cloud Firestore, one document
// per session.
//
// Error handling strategy:
// - Read misses map to the not-found sentinels so callers degrade to
//   "treat as unauthenticated".
// - Write failures are returned; the auth flow logs and continues, since a
//   lost session only forces a fresh sign-in.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a Firestore-backed session store. Connectivity
// is probed with exponential backoff so a slow cold-start of the emulator
// or metadata server doesn't fail the whole process.
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	store := &FirestoreStore{
		client:     client,
		collection: collection,
	}

	probe := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := store.client.Collection(store.collection).Doc("connectivity-probe").Get(probeCtx)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(probe, policy); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("firestore connectivity check failed: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore session store ready", map[string]any{
		"project":    projectID,
		"collection": collection,
	})
	return store, nil
}

func (s *FirestoreStore) doc(sessionID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(sessionID)
}

// Get returns the value stored under key for the session
func (s *FirestoreStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	snap, err := s.doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("reading session %s: %w", sessionID, err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", fmt.Errorf("decoding session %s: %w", sessionID, err)
	}

	value, ok := doc.Values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Set stores value under key, replacing any previous value
func (s *FirestoreStore) Set(ctx context.Context, sessionID, key, value string) error {
	_, err := s.doc(sessionID).Set(ctx, map[string]any{
		"values":     map[string]any{key: value},
		"updated_at": time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("writing session %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes key from the session
func (s *FirestoreStore) Delete(ctx context.Context, sessionID, key string) error {
	_, err := s.doc(sessionID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"values", key}, Value: firestore.Delete},
		{Path: "updated_at", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("updating session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteSession removes the session and all its keys
func (s *FirestoreStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.doc(sessionID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed
func (s *FirestoreStore) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)
	iter := s.client.Collection(s.collection).
		Where("updated_at", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("listing expired sessions: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete expired session", map[string]any{
				"session": snap.Ref.ID,
				"error":   err.Error(),
			})
			continue
		}
		removed++
	}
	return removed, nil
}

// Close releases the underlying Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
