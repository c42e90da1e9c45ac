package usercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/sessionapi"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultFirestoreCollection is used when no collection is configured.
const DefaultFirestoreCollection = "stylefront_user_cache"

// Firestore is a durable Cache with one document per browser. Reads treat
// documents past expires_at as misses; Cleanup deletes them.
type Firestore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

var (
	_ Cache   = (*Firestore)(nil)
	_ Cleaner = (*Firestore)(nil)
)

// userDoc is the stored document shape.
type userDoc struct {
	ID        string    `firestore:"id"`
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Picture   string    `firestore:"picture,omitempty"`
	UpdatedAt time.Time `firestore:"updated_at"`
	ExpiresAt int64     `firestore:"expires_at"`
}

// NewFirestore creates a Firestore-backed cache.
func NewFirestore(ctx context.Context, projectID, database, collection string, ttl time.Duration) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
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

	log.LogInfoWithFields("usercache", "Connected to Firestore user cache", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &Firestore{client: client, collection: collection, ttl: ttl}, nil
}

func (f *Firestore) Get(ctx context.Context, key string) (*sessionapi.User, error) {
	snap, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached user: %w", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding cached user: %w", err)
	}
	if time.Now().Unix() >= doc.ExpiresAt {
		return nil, ErrMiss
	}
	return &sessionapi.User{
		ID:      doc.ID,
		Name:    doc.Name,
		Email:   doc.Email,
		Picture: doc.Picture,
	}, nil
}

func (f *Firestore) Put(ctx context.Context, key string, user *sessionapi.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	now := time.Now()
	doc := userDoc{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Picture:   user.Picture,
		UpdatedAt: now,
		ExpiresAt: now.Add(f.ttl).Unix(),
	}
	if _, err := f.client.Collection(f.collection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("writing cached user: %w", err)
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, key string) error {
	_, err := f.client.Collection(f.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting cached user: %w", err)
	}
	return nil
}

// Cleanup deletes expired documents in batches.
func (f *Firestore) Cleanup(ctx context.Context) (int, error) {
	iter := f.client.Collection(f.collection).
		Where("expires_at", "<=", time.Now().Unix()).
		Documents(ctx)
	defer iter.Stop()

	// Firestore batch write limit
	const maxBatchSize = 500

	count := 0
	batch := f.client.Batch()
	batchSize := 0

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired users: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = f.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}
	return count, nil
}

// Close closes the Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}
