package provision

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SubscriptionGranter grants the default free-tier subscription to a newly
// provisioned user. Grants are idempotent so handler retries cannot produce
// two subscriptions.
type SubscriptionGranter interface {
	GrantFree(ctx context.Context, userID string) error
}

type firestoreGranter struct {
	client *firestore.Client
}

// NewFirestoreGranter returns a granter backed by the subscriptions collection.
func NewFirestoreGranter(client *firestore.Client) SubscriptionGranter {
	return &firestoreGranter{client: client}
}

func (g *firestoreGranter) GrantFree(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	_, err := g.client.Collection("subscriptions").Doc(userID).Create(ctx, map[string]any{
		"user_id":    userID,
		"plan":       "free",
		"status":     "active",
		"created_at": now,
		"updated_at": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

type noopGranter struct{}

// NewNoopGranter returns a granter that does nothing, for roles without
// default subscriptions and for the memory datastore.
func NewNoopGranter() SubscriptionGranter {
	return noopGranter{}
}

func (noopGranter) GrantFree(context.Context, string) error { return nil }
