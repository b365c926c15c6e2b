package feed

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/astroupia/beblocky-api-sub000/events"
)

const eventsCollection = "user_events"

type firestoreSource struct {
	client *firestore.Client
}

// NewFirestoreSource tails the user_events collection using Firestore
// snapshot listeners. Events are yielded in (created_at, document ID) order,
// which is the append order of the log.
func NewFirestoreSource(client *firestore.Client) Source {
	return &firestoreSource{client: client}
}

func (s *firestoreSource) Subscribe(ctx context.Context, from Token) (Subscription, error) {
	query := s.client.Collection(eventsCollection).Query.
		OrderBy("created_at", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)
	if !from.IsZero() {
		query = query.StartAfter(from.CreatedAt, from.EventID)
	}

	return &firestoreSubscription{snapshots: query.Snapshots(ctx)}, nil
}

func (s *firestoreSource) LatestToken(ctx context.Context) (Token, error) {
	iter := s.client.Collection(eventsCollection).Query.
		OrderBy("created_at", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return Token{}, nil
	}
	if err != nil {
		return Token{}, fmt.Errorf("read newest user event: %w", err)
	}

	var doc eventDoc
	if err := snap.DataTo(&doc); err != nil {
		return Token{}, fmt.Errorf("decode newest user event %s: %w", snap.Ref.ID, err)
	}
	return Token{CreatedAt: doc.CreatedAt, EventID: snap.Ref.ID}, nil
}

type eventDoc struct {
	Type          string    `firestore:"type"`
	UserID        string    `firestore:"user_id"`
	Role          string    `firestore:"role"`
	Email         string    `firestore:"email"`
	Name          string    `firestore:"name"`
	EmailVerified bool      `firestore:"email_verified"`
	CreatedAt     time.Time `firestore:"created_at"`
}

type firestoreSubscription struct {
	snapshots *firestore.QuerySnapshotIterator
	pending   []UserEvent
}

func (s *firestoreSubscription) Next(ctx context.Context) (UserEvent, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return UserEvent{}, err
		}

		snap, err := s.snapshots.Next()
		if err != nil {
			if ctx.Err() != nil {
				return UserEvent{}, ctx.Err()
			}
			return UserEvent{}, fmt.Errorf("%w: %v", ErrSubscriptionLost, err)
		}

		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}

			var doc eventDoc
			if err := change.Doc.DataTo(&doc); err != nil {
				return UserEvent{}, fmt.Errorf("decode user event %s: %w", change.Doc.Ref.ID, err)
			}
			// The log also carries deletion records; only creations provision.
			if doc.Type != "" && doc.Type != events.TypeUserCreated {
				continue
			}

			s.pending = append(s.pending, UserEvent{
				Token:         Token{CreatedAt: doc.CreatedAt, EventID: change.Doc.Ref.ID},
				UserID:        doc.UserID,
				Role:          doc.Role,
				Email:         doc.Email,
				Name:          doc.Name,
				EmailVerified: doc.EmailVerified,
			})
		}
	}

	event := s.pending[0]
	s.pending = s.pending[1:]
	return event, nil
}

func (s *firestoreSubscription) Close() error {
	s.snapshots.Stop()
	return nil
}
