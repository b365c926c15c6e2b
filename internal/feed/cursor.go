package feed

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CursorStore persists the resume cursor: the token of the last event whose
// handler completed successfully. It is written by exactly one dispatcher
// and only after success, so it never runs ahead of provisioned state.
type CursorStore interface {
	// Load returns the stored token. ok is false when no cursor has been
	// persisted yet (first startup).
	Load(ctx context.Context) (token Token, ok bool, err error)
	Save(ctx context.Context, token Token) error
}

const cursorsCollection = "listener_cursors"

type firestoreCursorStore struct {
	client     *firestore.Client
	listenerID string
}

// NewFirestoreCursorStore stores the cursor as a single document keyed by
// the listener deployment ID.
func NewFirestoreCursorStore(client *firestore.Client, listenerID string) CursorStore {
	return &firestoreCursorStore{client: client, listenerID: listenerID}
}

type cursorDoc struct {
	LastCreatedAt time.Time `firestore:"last_created_at"`
	LastEventID   string    `firestore:"last_event_id"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

func (s *firestoreCursorStore) Load(ctx context.Context) (Token, bool, error) {
	snap, err := s.client.Collection(cursorsCollection).Doc(s.listenerID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}

	var doc cursorDoc
	if err := snap.DataTo(&doc); err != nil {
		return Token{}, false, err
	}
	return Token{CreatedAt: doc.LastCreatedAt, EventID: doc.LastEventID}, true, nil
}

func (s *firestoreCursorStore) Save(ctx context.Context, token Token) error {
	_, err := s.client.Collection(cursorsCollection).Doc(s.listenerID).Set(ctx, cursorDoc{
		LastCreatedAt: token.CreatedAt,
		LastEventID:   token.EventID,
		UpdatedAt:     time.Now().UTC(),
	})
	return err
}

// MemoryCursorStore keeps the cursor in memory, for the memory datastore and
// tests.
type MemoryCursorStore struct {
	mu    sync.RWMutex
	token Token
	set   bool
}

// NewMemoryCursorStore returns an empty in-memory cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{}
}

func (s *MemoryCursorStore) Load(ctx context.Context) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryCursorStore) Save(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

// Current returns the stored token for assertions in tests.
func (s *MemoryCursorStore) Current() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}
