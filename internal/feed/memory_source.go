package feed

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySource is an in-memory append-only event log, usable as a Source for
// local development and tests. Appended events get monotonically increasing
// tokens in append order.
type MemorySource struct {
	mu     sync.Mutex
	events []UserEvent
	seq    int
	base   time.Time
	wake   chan struct{}
}

// NewMemorySource returns an empty in-memory event log.
func NewMemorySource() *MemorySource {
	return &MemorySource{base: time.Now().UTC(), wake: make(chan struct{})}
}

// Append adds an account-created event to the log and returns its token.
func (s *MemorySource) Append(userID, role, email, name string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	token := Token{
		CreatedAt: s.base.Add(time.Duration(s.seq) * time.Millisecond),
		EventID:   fmt.Sprintf("evt-%06d", s.seq),
	}
	s.events = append(s.events, UserEvent{
		Token:  token,
		UserID: userID,
		Role:   role,
		Email:  email,
		Name:   name,
	})

	close(s.wake)
	s.wake = make(chan struct{})
	return token
}

func (s *MemorySource) Subscribe(ctx context.Context, from Token) (Subscription, error) {
	return &memorySubscription{source: s, after: from}, nil
}

func (s *MemorySource) LatestToken(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Token{}, nil
	}
	return s.events[len(s.events)-1].Token, nil
}

type memorySubscription struct {
	source *MemorySource
	after  Token
	closed bool
}

func (sub *memorySubscription) Next(ctx context.Context) (UserEvent, error) {
	for {
		sub.source.mu.Lock()
		if sub.closed {
			sub.source.mu.Unlock()
			return UserEvent{}, ErrSubscriptionLost
		}
		for _, event := range sub.source.events {
			if sub.after.Before(event.Token) {
				sub.after = event.Token
				sub.source.mu.Unlock()
				return event, nil
			}
		}
		wake := sub.source.wake
		sub.source.mu.Unlock()

		select {
		case <-ctx.Done():
			return UserEvent{}, ctx.Err()
		case <-wake:
		}
	}
}

func (sub *memorySubscription) Close() error {
	sub.source.mu.Lock()
	defer sub.source.mu.Unlock()
	sub.closed = true
	return nil
}
