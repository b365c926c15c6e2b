package feed

import (
	"context"
	"errors"
)

// ErrSubscriptionLost indicates the change feed transport dropped. The
// subscriber re-subscribes from its last durable token; the in-flight event
// may be redelivered.
var ErrSubscriptionLost = errors.New("change feed subscription lost")

// Subscription is one live, ordered pass over the event log. Delivery is
// at-least-once: a new subscription started from the same token replays the
// event at that position.
type Subscription interface {
	// Next blocks until the next event in commit order is available, the
	// context is cancelled, or the subscription is lost.
	Next(ctx context.Context) (UserEvent, error)
	Close() error
}

// Source produces ordered, resumable account-created event streams.
type Source interface {
	// Subscribe opens a stream of events committed strictly after from.
	// A zero token starts at the beginning of the log.
	Subscribe(ctx context.Context, from Token) (Subscription, error)
	// LatestToken returns the token of the newest event in the log, or a
	// zero token when the log is empty. Used for the start-from-now
	// bootstrap on first startup.
	LatestToken(ctx context.Context) (Token, error)
}
