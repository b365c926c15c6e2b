package feed

import (
	"fmt"
	"time"
)

// Token identifies a position in the user_events log. Commit order is
// (created_at, document ID), so tokens are totally ordered within one feed.
// The zero Token means "the beginning of the log".
type Token struct {
	CreatedAt time.Time
	EventID   string
}

// IsZero reports whether the token is the unset zero value.
func (t Token) IsZero() bool {
	return t.CreatedAt.IsZero() && t.EventID == ""
}

// Before reports whether t commits strictly before other.
func (t Token) Before(other Token) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.EventID < other.EventID
}

func (t Token) String() string {
	if t.IsZero() {
		return "<start>"
	}
	return fmt.Sprintf("%s/%s", t.CreatedAt.UTC().Format(time.RFC3339Nano), t.EventID)
}

// UserEvent is an account-created record read from the user_events log.
// Email and Name are informational; identity is UserID alone.
type UserEvent struct {
	Token         Token
	UserID        string
	Role          string
	Email         string
	Name          string
	EmailVerified bool
}
