package events

import "time"

// Event type values stored in the user_events log.
const (
	TypeUserCreated = "user.created"
	TypeUserDeleted = "user.deleted"
)

// UserCreated describes the payload appended to the user_events log when a
// Clerk account is synchronized into Firestore. The provisioning listener
// consumes these records in commit order.
type UserCreated struct {
	UserID        string    `json:"userId" firestore:"user_id"`
	Role          string    `json:"role" firestore:"role"`
	Email         string    `json:"email" firestore:"email"`
	Name          string    `json:"name" firestore:"name"`
	EmailVerified bool      `json:"emailVerified" firestore:"email_verified"`
	CreatedAt     time.Time `json:"createdAt" firestore:"created_at"`
}

// UserDeleted is emitted when a user is removed from the system.
type UserDeleted struct {
	UserID    string    `json:"userId" firestore:"user_id"`
	DeletedAt time.Time `json:"deletedAt" firestore:"deleted_at"`
}
