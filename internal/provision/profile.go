package provision

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no profile exists for the requested user.
	ErrNotFound = errors.New("profile not found")
	// ErrInvalidUser indicates the event is structurally unable to produce a
	// profile. The dispatcher skips such events instead of retrying them.
	ErrInvalidUser = errors.New("user id is required")
)

// Profile is the role-profile record created once per (userID, role) pair.
// Role-specific fields (grade, qualifications, organization membership) are
// owned by the CRUD services; provisioning only establishes the identity row.
type Profile struct {
	// ID is the document ID. New writes use the user ID as the document ID,
	// which is what enforces uniqueness. Records created by older code paths
	// may carry a random ID; the reconcile job cleans those up.
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists profiles for a single role collection. The backing
// collection keys new records on user ID, so at-least-once delivery and
// concurrent writers collapse to a single record.
type Store interface {
	// CreateIfAbsent inserts the profile keyed on its user ID. When a record
	// for that user already exists (keyed or legacy), it is returned with
	// created=false and no error.
	CreateIfAbsent(ctx context.Context, p Profile) (Profile, bool, error)
	// FindByUserID returns the profile for the user, or ErrNotFound.
	FindByUserID(ctx context.Context, userID string) (Profile, error)
	// All returns every profile in the collection, legacy records included.
	All(ctx context.Context) ([]Profile, error)
	// Delete removes the record with the given document ID.
	Delete(ctx context.Context, id string) error
}
