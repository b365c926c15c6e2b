package provision

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collections holding role profiles, keyed by role.
var roleCollections = map[Role]string{
	RoleTeacher:      "teachers",
	RoleStudent:      "students",
	RoleParent:       "parents",
	RoleAdmin:        "admins",
	RoleOrganization: "organizations",
}

type firestoreStore struct {
	client     *firestore.Client
	collection string
	role       Role
}

// NewFirestoreStore creates the profile store for a role backed by its
// Firestore collection.
func NewFirestoreStore(client *firestore.Client, role Role) Store {
	return &firestoreStore{client: client, collection: roleCollections[role], role: role}
}

type profileDoc struct {
	UserID    string    `firestore:"user_id"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (r *firestoreStore) CreateIfAbsent(ctx context.Context, p Profile) (Profile, bool, error) {
	docRef := r.client.Collection(r.collection).Doc(p.UserID)

	var existing *Profile
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing = nil

		snap, err := tx.Get(docRef)
		if err == nil {
			found, derr := r.decode(snap)
			if derr != nil {
				return derr
			}
			existing = &found
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		// Records written before doc IDs were keyed on user ID carry random
		// IDs; an existing legacy record still counts as provisioned.
		legacy := tx.Documents(r.client.Collection(r.collection).
			Where("user_id", "==", p.UserID).
			Limit(1))
		defer legacy.Stop()

		legacySnap, err := legacy.Next()
		if err == nil {
			found, derr := r.decode(legacySnap)
			if derr != nil {
				return derr
			}
			existing = &found
			return nil
		}
		if err != iterator.Done {
			return err
		}

		return tx.Create(docRef, profileDoc{
			UserID:    p.UserID,
			Role:      string(r.role),
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	})
	if status.Code(err) == codes.AlreadyExists {
		// Lost a race with a concurrent writer. The record is there, which is
		// all idempotency asks for.
		found, ferr := r.FindByUserID(ctx, p.UserID)
		if ferr != nil {
			return Profile{}, false, ferr
		}
		return found, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}

	if existing != nil {
		return *existing, false, nil
	}
	p.ID = p.UserID
	p.Role = r.role
	return p, true, nil
}

func (r *firestoreStore) FindByUserID(ctx context.Context, userID string) (Profile, error) {
	snap, err := r.client.Collection(r.collection).Doc(userID).Get(ctx)
	if err == nil {
		return r.decode(snap)
	}
	if status.Code(err) != codes.NotFound {
		return Profile{}, err
	}

	iter := r.client.Collection(r.collection).
		Where("user_id", "==", userID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	legacySnap, err := iter.Next()
	if err == iterator.Done {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return r.decode(legacySnap)
}

func (r *firestoreStore) All(ctx context.Context) ([]Profile, error) {
	iter := r.client.Collection(r.collection).Documents(ctx)
	defer iter.Stop()

	var profiles []Profile
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := r.decode(snap)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *firestoreStore) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection(r.collection).Doc(id).Delete(ctx)
	return err
}

func (r *firestoreStore) decode(snap *firestore.DocumentSnapshot) (Profile, error) {
	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return Profile{}, fmt.Errorf("decode %s profile %s: %w", r.role, snap.Ref.ID, err)
	}
	return Profile{
		ID:        snap.Ref.ID,
		UserID:    doc.UserID,
		Role:      r.role,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
