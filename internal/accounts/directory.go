package accounts

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Account is the identity record held in the account store. It is read-only
// from the provisioning subsystem's point of view.
type Account struct {
	UserID    string
	Role      string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Directory reads accounts from the account store.
type Directory interface {
	All(ctx context.Context) ([]Account, error)
}

type firestoreDirectory struct {
	client *firestore.Client
}

// NewFirestoreDirectory reads accounts from the users collection.
func NewFirestoreDirectory(client *firestore.Client) Directory {
	return &firestoreDirectory{client: client}
}

func (d *firestoreDirectory) All(ctx context.Context) ([]Account, error) {
	iter := d.client.Collection("users").Documents(ctx)
	defer iter.Stop()

	var accounts []Account
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var doc struct {
			Role      string    `firestore:"role"`
			Email     string    `firestore:"email"`
			Name      string    `firestore:"name"`
			CreatedAt time.Time `firestore:"created_at"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		accounts = append(accounts, Account{
			UserID:    snap.Ref.ID,
			Role:      doc.Role,
			Email:     doc.Email,
			Name:      doc.Name,
			CreatedAt: doc.CreatedAt,
		})
	}
	return accounts, nil
}

// MemoryDirectory is an in-memory Directory for local development and tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts []Account
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{}
}

// Add appends an account to the directory.
func (d *MemoryDirectory) Add(account Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts = append(d.accounts, account)
}

func (d *MemoryDirectory) All(ctx context.Context) ([]Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Account, len(d.accounts))
	copy(out, d.accounts)
	return out, nil
}
