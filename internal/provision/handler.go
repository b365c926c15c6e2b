package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Handler provisions the role profile for a user. Implementations must be
// idempotent: a second call with the same user ID returns the existing
// profile without error.
type Handler interface {
	Provision(ctx context.Context, userID string) (Profile, error)
}

// Registry maps roles to their provisioning handlers. The dispatcher and the
// reconcile job route through it; adding a role means registering a handler,
// not touching the dispatcher.
type Registry struct {
	handlers map[Role]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Role]Handler)}
}

// Register binds a handler to a role, replacing any previous binding.
func (r *Registry) Register(role Role, h Handler) {
	r.handlers[role] = h
}

// Lookup returns the handler for the role, if one is registered.
func (r *Registry) Lookup(role Role) (Handler, bool) {
	h, ok := r.handlers[role]
	return h, ok
}

type roleHandler struct {
	role          Role
	store         Store
	onFirstCreate SubscriptionGranter
	logger        *slog.Logger
}

// NewHandler builds the provisioning handler for a role. When granter is
// non-nil, a free-tier subscription is granted on first creation only;
// granter failures are logged and do not fail provisioning.
func NewHandler(role Role, store Store, granter SubscriptionGranter, logger *slog.Logger) Handler {
	return &roleHandler{role: role, store: store, onFirstCreate: granter, logger: logger}
}

func (h *roleHandler) Provision(ctx context.Context, userID string) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrInvalidUser
	}

	now := time.Now().UTC()
	profile, created, err := h.store.CreateIfAbsent(ctx, Profile{
		ID:        userID,
		UserID:    userID,
		Role:      h.role,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("provision %s profile: %w", h.role, err)
	}

	if created && h.onFirstCreate != nil {
		// Best-effort side effect: a failed grant must not fail provisioning,
		// but it has to be visible to operators.
		if err := h.onFirstCreate.GrantFree(ctx, userID); err != nil {
			h.logger.Warn("free subscription grant failed",
				"user_id", userID, "role", string(h.role), "error", err)
		}
	}

	return profile, nil
}
