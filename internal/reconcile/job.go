package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/astroupia/beblocky-api-sub000/internal/accounts"
	"github.com/astroupia/beblocky-api-sub000/internal/provision"
)

// Summary aggregates the outcome of one reconcile run.
type Summary struct {
	DuplicatesRemoved  int      `json:"duplicatesRemoved"`
	MissingProvisioned int      `json:"missingProvisioned"`
	Errors             []string `json:"errors"`
}

// Job restores the one-profile-per-user invariant: it removes duplicate
// profiles left behind by older code paths and provisions profiles for
// accounts the listener missed. Safe to run concurrently with the live
// dispatcher; the profile stores' uniqueness key is the only coordination.
type Job struct {
	directory accounts.Directory
	stores    map[provision.Role]provision.Store
	registry  *provision.Registry
	logger    *slog.Logger
}

// NewJob builds a reconcile job over the given profile stores.
func NewJob(directory accounts.Directory, stores map[provision.Role]provision.Store, registry *provision.Registry, logger *slog.Logger) *Job {
	return &Job{directory: directory, stores: stores, registry: registry, logger: logger}
}

// Run executes one full sweep. Errors on individual records are collected
// into the summary and do not abort the rest of the sweep.
func (j *Job) Run(ctx context.Context) Summary {
	var summary Summary
	started := time.Now()

	for _, role := range provision.Roles {
		store, ok := j.stores[role]
		if !ok {
			continue
		}
		j.removeDuplicates(ctx, role, store, &summary)
	}
	j.provisionMissing(ctx, &summary)

	j.logger.Info("reconcile run finished",
		"duplicates_removed", summary.DuplicatesRemoved,
		"missing_provisioned", summary.MissingProvisioned,
		"errors", len(summary.Errors),
		"elapsed", time.Since(started).String())
	return summary
}

// RunEvery runs the job on a fixed interval until the context is cancelled.
func (j *Job) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

// removeDuplicates keeps exactly one profile per user in the store: the
// earliest-created record, ties broken by smallest document ID. The tie-break
// is stable so repeated runs converge on the same survivor.
func (j *Job) removeDuplicates(ctx context.Context, role provision.Role, store provision.Store, summary *Summary) {
	profiles, err := store.All(ctx)
	if err != nil {
		summary.addError(fmt.Errorf("list %s profiles: %w", role, err))
		return
	}

	byUser := make(map[string][]provision.Profile)
	for _, p := range profiles {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	for userID, group := range byUser {
		if len(group) < 2 {
			continue
		}

		sort.Slice(group, func(a, b int) bool {
			if !group[a].CreatedAt.Equal(group[b].CreatedAt) {
				return group[a].CreatedAt.Before(group[b].CreatedAt)
			}
			return group[a].ID < group[b].ID
		})
		if group[0].CreatedAt.Equal(group[1].CreatedAt) {
			j.logger.Warn("duplicate profiles tie on creation time, keeping smallest id",
				"role", string(role), "user_id", userID, "survivor", group[0].ID)
		}

		for _, dup := range group[1:] {
			if err := store.Delete(ctx, dup.ID); err != nil {
				summary.addError(fmt.Errorf("delete duplicate %s profile %s: %w", role, dup.ID, err))
				continue
			}
			summary.DuplicatesRemoved++
			j.logger.Info("duplicate profile removed",
				"role", string(role), "user_id", userID, "id", dup.ID, "kept", group[0].ID)
		}
	}
}

// provisionMissing walks the account store and provisions a profile for every
// account whose role store has none. This self-heals events lost before the
// cursor was durable.
func (j *Job) provisionMissing(ctx context.Context, summary *Summary) {
	all, err := j.directory.All(ctx)
	if err != nil {
		summary.addError(fmt.Errorf("list accounts: %w", err))
		return
	}

	for _, account := range all {
		role, ok := provision.ParseRole(account.Role)
		if !ok {
			continue
		}
		store, ok := j.stores[role]
		if !ok {
			continue
		}

		_, err := store.FindByUserID(ctx, account.UserID)
		if err == nil {
			continue
		}
		if !errors.Is(err, provision.ErrNotFound) {
			summary.addError(fmt.Errorf("look up %s profile for %s: %w", role, account.UserID, err))
			continue
		}

		handler, ok := j.registry.Lookup(role)
		if !ok {
			summary.addError(fmt.Errorf("no handler for role %s", role))
			continue
		}
		if _, err := handler.Provision(ctx, account.UserID); err != nil {
			summary.addError(fmt.Errorf("provision missing %s profile for %s: %w", role, account.UserID, err))
			continue
		}
		summary.MissingProvisioned++
		j.logger.Info("missing profile provisioned", "role", string(role), "user_id", account.UserID)
	}
}

func (s *Summary) addError(err error) {
	s.Errors = append(s.Errors, err.Error())
}
