package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"

	"github.com/astroupia/beblocky-api-sub000/auth"
	"github.com/astroupia/beblocky-api-sub000/internal/accounts"
	"github.com/astroupia/beblocky-api-sub000/internal/config"
	"github.com/astroupia/beblocky-api-sub000/internal/feed"
	"github.com/astroupia/beblocky-api-sub000/internal/httpapi"
	"github.com/astroupia/beblocky-api-sub000/internal/listener"
	"github.com/astroupia/beblocky-api-sub000/internal/provision"
	"github.com/astroupia/beblocky-api-sub000/internal/reconcile"
	"github.com/astroupia/beblocky-api-sub000/logging"
	"github.com/astroupia/beblocky-api-sub000/server"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger("provisioning-service")

	deps, cleanup, err := newDependencies(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("wiring error: %w", err))
	}
	defer cleanup()

	registry := provision.NewRegistry()
	for _, role := range provision.Roles {
		granter := provision.SubscriptionGranter(provision.NewNoopGranter())
		// Parents get the free-tier subscription on first provisioning.
		if role == provision.RoleParent {
			granter = deps.granter
		}
		registry.Register(role, provision.NewHandler(role, deps.stores[role], granter, logger))
	}

	dispatcher := listener.New(listener.Config{
		Source:         deps.source,
		Cursor:         deps.cursor,
		Registry:       registry,
		Logger:         logger,
		HandlerTimeout: cfg.Listener.HandlerTimeout,
		BackoffMin:     cfg.Listener.BackoffMin,
		BackoffMax:     cfg.Listener.BackoffMax,
	})

	job := reconcile.NewJob(deps.directory, deps.stores, registry, logger)

	verifier, err := auth.NewVerifier(auth.Config{
		Mode:     cfg.Auth.Mode,
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	router := server.NewRouter("provisioning-service", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			httpapi.RegisterRoutes(r, registry, job, deps.cursor, logger)
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	workers := []server.Worker{dispatcher.Run}
	if cfg.Reconcile.Enabled {
		workers = append(workers, func(ctx context.Context) error {
			return job.RunEvery(ctx, cfg.Reconcile.Interval)
		})
	}

	if err := server.RunWithWorkers(ctx, srv, logger, workers...); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

type dependencies struct {
	source    feed.Source
	cursor    feed.CursorStore
	stores    map[provision.Role]provision.Store
	granter   provision.SubscriptionGranter
	directory accounts.Directory
}

func newDependencies(ctx context.Context, cfg config.Config) (dependencies, func(), error) {
	switch cfg.DataStore {
	case config.DataStoreFirestore:
		if cfg.Firestore.EmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
				return dependencies{}, nil, fmt.Errorf("set FIRESTORE_EMULATOR_HOST: %w", err)
			}
		}

		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return dependencies{}, nil, fmt.Errorf("firestore client: %w", err)
		}

		stores := make(map[provision.Role]provision.Store, len(provision.Roles))
		for _, role := range provision.Roles {
			stores[role] = provision.NewFirestoreStore(client, role)
		}
		deps := dependencies{
			source:    feed.NewFirestoreSource(client),
			cursor:    feed.NewFirestoreCursorStore(client, cfg.Listener.ID),
			stores:    stores,
			granter:   provision.NewFirestoreGranter(client),
			directory: accounts.NewFirestoreDirectory(client),
		}
		cleanup := func() {
			_ = client.Close()
		}
		return deps, cleanup, nil
	default:
		stores := make(map[provision.Role]provision.Store, len(provision.Roles))
		for _, role := range provision.Roles {
			stores[role] = provision.NewMemoryStore(role)
		}
		deps := dependencies{
			source:    feed.NewMemorySource(),
			cursor:    feed.NewMemoryCursorStore(),
			stores:    stores,
			granter:   provision.NewNoopGranter(),
			directory: accounts.NewMemoryDirectory(),
		}
		return deps, func() {}, nil
	}
}
