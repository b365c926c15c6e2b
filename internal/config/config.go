package config

import (
	"time"

	"github.com/astroupia/beblocky-api-sub000/auth"
	"github.com/astroupia/beblocky-api-sub000/envconfig"
)

// Config encapsulates the runtime configuration for the provisioning service.
type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string `validate:"required"`
	DataStore    DataStore
	Auth         AuthConfig
	Firestore    FirestoreConfig
	Listener     ListenerConfig
	Reconcile    ReconcileConfig
}

// DataStore enumerates supported persistence backends.
type DataStore string

const (
	// DataStoreMemory keeps all state in-memory (useful for local development/testing).
	DataStoreMemory DataStore = "memory"
	// DataStoreFirestore persists state in Google Cloud Firestore.
	DataStoreFirestore DataStore = "firestore"
)

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode     auth.Mode `validate:"required"`
	JWKSURL  string
	Audience string
	Issuer   string
}

// FirestoreConfig tailors Firestore client behavior.
type FirestoreConfig struct {
	EmulatorHost string
}

// ListenerConfig tunes the change feed dispatcher.
type ListenerConfig struct {
	// ID names this deployment's resume cursor document. Exactly one live
	// dispatcher per ID; running two concurrently is unsupported.
	ID             string `validate:"required"`
	HandlerTimeout time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

// ReconcileConfig tunes the background reconcile worker.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "beblocky-dev"),
		DataStore:    DataStore(envconfig.Get("DATASTORE", "firestore")),
		Auth: AuthConfig{
			Mode:     auth.Mode(envconfig.Get("AUTH_MODE", "clerk")),
			JWKSURL:  envconfig.Get("CLERK_JWKS_URL", ""),
			Audience: envconfig.Get("CLERK_AUDIENCE", ""),
			Issuer:   envconfig.Get("CLERK_ISSUER", ""),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
		Listener: ListenerConfig{
			ID:             envconfig.Get("LISTENER_ID", "user-provisioning"),
			HandlerTimeout: envconfig.GetDuration("LISTENER_HANDLER_TIMEOUT", 10*time.Second),
			BackoffMin:     envconfig.GetDuration("LISTENER_BACKOFF_MIN", time.Second),
			BackoffMax:     envconfig.GetDuration("LISTENER_BACKOFF_MAX", time.Minute),
		},
		Reconcile: ReconcileConfig{
			Enabled:  envconfig.GetBool("RECONCILE_ENABLED", true),
			Interval: envconfig.GetDuration("RECONCILE_INTERVAL", 6*time.Hour),
		},
	}
	return cfg, envconfig.Validate(cfg)
}
