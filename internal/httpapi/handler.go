package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/astroupia/beblocky-api-sub000/errors"
	"github.com/astroupia/beblocky-api-sub000/internal/feed"
	"github.com/astroupia/beblocky-api-sub000/internal/provision"
	"github.com/astroupia/beblocky-api-sub000/internal/reconcile"
)

const (
	provisionTimeout = 8 * time.Second
	maxBodyBytes     = 16 * 1024
)

// RegisterRoutes registers the provisioning and admin routes.
func RegisterRoutes(r chi.Router, registry *provision.Registry, job *reconcile.Job, cursor feed.CursorStore, logger *slog.Logger) {
	r.Route("/v1/provision", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Post("/", provisionProfile(registry, logger))
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.Recoverer)

		r.Post("/reconcile", runReconcile(job, logger))
		r.Get("/cursor", getCursor(cursor, logger))
	})
}

type provisionRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// provisionProfile is the direct creation path. It funnels through the same
// idempotent handlers as the listener, so calling it for a user the feed has
// already provisioned (or will provision) cannot create a second profile.
func provisionProfile(registry *provision.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provisionRequest
		body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, "bad_request", "invalid request body")
			return
		}

		role, ok := provision.ParseRole(req.Role)
		if !ok {
			writeError(w, "bad_request", "unrecognized role")
			return
		}
		handler, ok := registry.Lookup(role)
		if !ok {
			writeError(w, "bad_request", "role has no provisioning handler")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), provisionTimeout)
		defer cancel()

		profile, err := handler.Provision(ctx, req.UserID)
		if errors.Is(err, provision.ErrInvalidUser) {
			writeError(w, "bad_request", "userId is required")
			return
		}
		if err != nil {
			logRequestError(r.Context(), logger, "failed to provision profile", err, req.UserID)
			writeError(w, "internal", "failed to provision profile")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func runReconcile(job *reconcile.Job, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary := job.Run(r.Context())
		if len(summary.Errors) > 0 {
			logRequestError(r.Context(), logger, "reconcile finished with errors",
				errors.New(summary.Errors[0]), "")
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func getCursor(cursor feed.CursorStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok, err := cursor.Load(r.Context())
		if err != nil {
			logRequestError(r.Context(), logger, "failed to load cursor", err, "")
			writeError(w, "internal", "failed to load cursor")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"initialized":   ok,
			"lastCreatedAt": token.CreatedAt,
			"lastEventId":   token.EventID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code string, message string) {
	writeJSON(w, apierrors.ToStatusCode(code), apierrors.ErrorResponse{Code: code, Message: message})
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	attrs := []any{
		slog.String("userId", userID),
		slog.Any("error", err),
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("requestId", reqID))
	}
	logger.Error(message, attrs...)
}
