package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/astroupia/beblocky-api-sub000/internal/accounts"
	"github.com/astroupia/beblocky-api-sub000/internal/feed"
	"github.com/astroupia/beblocky-api-sub000/internal/provision"
	"github.com/astroupia/beblocky-api-sub000/internal/reconcile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	router *chi.Mux
	stores map[provision.Role]*provision.MemoryStore
	cursor *feed.MemoryCursorStore
}

func newEnv() *env {
	registry := provision.NewRegistry()
	stores := make(map[provision.Role]*provision.MemoryStore)
	jobStores := make(map[provision.Role]provision.Store)
	for _, role := range provision.Roles {
		store := provision.NewMemoryStore(role)
		stores[role] = store
		jobStores[role] = store
		registry.Register(role, provision.NewHandler(role, store, nil, testLogger()))
	}

	job := reconcile.NewJob(accounts.NewMemoryDirectory(), jobStores, registry, testLogger())
	cursor := feed.NewMemoryCursorStore()

	router := chi.NewRouter()
	RegisterRoutes(router, registry, job, cursor, testLogger())
	return &env{router: router, stores: stores, cursor: cursor}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestProvisionEndpointIsIdempotent(t *testing.T) {
	e := newEnv()
	body := `{"userId":"u1","role":"teacher"}`

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodPost, "/v1/provision", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d (%s)", i+1, rec.Code, rec.Body.String())
		}
	}

	all, _ := e.stores[provision.RoleTeacher].All(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected exactly one profile after repeated requests, got %d", len(all))
	}
}

func TestProvisionEndpointRejectsUnknownRole(t *testing.T) {
	e := newEnv()
	rec := e.do(t, http.MethodPost, "/v1/provision", `{"userId":"u1","role":"wizard"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProvisionEndpointRejectsMissingUserID(t *testing.T) {
	e := newEnv()
	rec := e.do(t, http.MethodPost, "/v1/provision", `{"role":"student"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReconcileEndpointReturnsSummary(t *testing.T) {
	e := newEnv()
	base := time.Now().UTC().Add(-time.Hour)
	e.stores[provision.RoleParent].Insert(provision.Profile{ID: "a", UserID: "p1", CreatedAt: base})
	e.stores[provision.RoleParent].Insert(provision.Profile{ID: "b", UserID: "p1", CreatedAt: base.Add(time.Minute)})

	rec := e.do(t, http.MethodPost, "/v1/admin/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var summary reconcile.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.DuplicatesRemoved != 1 {
		t.Fatalf("expected 1 duplicate removed, got %+v", summary)
	}
}

func TestCursorEndpoint(t *testing.T) {
	e := newEnv()
	token := feed.Token{CreatedAt: time.Now().UTC(), EventID: "evt-000007"}
	if err := e.cursor.Save(context.Background(), token); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	rec := e.do(t, http.MethodGet, "/v1/admin/cursor", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Initialized bool   `json:"initialized"`
		LastEventID string `json:"lastEventId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.Initialized || payload.LastEventID != "evt-000007" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
