package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeGranter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGranter) GrantFree(ctx context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.err
}

func (g *fakeGranter) grantCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlerProvision_CreatesExactlyOnce(t *testing.T) {
	store := NewMemoryStore(RoleTeacher)
	h := NewHandler(RoleTeacher, store, nil, testLogger())

	first, err := h.Provision(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first Provision returned error: %v", err)
	}
	second, err := h.Provision(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Provision returned error: %v", err)
	}

	if first.ID != second.ID || first.UserID != "u1" {
		t.Fatalf("expected the same record both times, got %+v and %+v", first, second)
	}
	all, _ := store.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected exactly one profile, got %d", len(all))
	}
}

func TestHandlerProvision_ConcurrentCallsYieldOneRecord(t *testing.T) {
	store := NewMemoryStore(RoleStudent)
	h := NewHandler(RoleStudent, store, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Provision(context.Background(), "u-concurrent"); err != nil {
				t.Errorf("Provision returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	all, _ := store.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected exactly one profile after concurrent calls, got %d", len(all))
	}
}

func TestHandlerProvision_GrantsSubscriptionOnFirstCreateOnly(t *testing.T) {
	store := NewMemoryStore(RoleParent)
	granter := &fakeGranter{}
	h := NewHandler(RoleParent, store, granter, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := h.Provision(context.Background(), "p1"); err != nil {
			t.Fatalf("Provision returned error: %v", err)
		}
	}

	if granter.grantCalls() != 1 {
		t.Fatalf("expected one grant, got %d", granter.grantCalls())
	}
}

func TestHandlerProvision_GrantFailureDoesNotFailProvisioning(t *testing.T) {
	store := NewMemoryStore(RoleParent)
	granter := &fakeGranter{err: errors.New("billing unavailable")}
	h := NewHandler(RoleParent, store, granter, testLogger())

	profile, err := h.Provision(context.Background(), "p2")
	if err != nil {
		t.Fatalf("Provision returned error despite best-effort grant: %v", err)
	}
	if profile.UserID != "p2" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if granter.grantCalls() != 1 {
		t.Fatalf("expected the grant to have been attempted")
	}
}

func TestHandlerProvision_RejectsEmptyUserID(t *testing.T) {
	h := NewHandler(RoleAdmin, NewMemoryStore(RoleAdmin), nil, testLogger())

	if _, err := h.Provision(context.Background(), "  "); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestHandlerProvision_ReturnsLegacyRecordWithoutSideEffects(t *testing.T) {
	store := NewMemoryStore(RoleParent)
	store.Insert(Profile{ID: "random-abc123", UserID: "p3", CreatedAt: time.Now().Add(-time.Hour)})

	granter := &fakeGranter{}
	h := NewHandler(RoleParent, store, granter, testLogger())

	profile, err := h.Provision(context.Background(), "p3")
	if err != nil {
		t.Fatalf("Provision returned error: %v", err)
	}
	if profile.ID != "random-abc123" {
		t.Fatalf("expected the legacy record, got %+v", profile)
	}
	all, _ := store.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected no new record alongside the legacy one, got %d", len(all))
	}
	if granter.grantCalls() != 0 {
		t.Fatalf("grant must not fire for an already-provisioned user")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]struct {
		role Role
		ok   bool
	}{
		"teacher":      {RoleTeacher, true},
		" Student ":    {RoleStudent, true},
		"ORGANIZATION": {RoleOrganization, true},
		"superuser":    {"", false},
		"":             {"", false},
	}
	for raw, want := range cases {
		role, ok := ParseRole(raw)
		if ok != want.ok || role != want.role {
			t.Fatalf("ParseRole(%q) = (%q, %v), want (%q, %v)", raw, role, ok, want.role, want.ok)
		}
	}
}
