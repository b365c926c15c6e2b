package feed

import (
	"context"
	"testing"
	"time"
)

func TestTokenOrdering(t *testing.T) {
	base := time.Now().UTC()
	a := Token{CreatedAt: base, EventID: "evt-1"}
	b := Token{CreatedAt: base, EventID: "evt-2"}
	c := Token{CreatedAt: base.Add(time.Second), EventID: "evt-0"}

	if !a.Before(b) || !b.Before(c) || !a.Before(c) {
		t.Fatalf("expected a < b < c ordering")
	}
	if b.Before(a) || c.Before(a) {
		t.Fatalf("ordering must be antisymmetric")
	}
	if !(Token{}).IsZero() {
		t.Fatalf("zero token must report IsZero")
	}
	if a.IsZero() {
		t.Fatalf("non-zero token must not report IsZero")
	}
}

func TestMemorySourceDeliversInAppendOrder(t *testing.T) {
	source := NewMemorySource()
	source.Append("u1", "teacher", "", "")
	source.Append("u2", "student", "", "")
	source.Append("u3", "parent", "", "")

	sub, err := source.Subscribe(context.Background(), Token{})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Close()

	var prev Token
	for _, want := range []string{"u1", "u2", "u3"} {
		event, err := sub.Next(context.Background())
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		if event.UserID != want {
			t.Fatalf("expected %s, got %s", want, event.UserID)
		}
		if !prev.IsZero() && !prev.Before(event.Token) {
			t.Fatalf("tokens not monotonically increasing: %s then %s", prev, event.Token)
		}
		prev = event.Token
	}
}

func TestMemorySourceResumesStrictlyAfterToken(t *testing.T) {
	source := NewMemorySource()
	source.Append("u1", "teacher", "", "")
	t2 := source.Append("u2", "student", "", "")
	source.Append("u3", "parent", "", "")

	sub, err := source.Subscribe(context.Background(), t2)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Close()

	event, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if event.UserID != "u3" {
		t.Fatalf("expected resume to start at u3, got %s", event.UserID)
	}
}

func TestMemorySourceNextBlocksUntilAppend(t *testing.T) {
	source := NewMemorySource()
	sub, err := source.Subscribe(context.Background(), Token{})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Close()

	got := make(chan UserEvent, 1)
	go func() {
		event, err := sub.Next(context.Background())
		if err != nil {
			return
		}
		got <- event
	}()

	time.Sleep(10 * time.Millisecond)
	source.Append("u-late", "teacher", "", "")

	select {
	case event := <-got:
		if event.UserID != "u-late" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Next did not wake after Append")
	}
}

func TestMemorySourceNextHonorsContextCancel(t *testing.T) {
	source := NewMemorySource()
	sub, err := source.Subscribe(context.Background(), Token{})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sub.Next(ctx); err == nil {
		t.Fatalf("expected an error after cancellation")
	}
}

func TestMemorySourceLatestToken(t *testing.T) {
	source := NewMemorySource()
	token, err := source.LatestToken(context.Background())
	if err != nil || !token.IsZero() {
		t.Fatalf("expected zero token for empty log, got %s err %v", token, err)
	}

	source.Append("u1", "teacher", "", "")
	want := source.Append("u2", "student", "", "")

	token, err = source.LatestToken(context.Background())
	if err != nil {
		t.Fatalf("LatestToken returned error: %v", err)
	}
	if token != want {
		t.Fatalf("expected %s, got %s", want, token)
	}
}

func TestMemoryCursorStoreRoundTrip(t *testing.T) {
	store := NewMemoryCursorStore()

	if _, ok, err := store.Load(context.Background()); err != nil || ok {
		t.Fatalf("expected empty cursor store, ok=%v err=%v", ok, err)
	}

	want := Token{CreatedAt: time.Now().UTC(), EventID: "evt-000042"}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	token, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected stored cursor, ok=%v err=%v", ok, err)
	}
	if token != want {
		t.Fatalf("expected %s, got %s", want, token)
	}
}
