package memory

import (
	"context"
	"testing"
	"time"
)

func TestLoadSaveDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Load(ctx, "k"); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}

	if err := s.Save(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	v, ok, err := s.Load(ctx, "k")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Load = %q ok=%v err=%v", v, ok, err)
	}

	// Mutating the returned slice must not leak into the store.
	v[0] = 'x'
	v2, _, _ := s.Load(ctx, "k")
	if string(v2) != "v1" {
		t.Fatalf("stored value mutated through returned slice: %q", v2)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Load(ctx, "k"); ok {
		t.Fatal("expected key gone after Delete")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete of absent key must be a no-op, got %v", err)
	}
}

func TestWatchReceivesExternalChanges(t *testing.T) {
	s := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(key string) { got <- key })
	}()

	// Local writes never fire the watcher.
	if err := s.Save(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Watcher registration happens on the goroutine; retry the external
	// notification until it is observed.
	deadline := time.After(5 * time.Second)
	delivered := false
	for !delivered {
		s.NotifyExternal("k")
		select {
		case key := <-got:
			if key != "k" {
				t.Fatalf("expected key %q, got %q", "k", key)
			}
			delivered = true
		case <-deadline:
			t.Fatal("timed out waiting for watch notification")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
