package bindflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kvartin/bindflow/notify"
	"github.com/kvartin/bindflow/session"
	"github.com/kvartin/bindflow/storage"
	"github.com/kvartin/bindflow/storage/memory"
)

func TestSetAndClearTokenNotifyAndPersist(t *testing.T) {
	f := newFakeAPI(t)
	engine, st, notifier := newTestEngine(t, f)
	ctx := context.Background()

	sessions := countEvents(notifier, notify.EventSession)

	token := mintTestToken(t, "u1")
	if err := engine.SetToken(ctx, token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if engine.Token() != token {
		t.Fatalf("expected token %q, got %q", token, engine.Token())
	}
	if sessions() != 1 {
		t.Fatalf("expected 1 session event after SetToken, got %d", sessions())
	}

	if data, ok, _ := st.Load(ctx, session.DefaultTokenKey); !ok || string(data) != token {
		t.Fatal("expected the token persisted to durable storage")
	}

	if err := engine.ClearToken(ctx); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	if engine.Token() != "" {
		t.Fatal("expected empty token after ClearToken")
	}
	if sessions() != 2 {
		t.Fatalf("expected exactly one more session event, got %d total", sessions())
	}

	for _, key := range []string{session.DefaultTokenKey, session.DefaultUserKey, session.DefaultIdentityKey} {
		if _, ok, _ := st.Load(ctx, key); ok {
			t.Fatalf("expected key %q removed from storage", key)
		}
	}
}

func TestStartLoadsPersistedSession(t *testing.T) {
	f := newFakeAPI(t)
	ctx := context.Background()

	st := memory.New()
	token := mintTestToken(t, "u1")
	if err := st.Save(ctx, session.DefaultTokenKey, []byte(token)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	engine, err := New().
		WithBaseURL(f.baseURL()).
		WithStorage(st).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if engine.Token() != token {
		t.Fatalf("expected persisted token restored, got %q", engine.Token())
	}
}

// flakyStore fails its first Load, simulating a backend that comes up late.
type flakyStore struct {
	*memory.Store
	failed bool
}

func (s *flakyStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.failed {
		s.failed = true
		return nil, false, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	}
	return s.Store.Load(ctx, key)
}

func TestStartRetriesAfterStorageFailure(t *testing.T) {
	f := newFakeAPI(t)
	ctx := context.Background()

	st := &flakyStore{Store: memory.New()}
	token := mintTestToken(t, "u1")
	if err := st.Save(ctx, session.DefaultTokenKey, []byte(token)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	engine, err := New().
		WithBaseURL(f.baseURL()).
		WithStorage(st).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.Start(ctx); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected storage error surfaced, got %v", err)
	}
	if engine.Token() != "" {
		t.Fatalf("expected no token after failed load, got %q", engine.Token())
	}

	// A failed load must not latch Start; the retry loads the session.
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("retry Start failed: %v", err)
	}
	if engine.Token() != token {
		t.Fatalf("expected persisted token restored on retry, got %q", engine.Token())
	}

	// And the successful pass does latch.
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("repeat Start failed: %v", err)
	}
}

func TestRefreshProfileSilentWithoutToken(t *testing.T) {
	f := newFakeAPI(t)
	engine, _, _ := newTestEngine(t, f)

	if err := engine.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if _, _, _, _, _, profile := f.calls(); profile != 0 {
		t.Fatalf("expected no profile fetch without token, got %d", profile)
	}
	if _, ok := engine.User(); ok {
		t.Fatal("expected no user snapshot")
	}
}

func TestRefreshProfileResolvesPhotoAndNotifies(t *testing.T) {
	f := newFakeAPI(t)
	engine, _, notifier := newTestEngine(t, f)
	ctx := context.Background()

	photos := countEvents(notifier, notify.EventProfilePhoto)

	if err := engine.SetToken(ctx, mintTestToken(t, "u1")); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if err := engine.RefreshProfile(ctx); err != nil {
		t.Fatalf("RefreshProfile failed: %v", err)
	}

	user, ok := engine.User()
	if !ok {
		t.Fatal("expected user snapshot after refresh")
	}
	if user.FullName != "Alice Liddell" {
		t.Fatalf("unexpected name %q", user.FullName)
	}
	// /api-rooted photo path resolves onto the server origin with a
	// cache-defeating suffix.
	if !strings.HasPrefix(user.Photo, f.srv.URL+"/api/files/alice.png?_ts=") {
		t.Fatalf("unexpected photo URL %q", user.Photo)
	}
	if photos() != 1 {
		t.Fatalf("expected 1 profilePhoto event, got %d", photos())
	}
}

func TestForeignStorageChangeBridgesToSessionEvent(t *testing.T) {
	f := newFakeAPI(t)
	engine, st, notifier := newTestEngine(t, f)
	_ = engine

	sessions := countEvents(notifier, notify.EventSession)

	// The watcher goroutine registers asynchronously after Start; keep
	// signaling until the bridge observes one.
	waitFor(t, testWaitLong, func() bool {
		st.NotifyExternal(session.DefaultTokenKey)
		return sessions() > 0
	})

	// Changes to unrelated keys stay off the session event.
	before := sessions()
	st.NotifyExternal("some-other-app:key")
	if sessions() != before {
		t.Fatalf("expected unrelated key ignored, got %d extra events", sessions()-before)
	}
}

func TestEngineCloseStopsBridge(t *testing.T) {
	f := newFakeAPI(t)
	engine, st, notifier := newTestEngine(t, f)

	sessions := countEvents(notifier, notify.EventSession)
	waitFor(t, testWaitLong, func() bool {
		st.NotifyExternal(session.DefaultTokenKey)
		return sessions() > 0
	})

	engine.Close()

	// Close is idempotent.
	engine.Close()
}
