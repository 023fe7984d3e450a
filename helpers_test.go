package bindflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kvartin/bindflow/notify"
	"github.com/kvartin/bindflow/storage/memory"
)

var testJWTSecret = []byte("bindflow-test-secret")

// testWaitLong bounds polling loops waiting on background goroutines.
const testWaitLong = 5 * time.Second

// mintTestToken issues a short-lived HS256 bearer token the fake API
// accepts. The engine treats it as opaque; only the fake verifies it.
func mintTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// fakeAPI is an httptest-backed stand-in for the REST collaborator. It
// verifies the Authorization header carries a valid minted token verbatim
// and counts every exchange so tests can assert which calls reached the
// network.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu sync.Mutex

	validCode string
	guardHash string
	profile   map[string]any

	requestCalls  int
	confirmCalls  int
	recoverCalls  int
	bindCalls     int
	identityCalls int
	profileCalls  int

	lastAuth      string
	lastGuardHash string
	lastLogin     string
	lastIdentity  []byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		t:         t,
		validCode: "123456",
		guardHash: "h1",
		profile: map[string]any{
			"name":  "Alice Liddell",
			"photo": "/api/files/alice.png",
			"bindings": []map[string]any{
				{"provider": "ext", "bound": false},
			},
		},
	}

	mux := http.NewServeMux()
	// The base URL the engine gets ends in /api, matching production
	// deployments; photo paths rooted at /api resolve onto the origin.
	mux.HandleFunc("POST /api/auth/confirm_email", f.handleConfirmEmail)
	mux.HandleFunc("POST /api/auth/password_recovery", f.handleRecovery)
	mux.HandleFunc("POST /api/user/bind_login", f.handleBindLogin)
	mux.HandleFunc("GET /api/user/profile", f.handleProfile)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) baseURL() string { return f.srv.URL + "/api" }

func (f *fakeAPI) authorized(r *http.Request) bool {
	raw := r.Header.Get("Authorization")

	f.mu.Lock()
	f.lastAuth = raw
	f.mu.Unlock()

	if raw == "" {
		return false
	}
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return testJWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}

func reject(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func (f *fakeAPI) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("recovery") != "true" {
		reject(w, http.StatusBadRequest, "recovery flag required")
		return
	}
	var body struct {
		Login string `json:"login"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.lastLogin = body.Login
	code := r.URL.Query().Get("code")
	if code == "" {
		f.requestCalls++
		f.mu.Unlock()
		_, _ = w.Write([]byte("{}"))
		return
	}
	f.confirmCalls++
	valid := code == f.validCode
	hash := f.guardHash
	f.mu.Unlock()

	if !valid {
		reject(w, http.StatusBadRequest, "Invalid code")
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]string{"hash": hash},
	})
}

func (f *fakeAPI) handleRecovery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.recoverCalls++
	f.lastGuardHash = r.URL.Query().Get("guard_hash")
	expected := f.guardHash
	f.mu.Unlock()

	if r.URL.Query().Get("guard_hash") != expected || expected == "" {
		reject(w, http.StatusBadRequest, "Invalid recovery request")
		return
	}
	if body.Password == "" {
		reject(w, http.StatusBadRequest, "Password required")
		return
	}
	_, _ = w.Write([]byte("{}"))
}

func (f *fakeAPI) handleBindLogin(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		reject(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if body.Login == "" {
		// The identity bridge posts the widget payload untouched.
		f.identityCalls++
		f.lastIdentity = append([]byte(nil), raw...)
		_, _ = w.Write([]byte("{}"))
		return
	}

	f.bindCalls++
	f.lastLogin = body.Login
	if code := r.URL.Query().Get("code"); code != "" && code != f.validCode {
		reject(w, http.StatusBadRequest, "Invalid code")
		return
	}
	_, _ = w.Write([]byte("{}"))
}

func (f *fakeAPI) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		reject(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	f.mu.Lock()
	f.profileCalls++
	profile := f.profile
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{"profile": profile})
}

func (f *fakeAPI) calls() (request, confirm, reset, bind, identity, profile int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCalls, f.confirmCalls, f.recoverCalls, f.bindCalls, f.identityCalls, f.profileCalls
}

func (f *fakeAPI) authHeader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

type testEngineOption func(*Builder)

func newTestEngine(t *testing.T, f *fakeAPI, opts ...testEngineOption) (*Engine, *memory.Store, *notify.Notifier) {
	t.Helper()

	st := memory.New()
	notifier := notify.New()

	cfg := DefaultConfig()
	cfg.Recovery.ResendCooldown = 0
	cfg.Identity.ProfileReloadDelay = 5 * time.Millisecond

	b := New().
		WithConfig(cfg).
		WithBaseURL(f.baseURL()).
		WithStorage(st).
		WithNotifier(notifier)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, st, notifier
}

// countEvents subscribes a counter to one notifier event and returns a
// reader for it.
func countEvents(n *notify.Notifier, event notify.Event) func() int {
	var mu sync.Mutex
	count := 0
	n.Subscribe(event, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
