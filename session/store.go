// Package session holds the process-wide session projection: the bearer
// token and the current user's profile snapshot. The projection is loaded
// from durable storage exactly once at startup and is the source of truth
// thereafter; storage is written on every mutation but never re-read. No
// other component touches storage directly.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kvartin/bindflow/notify"
	"github.com/kvartin/bindflow/storage"
)

// Default storage keys. Deployments sharing one backend across apps
// override them through Config.
const (
	DefaultTokenKey    = "bindflow:token"
	DefaultUserKey     = "bindflow:user"
	DefaultIdentityKey = "bindflow:identity"
)

// Profile is the cached user snapshot.
type Profile struct {
	FullName string          `json:"full_name"`
	Photo    string          `json:"photo,omitempty"`
	Bindings []SocialBinding `json:"bindings,omitempty"`
}

// SocialBinding is a read-only projection of one external-provider
// association. Bindings are refreshed wholesale after a server-confirmed
// bind, never patched optimistically.
type SocialBinding struct {
	Provider string `json:"provider"`
	Bound    bool   `json:"bound"`
	Identity string `json:"identity,omitempty"`
}

// ProfileSource fetches the current profile under a bearer token. The API
// client satisfies it through an adapter in the root package.
type ProfileSource interface {
	FetchProfile(ctx context.Context, token string) (Profile, error)
}

// Config carries the store's wiring knobs.
type Config struct {
	// BaseURL is the API base origin relative photo paths resolve against.
	BaseURL string
	// TokenKey, UserKey, and IdentityKey name the durable-storage slots;
	// empty values take the defaults.
	TokenKey    string
	UserKey     string
	IdentityKey string
}

// Store is the sole writer of the token and user snapshot. All methods are
// safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	storage  storage.Store
	notifier *notify.Notifier
	source   ProfileSource

	baseURL     string
	tokenKey    string
	userKey     string
	identityKey string

	token  string
	user   *Profile
	loaded bool

	now func() time.Time
}

// NewStore wires a Store. Call Load before first use.
func NewStore(st storage.Store, n *notify.Notifier, src ProfileSource, cfg Config) *Store {
	if cfg.TokenKey == "" {
		cfg.TokenKey = DefaultTokenKey
	}
	if cfg.UserKey == "" {
		cfg.UserKey = DefaultUserKey
	}
	if cfg.IdentityKey == "" {
		cfg.IdentityKey = DefaultIdentityKey
	}
	return &Store{
		storage:     st,
		notifier:    n,
		source:      src,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokenKey:    cfg.TokenKey,
		userKey:     cfg.UserKey,
		identityKey: cfg.IdentityKey,
		now:         time.Now,
	}
}

// Load populates the in-memory projection from durable storage. It runs at
// most once; later calls are no-ops so startup order stays forgiving.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	if raw, ok, err := s.storage.Load(ctx, s.tokenKey); err != nil {
		return err
	} else if ok {
		s.token = string(raw)
	}

	if raw, ok, err := s.storage.Load(ctx, s.userKey); err != nil {
		return err
	} else if ok {
		var p Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			s.user = &p
		}
		// A corrupt snapshot is dropped; the next RefreshProfile rebuilds it.
	}

	s.loaded = true
	return nil
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the cached profile snapshot.
func (s *Store) User() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return Profile{}, false
	}
	return *s.user, true
}

// SetToken stores a new bearer token, persists it, and publishes a session
// notification.
func (s *Store) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.storage.Save(ctx, s.tokenKey, []byte(token)); err != nil {
		return err
	}
	s.notifier.Publish(notify.EventSession)
	return nil
}

// ClearToken destroys the session: token, cached user snapshot, and any
// pending identity assertion are removed from memory and durable storage,
// and exactly one session notification fires.
func (s *Store) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	var firstErr error
	for _, key := range []string{s.tokenKey, s.userKey, s.identityKey} {
		if err := s.storage.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.notifier.Publish(notify.EventSession)
	return firstErr
}

// RefreshProfile fetches the current profile and replaces the snapshot. A
// missing token makes this a silent no-op so the store can be refreshed before
// login completes. On success the photo reference is resolved against the
// base origin with a cache-defeating suffix, the snapshot is persisted, and
// a profile-photo notification fires.
func (s *Store) RefreshProfile(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return nil
	}

	p, err := s.source.FetchProfile(ctx, token)
	if err != nil {
		return err
	}
	if p.Photo != "" {
		p.Photo = withCacheBust(ResolvePhotoURL(s.baseURL, p.Photo), s.now())
	}

	s.mu.Lock()
	// A logout may have raced the fetch; a cleared session never gets a
	// stale snapshot written back.
	if s.token != token {
		s.mu.Unlock()
		return nil
	}
	s.user = &p
	s.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.storage.Save(ctx, s.userKey, data); err != nil {
		return err
	}
	s.notifier.Publish(notify.EventProfilePhoto)
	return nil
}

// StashIdentity persists an externally-asserted identity payload as the
// pending assertion. It travels through the store so ClearToken wipes it
// with the rest of the session.
func (s *Store) StashIdentity(ctx context.Context, payload []byte) error {
	return s.storage.Save(ctx, s.identityKey, payload)
}

// TokenStorageKey names the durable slot holding the token, for wiring the
// cross-context storage bridge.
func (s *Store) TokenStorageKey() string {
	return s.tokenKey
}

// ResolvePhotoURL applies the photo-path resolution rule:
//
//   - an absolute URL passes through unchanged;
//   - a path rooted at /api is rewritten onto the base URL's origin (the
//     base itself typically ends in /api, so the prefix is not doubled);
//   - any other relative path is joined to the base with exactly one slash.
func ResolvePhotoURL(base, raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(raw, "/api") {
		if u, err := url.Parse(base); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host + raw
		}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
}

// withCacheBust appends a monotonically distinct query value so a freshly
// fetched photo is never shadowed by an HTTP cache, and an unchanged photo
// is never mistaken for a changed one by URL equality alone.
func withCacheBust(u string, now time.Time) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_ts=%d", u, sep, now.UnixNano())
}
