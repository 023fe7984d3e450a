package bindflow

import (
	"context"
	"errors"
	"net/http"

	"github.com/kvartin/bindflow/api"
	"github.com/kvartin/bindflow/identity"
	"github.com/kvartin/bindflow/internal/rate"
	"github.com/kvartin/bindflow/notify"
	"github.com/kvartin/bindflow/session"
	"github.com/kvartin/bindflow/storage"
)

// Builder assembles an Engine from its collaborators. A durable storage
// backend and a base URL are required; everything else has a default.
type Builder struct {
	config Config

	baseURL    string
	httpClient *http.Client
	storage    storage.Store
	notifier   *notify.Notifier
	provider   identity.Provider
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the REST collaborator's origin, overriding
// Config.API.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = baseURL
	return b
}

// WithHTTPClient supplies the transport used for every API exchange.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithStorage supplies the durable backend the session projection persists
// to. Required.
func (b *Builder) WithStorage(st storage.Store) *Builder {
	b.storage = st
	return b
}

// WithNotifier supplies a shared notifier; omitted, the engine creates its
// own.
func (b *Builder) WithNotifier(n *notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithIdentityProvider supplies the external identity widget adapter.
// Without one, BeginIdentityBind reports the widget unavailable.
func (b *Builder) WithIdentityProvider(p identity.Provider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink supplies the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the collaborators, and returns
// the Engine. Build performs no I/O; call [Engine.Start] to load the
// session projection.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.baseURL != "" {
		cfg.API.BaseURL = b.baseURL
	}
	if cfg.API.BaseURL == "" {
		return nil, errors.New("base URL required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.storage == nil {
		return nil, errors.New("storage backend required")
	}

	hc := b.httpClient
	if hc == nil && cfg.API.Timeout > 0 {
		hc = &http.Client{Timeout: cfg.API.Timeout}
	}

	client, err := api.NewClient(cfg.API.BaseURL, hc)
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = notify.New()
	}

	engine := &Engine{
		config:   cfg,
		api:      client,
		storage:  b.storage,
		notifier: notifier,
		provider: b.provider,
	}

	engine.session = session.NewStore(b.storage, notifier, profileSource{client: client}, session.Config{
		BaseURL:     cfg.API.BaseURL,
		TokenKey:    cfg.Session.TokenKey,
		UserKey:     cfg.Session.UserKey,
		IdentityKey: cfg.Session.IdentityKey,
	})

	engine.resend = rate.NewCooldown(cfg.Recovery.ResendCooldown)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

// profileSource adapts the API client to the session store's fetch
// contract.
type profileSource struct {
	client *api.Client
}

func (p profileSource) FetchProfile(ctx context.Context, token string) (session.Profile, error) {
	remote, err := p.client.FetchProfile(ctx, token)
	if err != nil {
		return session.Profile{}, err
	}

	out := session.Profile{
		FullName: remote.FullName,
		Photo:    remote.Photo,
	}
	for _, binding := range remote.Bindings {
		out.Bindings = append(out.Bindings, session.SocialBinding{
			Provider: binding.Provider,
			Bound:    binding.Bound,
			Identity: binding.Identity,
		})
	}
	return out, nil
}
