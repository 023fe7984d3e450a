package bindflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kvartin/bindflow/api"
	"github.com/kvartin/bindflow/identity"
	"github.com/kvartin/bindflow/internal/rate"
	"github.com/kvartin/bindflow/notify"
	"github.com/kvartin/bindflow/session"
	"github.com/kvartin/bindflow/storage"
)

// Engine defines a public type used by bindflow APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	api      *api.Client
	storage  storage.Store
	notifier *notify.Notifier
	session  *session.Store
	provider identity.Provider
	resend   *rate.Cooldown
	audit    *auditDispatcher
	metrics  *Metrics

	// identityEpoch stamps widget invocations; a callback landing after
	// the session was cleared carries a stale epoch and is discarded.
	identityMu    sync.Mutex
	identityEpoch uint64

	startMu     sync.Mutex
	started     bool
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// Start loads the session projection from durable storage and, when the
// backend supports change notifications, bridges foreign mutations of the
// session keys onto the notifier. Start runs its body at most once; a
// failed load does not count, so callers may retry after a storage outage.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return nil
	}

	if err := e.session.Load(ctx); err != nil {
		return err
	}
	e.started = true

	watcher, ok := e.storage.(storage.Watcher)
	if !ok {
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	e.watchCancel = cancel
	e.watchDone = make(chan struct{})
	keys := e.sessionStorageKeys()
	go func() {
		defer close(e.watchDone)
		_ = e.notifier.BridgeStorage(watchCtx, watcher, keys...)
	}()
	return nil
}

// Close stops the storage bridge and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.watchCancel != nil {
		e.watchCancel()
		<-e.watchDone
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Notifier returns the engine's notifier for subscribing UI surfaces.
func (e *Engine) Notifier() *notify.Notifier {
	if e == nil {
		return nil
	}
	return e.notifier
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter and histogram state.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricRequestLatency, time.Since(start))
}

func (e *Engine) sessionStorageKeys() []string {
	keys := []string{
		e.config.Session.TokenKey,
		e.config.Session.UserKey,
		e.config.Session.IdentityKey,
	}
	defaults := []string{
		session.DefaultTokenKey,
		session.DefaultUserKey,
		session.DefaultIdentityKey,
	}
	for i, key := range keys {
		if key == "" {
			keys[i] = defaults[i]
		}
	}
	return keys
}

// flowErr maps transport rejections onto flow semantics: an expired or
// invalid bearer token becomes ErrSessionExpired while keeping the server's
// wording in the chain. Everything else passes through untouched.
func (e *Engine) flowErr(err error) error {
	if err == nil {
		return nil
	}
	var serverErr *api.Error
	if errors.As(err, &serverErr) && serverErr.Unauthorized() {
		return fmt.Errorf("%w: %w", ErrSessionExpired, serverErr)
	}
	return err
}
