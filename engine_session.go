package bindflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kvartin/bindflow/identity"
	"github.com/kvartin/bindflow/notify"
)

// Token returns the current bearer token, or "" when logged out.
func (e *Engine) Token() string {
	if e == nil {
		return ""
	}
	return e.session.Token()
}

// User returns the cached profile snapshot and whether one exists.
func (e *Engine) User() (Profile, bool) {
	if e == nil {
		return Profile{}, false
	}
	return e.session.User()
}

// SetToken installs a new bearer token after a successful login exchange,
// persists it, and publishes the session event.
func (e *Engine) SetToken(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := e.session.SetToken(ctx, token)
	e.metricInc(MetricSessionSet)
	e.emitAudit(ctx, auditEventSessionSet, kindNone, err == nil, "", "", err, nil)
	return err
}

// ClearToken destroys the session. Identity widget callbacks from before
// the clear are invalidated here, so a late assertion cannot bind under a
// session the user already left.
func (e *Engine) ClearToken(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.identityMu.Lock()
	e.identityEpoch++
	e.identityMu.Unlock()

	err := e.session.ClearToken(ctx)
	e.metricInc(MetricSessionCleared)
	e.emitAudit(ctx, auditEventSessionCleared, kindNone, err == nil, "", "", err, nil)
	return err
}

// RefreshProfile re-fetches the profile snapshot under the current token.
// Without a token it is a silent no-op.
func (e *Engine) RefreshProfile(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.session.Token() == "" {
		return nil
	}

	err := e.flowErr(e.session.RefreshProfile(ctx))
	if err != nil {
		e.metricInc(MetricProfileRefreshFailure)
		e.emitAudit(ctx, auditEventProfileRefresh, kindNone, false, "", "", err, nil)
		return err
	}
	e.metricInc(MetricProfileRefreshSuccess)
	e.emitAudit(ctx, auditEventProfileRefresh, kindNone, true, "", "", nil, nil)
	return nil
}

// BeginIdentityBind opens the external identity widget. The provider calls
// back at most once per invocation: with the asserted payload, or with nil
// when the user closed the widget without finishing. Opening while another
// dialog is still open simply opens a second host-native dialog; dialog
// concurrency is the host widget's own business. The callback is serviced
// on the provider's goroutine; a callback arriving after ClearToken is
// discarded.
func (e *Engine) BeginIdentityBind(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.provider == nil {
		return ErrWidgetUnavailable
	}
	if e.session.Token() == "" {
		return ErrUnauthenticated
	}

	e.identityMu.Lock()
	epoch := e.identityEpoch
	e.identityMu.Unlock()

	cfg := identity.LoginConfig{
		ApplicationID: e.config.Identity.ApplicationID,
		RequestAccess: e.config.Identity.RequestAccess,
	}

	err := e.provider.BeginLogin(cfg, func(payload json.RawMessage) {
		e.finishIdentityBind(epoch, payload)
	})
	if err != nil {
		e.emitAudit(ctx, auditEventIdentityBind, kindNone, false, "", "", err, nil)
		if errors.Is(err, identity.ErrNotReady) {
			return ErrWidgetUnavailable
		}
		return err
	}
	return nil
}

func (e *Engine) finishIdentityBind(epoch uint64, payload json.RawMessage) {
	e.identityMu.Lock()
	stale := epoch != e.identityEpoch
	e.identityMu.Unlock()

	if stale {
		e.metricInc(MetricStaleResultDiscarded)
		return
	}

	ctx := context.Background()

	if payload == nil {
		e.metricInc(MetricIdentityAbandoned)
		e.emitAudit(ctx, auditEventIdentityAbandon, kindNone, false, "", "", nil, nil)
		return
	}

	token := e.session.Token()
	if token == "" {
		e.metricInc(MetricStaleResultDiscarded)
		return
	}

	// The assertion is stashed before the exchange so a crash between the
	// two leaves it recoverable from storage.
	_ = e.session.StashIdentity(ctx, payload)

	start := time.Now()
	err := e.api.BindIdentity(ctx, token, payload)
	e.observeLatency(start)
	if err != nil {
		e.metricInc(MetricIdentityBindFailure)
		e.emitAudit(ctx, auditEventIdentityBind, kindNone, false, "", "", e.flowErr(err), nil)
		return
	}

	e.metricInc(MetricIdentityBindSuccess)
	e.emitAudit(ctx, auditEventIdentityBind, kindNone, true, "", "", nil, nil)
	e.notifier.Publish(notify.EventSocialBindings)

	time.AfterFunc(e.config.Identity.ProfileReloadDelay, func() {
		_ = e.RefreshProfile(context.Background())
	})
}
