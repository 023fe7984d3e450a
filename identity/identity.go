// Package identity abstracts the host-provided external login widget as a
// polymorphic provider capability. The engine invokes the provider with the
// application identifier and receives the asserted identity through an
// asynchronous callback; the provider's own authentication protocol is
// opaque to this module.
package identity

import (
	"encoding/json"
	"errors"
)

// ErrNotReady is returned by a provider whose underlying widget is not
// available (script not loaded, host capability missing). The engine maps it
// to a user-visible "widget unavailable" condition.
var ErrNotReady = errors.New("identity provider not ready")

// LoginConfig parameterizes one widget invocation.
type LoginConfig struct {
	// ApplicationID is the constant identifier the widget is registered
	// under with the external platform.
	ApplicationID string
	// RequestAccess asks the platform for message access alongside the
	// identity assertion.
	RequestAccess bool
}

// Callback receives the widget outcome. A nil payload means the user
// abandoned the widget; that is not an error.
type Callback func(payload json.RawMessage)

// Provider is the single capability the engine depends on. A concrete
// browser widget is one implementation; test doubles are another.
type Provider interface {
	// BeginLogin opens the provider's login surface and eventually invokes
	// done exactly once. It returns ErrNotReady (possibly wrapped) when the
	// widget cannot be opened; concurrency of multiple open dialogs is the
	// host widget's own business.
	BeginLogin(cfg LoginConfig, done Callback) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(cfg LoginConfig, done Callback) error

// BeginLogin implements Provider.
func (f ProviderFunc) BeginLogin(cfg LoginConfig, done Callback) error {
	return f(cfg, done)
}

// StaticProvider is a test double that resolves every login with a fixed
// payload (or an abandon, when Payload is nil). When Ready is false it
// reports ErrNotReady without invoking the callback.
type StaticProvider struct {
	Ready   bool
	Payload json.RawMessage

	// Invocations counts BeginLogin calls that reached the widget.
	Invocations int
	// LastConfig records the most recent invocation's config.
	LastConfig LoginConfig
}

// BeginLogin implements Provider, completing synchronously.
func (p *StaticProvider) BeginLogin(cfg LoginConfig, done Callback) error {
	if !p.Ready {
		return ErrNotReady
	}
	p.Invocations++
	p.LastConfig = cfg
	done(p.Payload)
	return nil
}
