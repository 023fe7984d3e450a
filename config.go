package bindflow

import (
	"errors"
	"net/url"
	"time"
)

// Config defines a public type used by bindflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	API      APIConfig
	Recovery RecoveryConfig
	Bind     BindConfig
	Session  SessionConfig
	Identity IdentityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the REST collaborator every flow submits to.
type APIConfig struct {
	// BaseURL is the absolute origin, typically ending in /api. Relative
	// profile photo paths resolve against it.
	BaseURL string
	Timeout time.Duration
}

/*
====================================
FLOW CONFIG
====================================
*/

// RecoveryConfig shapes the three-step password recovery flow.
type RecoveryConfig struct {
	CodeLength int
	// ResendCooldown throttles re-requesting a code for the same login.
	// Zero disables the throttle.
	ResendCooldown time.Duration
	// ValidateEmailFormat rejects obviously malformed addresses locally,
	// before any network call.
	ValidateEmailFormat bool
}

// BindConfig shapes the two-step account binding flow.
type BindConfig struct {
	CodeLength int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig names the durable-storage slots of the session projection.
// Empty values take the session package defaults.
type SessionConfig struct {
	TokenKey    string
	UserKey     string
	IdentityKey string
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig parameterizes the external identity widget.
type IdentityConfig struct {
	ApplicationID string
	RequestAccess bool
	// ProfileReloadDelay is the pause between a confirmed identity bind
	// and the follow-up profile refresh, giving the collaborator time to
	// materialize the new binding.
	ProfileReloadDelay time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by bindflow APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by bindflow APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration a fresh Builder starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Recovery: RecoveryConfig{
			CodeLength:          6,
			ResendCooldown:      30 * time.Second,
			ValidateEmailFormat: true,
		},
		Bind: BindConfig{
			CodeLength: 6,
		},
		Identity: IdentityConfig{
			ProfileReloadDelay: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Value semantics throughout; kept as a function so reference fields
	// added later get deep-copied in one place.
	return cfg
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return errors.New("API.BaseURL must be an absolute URL")
		}
	}
	if c.API.Timeout < 0 {
		return errors.New("API.Timeout must not be negative")
	}
	if c.Recovery.CodeLength < 1 || c.Recovery.CodeLength > 12 {
		return errors.New("Recovery.CodeLength must be between 1 and 12")
	}
	if c.Bind.CodeLength < 1 || c.Bind.CodeLength > 12 {
		return errors.New("Bind.CodeLength must be between 1 and 12")
	}
	if c.Recovery.ResendCooldown < 0 {
		return errors.New("Recovery.ResendCooldown must not be negative")
	}
	if c.Identity.ProfileReloadDelay < 0 {
		return errors.New("Identity.ProfileReloadDelay must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("Audit.BufferSize must not be negative")
	}
	return nil
}
