package bindflow

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the flow engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEmailInvalid is an exported constant or variable used by the flow engine.
	ErrEmailInvalid = errors.New("malformed email address")
	// ErrPasswordInvalid is an exported constant or variable used by the flow engine.
	ErrPasswordInvalid = errors.New("password must not be empty")
	// ErrCredentialsInvalid is an exported constant or variable used by the flow engine.
	ErrCredentialsInvalid = errors.New("login and password required")
	// ErrCodeIncomplete is an exported constant or variable used by the flow engine.
	ErrCodeIncomplete = errors.New("verification code incomplete")
	// ErrGuardTokenMissing is an exported constant or variable used by the flow engine.
	ErrGuardTokenMissing = errors.New("recovery challenge missing guard token")
	// ErrUnauthenticated is an exported constant or variable used by the flow engine.
	ErrUnauthenticated = errors.New("no active session")
	// ErrSessionExpired is an exported constant or variable used by the flow engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrSubmissionInFlight is an exported constant or variable used by the flow engine.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrStepOutOfOrder is an exported constant or variable used by the flow engine.
	ErrStepOutOfOrder = errors.New("step submitted out of order")
	// ErrFlowCompleted is an exported constant or variable used by the flow engine.
	ErrFlowCompleted = errors.New("flow already completed")
	// ErrFlowRestarted is an exported constant or variable used by the flow engine.
	ErrFlowRestarted = errors.New("flow restarted during submission")
	// ErrResendThrottled is an exported constant or variable used by the flow engine.
	ErrResendThrottled = errors.New("code resend cooling down")
	// ErrWidgetUnavailable is an exported constant or variable used by the flow engine.
	ErrWidgetUnavailable = errors.New("identity widget unavailable")
)
