package bindflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvartin/bindflow/codebuf"
	"github.com/kvartin/bindflow/internal/flows"
)

// RecoveryFlow is the public handle for one password recovery attempt:
// email, then the dispatched one-time code, then the replacement password
// under the server-issued guard token. Handles are cheap; abandoned ones
// need no cleanup.
type RecoveryFlow struct {
	flow *flows.Recovery
}

// StartRecovery opens a recovery flow at step 1. onCompleted, when not nil,
// fires once after step 3 succeeds; hosts typically navigate back to login
// from it.
func (e *Engine) StartRecovery(onCompleted func()) (*RecoveryFlow, error) {
	if e == nil || e.api == nil {
		return nil, ErrEngineNotReady
	}

	id := uuid.NewString()

	deps := flows.RecoveryDeps{
		CodeLength: e.config.Recovery.CodeLength,

		SubmitEmail: func(ctx context.Context, login string) error {
			start := time.Now()
			defer e.observeLatency(start)
			_, err := e.api.ConfirmEmail(ctx, login, "")
			return e.flowErr(err)
		},
		SubmitCode: func(ctx context.Context, login, code string) (string, error) {
			start := time.Now()
			defer e.observeLatency(start)
			guard, err := e.api.ConfirmEmail(ctx, login, code)
			return guard, e.flowErr(err)
		},
		SubmitPassword: func(ctx context.Context, login, password, guard string) error {
			start := time.Now()
			defer e.observeLatency(start)
			return e.flowErr(e.api.RecoverPassword(ctx, login, password, guard))
		},

		OnCompleted: onCompleted,

		MetricInc: func(metricID int) { e.metricInc(MetricID(metricID)) },
		EmitAudit: func(event string, success bool, flowID, login string, err error) {
			e.emitAudit(context.Background(), event, KindRecoverPassword, success, flowID, login, err, nil)
		},

		Metrics: flows.RecoveryMetrics{
			Request:        int(MetricRecoveryRequest),
			RequestFailure: int(MetricRecoveryRequestFailure),
			CodeSuccess:    int(MetricRecoveryCodeSuccess),
			CodeFailure:    int(MetricRecoveryCodeFailure),
			Complete:       int(MetricRecoveryComplete),
			Restart:        int(MetricRecoveryRestart),
			StaleDiscarded: int(MetricStaleResultDiscarded),
		},
		Events: flows.RecoveryEvents{
			Request:     auditEventRecoveryRequest,
			ConfirmCode: auditEventRecoveryConfirm,
			Complete:    auditEventRecoveryComplete,
			Restart:     auditEventRecoveryRestart,
		},
		Errors: flows.RecoveryErrors{
			NotReady:        ErrEngineNotReady,
			EmailInvalid:    ErrEmailInvalid,
			PasswordInvalid: ErrPasswordInvalid,
			CodeIncomplete:  ErrCodeIncomplete,
			GuardMissing:    ErrGuardTokenMissing,
			InFlight:        ErrSubmissionInFlight,
			OutOfOrder:      ErrStepOutOfOrder,
			Completed:       ErrFlowCompleted,
			Superseded:      ErrFlowRestarted,
		},
	}

	if e.config.Recovery.ValidateEmailFormat {
		deps.ValidateEmail = func(login string) error {
			if !emailPlausible(login) {
				return ErrEmailInvalid
			}
			return nil
		}
	}

	deps.AllowResend = func(login string) error {
		if err := e.resend.Allow(login); err != nil {
			e.metricInc(MetricResendThrottled)
			e.emitAudit(context.Background(), auditEventResendThrottled, KindRecoverPassword, false, id, login, ErrResendThrottled, nil)
			return ErrResendThrottled
		}
		return nil
	}

	return &RecoveryFlow{flow: flows.NewRecovery(id, deps)}, nil
}

// Kind reports KindRecoverPassword.
func (f *RecoveryFlow) Kind() FlowKind { return KindRecoverPassword }

// ID returns the flow instance identifier, present in its audit events.
func (f *RecoveryFlow) ID() string { return f.flow.ID() }

// Step returns the 1-based current step.
func (f *RecoveryFlow) Step() int { return f.flow.Step() }

// Completed reports whether the replacement password was accepted.
func (f *RecoveryFlow) Completed() bool { return f.flow.Completed() }

// Code returns the flow's code input buffer for step 2 editing.
func (f *RecoveryFlow) Code() *codebuf.Buffer { return f.flow.Code() }

// Login returns the email collected in step 1.
func (f *RecoveryFlow) Login() string { return f.flow.Login() }

// GuardToken returns the server-issued token gating step 3, or "" before
// step 2 succeeds.
func (f *RecoveryFlow) GuardToken() string { return f.flow.GuardToken() }

// LastError returns the step-local error from the most recent submission.
func (f *RecoveryFlow) LastError() error { return f.flow.LastError() }

// SubmitEmail runs step 1, requesting a one-time code for login.
func (f *RecoveryFlow) SubmitEmail(ctx context.Context, login string) error {
	return f.flow.SubmitEmail(ctx, login)
}

// SubmitCode runs step 2 with the buffer's assembled code.
func (f *RecoveryFlow) SubmitCode(ctx context.Context) error {
	return f.flow.SubmitCode(ctx)
}

// SubmitPassword runs step 3 under the guard token.
func (f *RecoveryFlow) SubmitPassword(ctx context.Context, password string) error {
	return f.flow.SubmitPassword(ctx, password)
}

// Back moves from step 2 to step 1, clearing the code buffer and the
// step-2 error.
func (f *RecoveryFlow) Back() { f.flow.Back() }

// Restart returns to step 1 and clears everything collected so far.
func (f *RecoveryFlow) Restart() { f.flow.Restart() }

// emailPlausible applies the cheap local shape check: one @, a nonempty
// local part, and a dotted domain. Real validation belongs to the server.
func emailPlausible(login string) bool {
	local, domain, ok := strings.Cut(login, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	if strings.ContainsAny(login, " \t") {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
