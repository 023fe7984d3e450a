package bindflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kvartin/bindflow/codebuf"
	"github.com/kvartin/bindflow/internal/flows"
	"github.com/kvartin/bindflow/notify"
)

// BindFlow is the public handle for one account-bind attempt: a credential
// pair under the active session, then the dispatched one-time code. The
// session token is re-read on every submission, so a logout mid-flow
// surfaces as ErrUnauthenticated rather than a dangling request.
type BindFlow struct {
	flow *flows.Bind
}

// StartBind opens a bind flow at step 1. It refuses to open without an
// active session.
func (e *Engine) StartBind() (*BindFlow, error) {
	if e == nil || e.api == nil {
		return nil, ErrEngineNotReady
	}
	if e.session.Token() == "" {
		return nil, ErrUnauthenticated
	}

	id := uuid.NewString()

	deps := flows.BindDeps{
		CodeLength: e.config.Bind.CodeLength,

		Token: e.session.Token,

		SubmitCredentials: func(ctx context.Context, token, login, password string) error {
			start := time.Now()
			defer e.observeLatency(start)
			return e.flowErr(e.api.BindLogin(ctx, token, login, password, ""))
		},
		SubmitCode: func(ctx context.Context, token, login, password, code string) error {
			start := time.Now()
			defer e.observeLatency(start)
			return e.flowErr(e.api.BindLogin(ctx, token, login, password, code))
		},

		NotifyBindings: func() {
			e.notifier.Publish(notify.EventSocialBindings)
		},

		MetricInc: func(metricID int) { e.metricInc(MetricID(metricID)) },
		EmitAudit: func(event string, success bool, flowID, login string, err error) {
			e.emitAudit(context.Background(), event, KindBindAccount, success, flowID, login, err, nil)
		},

		Metrics: flows.BindMetrics{
			CredentialsSuccess: int(MetricBindCredentialsSuccess),
			CredentialsFailure: int(MetricBindCredentialsFailure),
			CodeSuccess:        int(MetricBindCodeSuccess),
			CodeFailure:        int(MetricBindCodeFailure),
			Complete:           int(MetricBindComplete),
			Restart:            int(MetricBindRestart),
			StaleDiscarded:     int(MetricStaleResultDiscarded),
		},
		Events: flows.BindEvents{
			Credentials: auditEventBindCredentials,
			ConfirmCode: auditEventBindConfirm,
			Restart:     auditEventBindRestart,
		},
		Errors: flows.BindErrors{
			NotReady:           ErrEngineNotReady,
			Unauthenticated:    ErrUnauthenticated,
			CredentialsInvalid: ErrCredentialsInvalid,
			CodeIncomplete:     ErrCodeIncomplete,
			InFlight:           ErrSubmissionInFlight,
			OutOfOrder:         ErrStepOutOfOrder,
			Completed:          ErrFlowCompleted,
			Superseded:         ErrFlowRestarted,
		},
	}

	return &BindFlow{flow: flows.NewBind(id, deps)}, nil
}

// Kind reports KindBindAccount.
func (f *BindFlow) Kind() FlowKind { return KindBindAccount }

// ID returns the flow instance identifier, present in its audit events.
func (f *BindFlow) ID() string { return f.flow.ID() }

// Step returns the 1-based current step.
func (f *BindFlow) Step() int { return f.flow.Step() }

// Completed reports whether the bind was server-confirmed.
func (f *BindFlow) Completed() bool { return f.flow.Completed() }

// Code returns the flow's code input buffer for step 2 editing.
func (f *BindFlow) Code() *codebuf.Buffer { return f.flow.Code() }

// Login returns the credential login collected in step 1.
func (f *BindFlow) Login() string { return f.flow.Login() }

// LastError returns the step-local error from the most recent submission.
func (f *BindFlow) LastError() error { return f.flow.LastError() }

// SubmitCredentials runs step 1 under the session token.
func (f *BindFlow) SubmitCredentials(ctx context.Context, login, password string) error {
	return f.flow.SubmitCredentials(ctx, login, password)
}

// SubmitCode runs step 2 with the buffer's assembled code and the step-1
// credential pair.
func (f *BindFlow) SubmitCode(ctx context.Context) error {
	return f.flow.SubmitCode(ctx)
}

// Back moves from step 2 to step 1, clearing the code buffer and the
// step-2 error.
func (f *BindFlow) Back() { f.flow.Back() }

// Restart returns to step 1 and clears the collected credentials.
func (f *BindFlow) Restart() { f.flow.Restart() }
