package flows

import (
	"context"
	"sync"

	"github.com/kvartin/bindflow/codebuf"
)

// RecoveryMetrics maps the flow's observable outcomes onto engine metric IDs.
type RecoveryMetrics struct {
	Request        int
	RequestFailure int
	CodeSuccess    int
	CodeFailure    int
	Complete       int
	Restart        int
	StaleDiscarded int
}

// RecoveryEvents names the audit event types the flow emits.
type RecoveryEvents struct {
	Request     string
	ConfirmCode string
	Complete    string
	Restart     string
}

// RecoveryErrors carries the engine's sentinel errors so this package never
// imports the public one.
type RecoveryErrors struct {
	NotReady        error
	EmailInvalid    error
	PasswordInvalid error
	CodeIncomplete  error
	GuardMissing    error
	InFlight        error
	OutOfOrder      error
	Completed       error
	Superseded      error
}

// RecoveryDeps is the collaborator set for the password recovery flow.
type RecoveryDeps struct {
	CodeLength int

	ValidateEmail func(login string) error
	AllowResend   func(login string) error

	// SubmitEmail requests code dispatch. SubmitCode validates the code and
	// must yield the guard token. SubmitPassword completes recovery.
	SubmitEmail    func(ctx context.Context, login string) error
	SubmitCode     func(ctx context.Context, login, code string) (string, error)
	SubmitPassword func(ctx context.Context, login, password, guard string) error

	// OnCompleted is the redirect-style completion signal, invoked once
	// after the flow reaches its terminal step.
	OnCompleted func()

	MetricInc func(id int)
	EmitAudit func(event string, success bool, flowID, login string, err error)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.CodeLength < 1 {
		deps.CodeLength = codebuf.DefaultLength
	}
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(string) error { return nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error) {}
	}
}

// Recovery drives the three-step password recovery machine:
// email → one-time code (yielding the guard token) → new password.
//
// Submissions for one instance are strictly sequential: a second submission
// while one is outstanding returns Errors.InFlight. Restart and Back bump an
// epoch; a network completion from a superseded epoch clears the in-flight
// guard but has no other user-visible effect.
type Recovery struct {
	id   string
	deps RecoveryDeps

	mu        sync.Mutex
	step      int
	login     string
	guard     string
	code      *codebuf.Buffer
	inFlight  bool
	epoch     uint64
	completed bool
	lastErr   error
}

// NewRecovery builds a Recovery at step 1.
func NewRecovery(id string, deps RecoveryDeps) *Recovery {
	normalizeRecoveryDeps(&deps)
	return &Recovery{
		id:   id,
		deps: deps,
		step: 1,
		code: codebuf.New(deps.CodeLength),
	}
}

// ID returns the flow instance identifier.
func (r *Recovery) ID() string { return r.id }

// Step returns the 1-based current step.
func (r *Recovery) Step() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Completed reports whether the flow reached its terminal step.
func (r *Recovery) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// GuardToken returns the server-issued guard token, or "" before step 2
// succeeds.
func (r *Recovery) GuardToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guard
}

// Login returns the email collected in step 1.
func (r *Recovery) Login() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.login
}

// Code returns the flow's code buffer. The buffer belongs to this instance;
// Restart and Back clear it.
func (r *Recovery) Code() *codebuf.Buffer { return r.code }

// LastError returns the step-local error surfaced by the most recent
// submission, or nil. The flow keeps its step position on failure so the
// user may retry.
func (r *Recovery) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// begin validates ordering and acquires the in-flight guard.
func (r *Recovery) begin(step int) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deps.SubmitEmail == nil || r.deps.SubmitCode == nil || r.deps.SubmitPassword == nil {
		return 0, r.deps.Errors.NotReady
	}
	if r.completed {
		return 0, r.deps.Errors.Completed
	}
	if r.step != step {
		return 0, r.deps.Errors.OutOfOrder
	}
	if r.inFlight {
		return 0, r.deps.Errors.InFlight
	}
	r.inFlight = true
	return r.epoch, nil
}

// finish releases the guard and reports whether the result is still current.
// The guard clears regardless of staleness; a stale result's user-visible
// effects are discarded by the caller.
func (r *Recovery) finish(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = false
	if r.epoch != epoch {
		r.deps.MetricInc(r.deps.Metrics.StaleDiscarded)
		return false
	}
	return true
}

// SubmitEmail runs step 1: request dispatch of a one-time code to login.
// Validation failures and resend throttling resolve locally and never reach
// the network.
func (r *Recovery) SubmitEmail(ctx context.Context, login string) error {
	if err := r.deps.ValidateEmail(login); err != nil {
		r.setErrIfCurrent(err)
		r.deps.EmitAudit(r.deps.Events.Request, false, r.id, login, err)
		return err
	}
	epoch, err := r.begin(1)
	if err != nil {
		return err
	}
	// The resend window is checked only once the submission is accepted;
	// ordering and in-flight refusals must not burn the cooldown.
	if r.deps.AllowResend != nil {
		if err := r.deps.AllowResend(login); err != nil {
			r.mu.Lock()
			r.inFlight = false
			r.mu.Unlock()
			r.deps.EmitAudit(r.deps.Events.Request, false, r.id, login, err)
			return err
		}
	}

	submitErr := r.deps.SubmitEmail(ctx, login)

	if !r.finish(epoch) {
		return r.deps.Errors.Superseded
	}
	if submitErr != nil {
		r.setErr(submitErr)
		r.deps.MetricInc(r.deps.Metrics.RequestFailure)
		r.deps.EmitAudit(r.deps.Events.Request, false, r.id, login, submitErr)
		return submitErr
	}

	r.mu.Lock()
	r.login = login
	r.step = 2
	r.lastErr = nil
	r.mu.Unlock()

	r.deps.MetricInc(r.deps.Metrics.Request)
	r.deps.EmitAudit(r.deps.Events.Request, true, r.id, login, nil)
	return nil
}

// SubmitCode runs step 2: the assembled code together with the step-1 email.
// An incomplete buffer is rejected locally. A successful exchange that lacks
// the guard token is a flow error, not a silent pass.
func (r *Recovery) SubmitCode(ctx context.Context) error {
	if !r.code.IsComplete() {
		err := r.deps.Errors.CodeIncomplete
		r.setErrIfCurrent(err)
		r.deps.EmitAudit(r.deps.Events.ConfirmCode, false, r.id, r.Login(), err)
		return err
	}

	epoch, err := r.begin(2)
	if err != nil {
		return err
	}
	login := r.Login()

	guard, submitErr := r.deps.SubmitCode(ctx, login, r.code.Value())

	if !r.finish(epoch) {
		return r.deps.Errors.Superseded
	}
	if submitErr != nil {
		r.setErr(submitErr)
		r.deps.MetricInc(r.deps.Metrics.CodeFailure)
		r.deps.EmitAudit(r.deps.Events.ConfirmCode, false, r.id, login, submitErr)
		return submitErr
	}
	if guard == "" {
		guardErr := r.deps.Errors.GuardMissing
		r.setErr(guardErr)
		r.deps.MetricInc(r.deps.Metrics.CodeFailure)
		r.deps.EmitAudit(r.deps.Events.ConfirmCode, false, r.id, login, guardErr)
		return guardErr
	}

	r.mu.Lock()
	r.guard = guard
	r.step = 3
	r.lastErr = nil
	r.mu.Unlock()

	r.deps.MetricInc(r.deps.Metrics.CodeSuccess)
	r.deps.EmitAudit(r.deps.Events.ConfirmCode, true, r.id, login, nil)
	return nil
}

// SubmitPassword runs step 3: the new password under the guard token. On
// success the flow is terminal and the completion signal fires.
func (r *Recovery) SubmitPassword(ctx context.Context, password string) error {
	if password == "" {
		err := r.deps.Errors.PasswordInvalid
		r.setErrIfCurrent(err)
		r.deps.EmitAudit(r.deps.Events.Complete, false, r.id, r.Login(), err)
		return err
	}

	epoch, err := r.begin(3)
	if err != nil {
		return err
	}
	r.mu.Lock()
	login, guard := r.login, r.guard
	r.mu.Unlock()

	submitErr := r.deps.SubmitPassword(ctx, login, password, guard)

	if !r.finish(epoch) {
		return r.deps.Errors.Superseded
	}
	if submitErr != nil {
		r.setErr(submitErr)
		r.deps.EmitAudit(r.deps.Events.Complete, false, r.id, login, submitErr)
		return submitErr
	}

	r.mu.Lock()
	r.completed = true
	r.lastErr = nil
	r.mu.Unlock()

	r.deps.MetricInc(r.deps.Metrics.Complete)
	r.deps.EmitAudit(r.deps.Events.Complete, true, r.id, login, nil)
	if r.deps.OnCompleted != nil {
		r.deps.OnCompleted()
	}
	return nil
}

// Back moves from step 2 to step 1, clearing the code buffer and the step-2
// error. The server-side one-time code stays valid; resubmitting step 1
// requests a new one.
func (r *Recovery) Back() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed || r.step != 2 {
		return
	}
	r.step = 1
	r.guard = ""
	r.lastErr = nil
	r.code.Clear()
	r.epoch++
}

// Restart returns to step 1 from any state, clearing every collected field,
// the guard token, and the code buffer. In-flight results from before the
// restart are discarded when they land.
func (r *Recovery) Restart() {
	r.mu.Lock()
	r.step = 1
	r.login = ""
	r.guard = ""
	r.completed = false
	r.lastErr = nil
	r.code.Clear()
	r.epoch++
	r.mu.Unlock()

	r.deps.MetricInc(r.deps.Metrics.Restart)
	r.deps.EmitAudit(r.deps.Events.Restart, true, r.id, "", nil)
}

func (r *Recovery) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// setErrIfCurrent records a locally-detected error without touching the
// in-flight guard.
func (r *Recovery) setErrIfCurrent(err error) {
	r.mu.Lock()
	if !r.completed {
		r.lastErr = err
	}
	r.mu.Unlock()
}
