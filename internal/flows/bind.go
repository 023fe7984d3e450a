package flows

import (
	"context"
	"sync"

	"github.com/kvartin/bindflow/codebuf"
)

// BindMetrics maps bind outcomes onto engine metric IDs.
type BindMetrics struct {
	CredentialsSuccess int
	CredentialsFailure int
	CodeSuccess        int
	CodeFailure        int
	Complete           int
	Restart            int
	StaleDiscarded     int
}

// BindEvents names the audit event types the flow emits.
type BindEvents struct {
	Credentials string
	ConfirmCode string
	Restart     string
}

// BindErrors carries the engine's sentinel errors.
type BindErrors struct {
	NotReady           error
	Unauthenticated    error
	CredentialsInvalid error
	CodeIncomplete     error
	InFlight           error
	OutOfOrder         error
	Completed          error
	Superseded         error
}

// BindDeps is the collaborator set for the account-binding flow.
type BindDeps struct {
	CodeLength int

	// Token reads the current session token. Every submission re-checks it:
	// binding is only meaningful under an authenticated session.
	Token func() string

	SubmitCredentials func(ctx context.Context, token, login, password string) error
	SubmitCode        func(ctx context.Context, token, login, password, code string) error

	// NotifyBindings fires after a server-confirmed bind; subscribers
	// reload bindings wholesale.
	NotifyBindings func()

	MetricInc func(id int)
	EmitAudit func(event string, success bool, flowID, login string, err error)

	Metrics BindMetrics
	Events  BindEvents
	Errors  BindErrors
}

func normalizeBindDeps(deps *BindDeps) {
	if deps.CodeLength < 1 {
		deps.CodeLength = codebuf.DefaultLength
	}
	if deps.Token == nil {
		deps.Token = func() string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error) {}
	}
}

// Bind drives the two-step account binding machine: credentials under the
// session token, then the dispatched one-time code validated against the
// same credential pair. There is no guard token exchange; the collected
// login and password are resubmitted with the code.
type Bind struct {
	id   string
	deps BindDeps

	mu        sync.Mutex
	step      int
	login     string
	password  string
	code      *codebuf.Buffer
	inFlight  bool
	epoch     uint64
	completed bool
	lastErr   error
}

// NewBind builds a Bind at step 1. The engine refuses to construct one
// without a session token.
func NewBind(id string, deps BindDeps) *Bind {
	normalizeBindDeps(&deps)
	return &Bind{
		id:   id,
		deps: deps,
		step: 1,
		code: codebuf.New(deps.CodeLength),
	}
}

// ID returns the flow instance identifier.
func (b *Bind) ID() string { return b.id }

// Step returns the 1-based current step.
func (b *Bind) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// Completed reports whether the bind was server-confirmed.
func (b *Bind) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Login returns the credential login collected in step 1.
func (b *Bind) Login() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.login
}

// Code returns the flow's code buffer.
func (b *Bind) Code() *codebuf.Buffer { return b.code }

// LastError returns the step-local error from the most recent submission.
func (b *Bind) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Bind) begin(step int) (uint64, string, error) {
	token := b.deps.Token()
	if token == "" {
		return 0, "", b.deps.Errors.Unauthenticated
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deps.SubmitCredentials == nil || b.deps.SubmitCode == nil {
		return 0, "", b.deps.Errors.NotReady
	}
	if b.completed {
		return 0, "", b.deps.Errors.Completed
	}
	if b.step != step {
		return 0, "", b.deps.Errors.OutOfOrder
	}
	if b.inFlight {
		return 0, "", b.deps.Errors.InFlight
	}
	b.inFlight = true
	return b.epoch, token, nil
}

func (b *Bind) finish(epoch uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight = false
	if b.epoch != epoch {
		b.deps.MetricInc(b.deps.Metrics.StaleDiscarded)
		return false
	}
	return true
}

// SubmitCredentials runs step 1: the login/password pair under the session
// token. Success advances to step 2, where the dispatched code is expected.
func (b *Bind) SubmitCredentials(ctx context.Context, login, password string) error {
	if login == "" || password == "" {
		err := b.deps.Errors.CredentialsInvalid
		b.setErr(err)
		b.deps.EmitAudit(b.deps.Events.Credentials, false, b.id, login, err)
		return err
	}

	epoch, token, err := b.begin(1)
	if err != nil {
		return err
	}

	submitErr := b.deps.SubmitCredentials(ctx, token, login, password)

	if !b.finish(epoch) {
		return b.deps.Errors.Superseded
	}
	if submitErr != nil {
		b.setErr(submitErr)
		b.deps.MetricInc(b.deps.Metrics.CredentialsFailure)
		b.deps.EmitAudit(b.deps.Events.Credentials, false, b.id, login, submitErr)
		return submitErr
	}

	b.mu.Lock()
	b.login = login
	b.password = password
	b.step = 2
	b.lastErr = nil
	b.mu.Unlock()

	b.deps.MetricInc(b.deps.Metrics.CredentialsSuccess)
	b.deps.EmitAudit(b.deps.Events.Credentials, true, b.id, login, nil)
	return nil
}

// SubmitCode runs step 2: the assembled code with the original credential
// pair and session token. Success completes the flow and notifies binding
// subscribers.
func (b *Bind) SubmitCode(ctx context.Context) error {
	if !b.code.IsComplete() {
		err := b.deps.Errors.CodeIncomplete
		b.setErr(err)
		b.deps.EmitAudit(b.deps.Events.ConfirmCode, false, b.id, b.Login(), err)
		return err
	}

	epoch, token, err := b.begin(2)
	if err != nil {
		return err
	}
	b.mu.Lock()
	login, password := b.login, b.password
	b.mu.Unlock()

	submitErr := b.deps.SubmitCode(ctx, token, login, password, b.code.Value())

	if !b.finish(epoch) {
		return b.deps.Errors.Superseded
	}
	if submitErr != nil {
		b.setErr(submitErr)
		b.deps.MetricInc(b.deps.Metrics.CodeFailure)
		b.deps.EmitAudit(b.deps.Events.ConfirmCode, false, b.id, login, submitErr)
		return submitErr
	}

	b.mu.Lock()
	b.completed = true
	b.lastErr = nil
	b.mu.Unlock()

	b.deps.MetricInc(b.deps.Metrics.Complete)
	b.deps.EmitAudit(b.deps.Events.ConfirmCode, true, b.id, login, nil)
	if b.deps.NotifyBindings != nil {
		b.deps.NotifyBindings()
	}
	return nil
}

// Back moves from step 2 to step 1, clearing the code buffer and the step-2
// error while keeping the already-dispatched server-side code valid.
func (b *Bind) Back() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed || b.step != 2 {
		return
	}
	b.step = 1
	b.lastErr = nil
	b.code.Clear()
	b.epoch++
}

// Restart returns to step 1, clearing collected credentials and the code
// buffer; late results from before the restart are discarded.
func (b *Bind) Restart() {
	b.mu.Lock()
	b.step = 1
	b.login = ""
	b.password = ""
	b.completed = false
	b.lastErr = nil
	b.code.Clear()
	b.epoch++
	b.mu.Unlock()

	b.deps.MetricInc(b.deps.Metrics.Restart)
	b.deps.EmitAudit(b.deps.Events.Restart, true, b.id, "", nil)
}

func (b *Bind) setErr(err error) {
	b.mu.Lock()
	if !b.completed {
		b.lastErr = err
	}
	b.mu.Unlock()
}
