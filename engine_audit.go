package bindflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kvartin/bindflow/api"
	"github.com/kvartin/bindflow/identity"
	"github.com/kvartin/bindflow/internal/rate"
	"github.com/kvartin/bindflow/storage"
)

const (
	auditEventRecoveryRequest  = "recovery_code_requested"
	auditEventRecoveryConfirm  = "recovery_code_confirmed"
	auditEventRecoveryComplete = "recovery_completed"
	auditEventRecoveryRestart  = "recovery_restarted"
	auditEventBindCredentials  = "bind_credentials_submitted"
	auditEventBindConfirm      = "bind_code_confirmed"
	auditEventBindRestart      = "bind_restarted"
	auditEventIdentityBind     = "identity_bind"
	auditEventIdentityAbandon  = "identity_widget_abandoned"
	auditEventSessionSet       = "session_token_set"
	auditEventSessionCleared   = "session_cleared"
	auditEventProfileRefresh   = "profile_refreshed"
	auditEventResendThrottled  = "code_resend_throttled"
)

// AuditErrorCode defines a public type used by bindflow APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrValidation        AuditErrorCode = "validation_failed"
	auditErrCodeIncomplete    AuditErrorCode = "code_incomplete"
	auditErrGuardMissing      AuditErrorCode = "guard_token_missing"
	auditErrUnauthenticated   AuditErrorCode = "unauthenticated"
	auditErrSessionExpired    AuditErrorCode = "session_expired"
	auditErrInFlight          AuditErrorCode = "submission_in_flight"
	auditErrOutOfOrder        AuditErrorCode = "step_out_of_order"
	auditErrCompleted         AuditErrorCode = "flow_completed"
	auditErrRestarted         AuditErrorCode = "flow_restarted"
	auditErrThrottled         AuditErrorCode = "resend_throttled"
	auditErrServerRejected    AuditErrorCode = "server_rejected"
	auditErrWidgetUnavailable AuditErrorCode = "widget_unavailable"
	auditErrStorage           AuditErrorCode = "storage_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	kind FlowKind,
	success bool,
	flowID string,
	login string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		FlowKind:  kind.String(),
		FlowID:    flowID,
		Login:     login,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrPasswordInvalid),
		errors.Is(err, ErrCredentialsInvalid):
		return auditErrValidation
	case errors.Is(err, ErrCodeIncomplete):
		return auditErrCodeIncomplete
	case errors.Is(err, ErrGuardTokenMissing):
		return auditErrGuardMissing
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrSubmissionInFlight):
		return auditErrInFlight
	case errors.Is(err, ErrStepOutOfOrder):
		return auditErrOutOfOrder
	case errors.Is(err, ErrFlowCompleted):
		return auditErrCompleted
	case errors.Is(err, ErrFlowRestarted):
		return auditErrRestarted
	case errors.Is(err, ErrResendThrottled),
		errors.Is(err, rate.ErrCoolingDown):
		return auditErrThrottled
	case errors.Is(err, ErrWidgetUnavailable),
		errors.Is(err, identity.ErrNotReady):
		return auditErrWidgetUnavailable
	case errors.Is(err, storage.ErrUnavailable):
		return auditErrStorage
	}

	var serverErr *api.Error
	if errors.As(err, &serverErr) {
		return auditErrServerRejected
	}

	return auditErrInternal
}
