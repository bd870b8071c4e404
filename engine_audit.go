package mfakit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventSetupStarted        = "setup_started"
	auditEventSetupDeliveryFailed = "setup_delivery_failed"
	auditEventSetupVerified       = "setup_verified"
	auditEventSetupFailed         = "setup_failed"
	auditEventMethodDisabled      = "method_disabled"
	auditEventBackupCodesGen      = "backup_codes_generated"
	auditEventBackupCodeUsed      = "backup_code_used"
	auditEventBackupCodeFailed    = "backup_code_failed"
	auditEventWebAuthnStarted     = "webauthn_registration_started"
	auditEventWebAuthnCompleted   = "webauthn_registration_completed"
	auditEventWebAuthnFailed      = "webauthn_registration_failed"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
)

// AuditErrorCode is the normalized error label attached to audit events.
type AuditErrorCode string

const (
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDeleted     AuditErrorCode = "account_deleted"
	auditErrUnsupportedMethod  AuditErrorCode = "unsupported_method"
	auditErrFeatureDisabled    AuditErrorCode = "feature_disabled"
	auditErrAlreadyEnabled     AuditErrorCode = "already_enabled"
	auditErrNotEnabled         AuditErrorCode = "not_enabled"
	auditErrNoSetupInProgress  AuditErrorCode = "no_setup_in_progress"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrContactMissing     AuditErrorCode = "contact_missing"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrNoBackupCodes      AuditErrorCode = "no_backup_codes"
	auditErrBackupCodeInvalid  AuditErrorCode = "backup_code_invalid"
	auditErrWebAuthnFailed     AuditErrorCode = "webauthn_failed"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrBackendUnavailable AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	method Method,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		Method:    string(method),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	userID string,
	method Method,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", method, nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDeleted):
		return auditErrAccountDeleted
	case errors.Is(err, ErrUnsupportedMethod):
		return auditErrUnsupportedMethod
	case errors.Is(err, ErrMethodFeatureDisabled):
		return auditErrFeatureDisabled
	case errors.Is(err, ErrMethodAlreadyEnabled):
		return auditErrAlreadyEnabled
	case errors.Is(err, ErrMethodNotEnabled):
		return auditErrNotEnabled
	case errors.Is(err, ErrNoSetupInProgress):
		return auditErrNoSetupInProgress
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrContactMissing):
		return auditErrContactMissing
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrSetupRateLimited),
		errors.Is(err, ErrVerifyRateLimited),
		errors.Is(err, ErrBackupCodeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNoBackupCodes):
		return auditErrNoBackupCodes
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrWebAuthnFailed):
		return auditErrWebAuthnFailed
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrEnrollmentUnavailable):
		return auditErrBackendUnavailable
	default:
		return auditErrInternal
	}
}
