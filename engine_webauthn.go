package mfakit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StartWebAuthnRegistration begins a WebAuthn registration ceremony.
// The credential options go back to the browser untouched; the
// ceremony's session data is held server-side against the returned
// registration ID until [Engine.FinishWebAuthnRegistration].
//
// Starting a new ceremony replaces any ceremony already in flight for
// the user.
func (e *Engine) StartWebAuthnRegistration(ctx context.Context, userID string) (*WebAuthnRegistration, error) {
	if !e.config.Features.WebAuthn {
		return nil, ErrMethodFeatureDisabled
	}
	if e.userProvider == nil || e.challenges == nil || e.webauthn == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.requireUser(userID)
	if err != nil {
		return nil, err
	}
	tenant := user.TenantID
	if tenant == "" {
		tenant = tenantIDFromContext(ctx)
	}

	credentialOptions, sessionData, err := e.webauthn.BeginRegistration(ctx, user)
	if err != nil {
		e.metricInc(MetricWebAuthnFailed)
		e.emitAudit(ctx, auditEventWebAuthnFailed, false, userID, tenant, MethodWebAuthn, ErrWebAuthnFailed, nil)
		return nil, ErrWebAuthnFailed
	}

	registrationID := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Enrollment.WebAuthnSetupTTL)
	challenge := &setupChallenge{
		Method:    MethodWebAuthn,
		Secret:    sessionData,
		Target:    registrationID,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.challenges.Save(ctx, tenant, userID, challenge); err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	e.metricInc(MetricWebAuthnStarted)
	e.emitAudit(ctx, auditEventWebAuthnStarted, true, userID, tenant, MethodWebAuthn, nil, func() map[string]string {
		return map[string]string{
			"registration_id": registrationID,
		}
	})

	return &WebAuthnRegistration{
		RegistrationID:    registrationID,
		CredentialOptions: credentialOptions,
		ExpiresAt:         expiresAt,
	}, nil
}

// FinishWebAuthnRegistration completes the ceremony identified by
// registrationID with the browser's attestation response. The held
// session data is consumed atomically, so replaying the same attestation
// cannot register twice.
func (e *Engine) FinishWebAuthnRegistration(ctx context.Context, userID, registrationID string, attestation []byte) (*VerifySetupResult, error) {
	if !e.config.Features.WebAuthn {
		return nil, ErrMethodFeatureDisabled
	}
	if e.userProvider == nil || e.challenges == nil || e.webauthn == nil {
		return nil, ErrEngineNotReady
	}
	if registrationID == "" || len(attestation) == 0 {
		return nil, ErrInvalidRequest
	}

	user, err := e.requireUser(userID)
	if err != nil {
		return nil, err
	}
	tenant := user.TenantID
	if tenant == "" {
		tenant = tenantIDFromContext(ctx)
	}

	challenge, err := e.challenges.Peek(ctx, tenant, userID, MethodWebAuthn)
	if err != nil {
		if errors.Is(err, errChallengeExpired) {
			_ = e.challenges.Delete(ctx, tenant, userID, MethodWebAuthn)
			e.metricInc(MetricSetupExpired)
			e.emitAudit(ctx, auditEventWebAuthnFailed, false, userID, tenant, MethodWebAuthn, ErrCodeExpired, nil)
			return nil, ErrCodeExpired
		}
		return nil, mapChallengeError(err)
	}
	if challenge.Target != registrationID {
		return nil, ErrNoSetupInProgress
	}

	enrollment, err := e.userProvider.GetEnrollment(ctx, userID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	if _, err := e.webauthn.FinishRegistration(ctx, user, challenge.Secret, attestation); err != nil {
		e.metricInc(MetricWebAuthnFailed)
		e.emitAudit(ctx, auditEventWebAuthnFailed, false, userID, tenant, MethodWebAuthn, ErrWebAuthnFailed, nil)
		return nil, ErrWebAuthnFailed
	}

	// compare-and-clear so a racing Finish with the same session loses
	if _, err := e.challenges.ConsumeSecret(ctx, tenant, userID, MethodWebAuthn, challenge.Secret); err != nil {
		if errors.Is(err, errChallengeMismatch) || errors.Is(err, errChallengeNotFound) {
			return nil, ErrNoSetupInProgress
		}
		return nil, mapChallengeError(err)
	}

	if !enrollmentHas(enrollment, MethodWebAuthn) {
		if err := e.userProvider.EnableMethod(ctx, userID, MethodWebAuthn, MethodEnrollment{}); err != nil {
			return nil, ErrEnrollmentUnavailable
		}
	}

	result := &VerifySetupResult{Method: MethodWebAuthn}
	if e.config.Enrollment.AutoGenerateBackupCodes && realMethodCount(enrollment) == 0 {
		if generated, genErr := e.installBackupCodes(ctx, userID, tenant); genErr == nil {
			result.BackupCodes = generated
		}
	}

	e.metricInc(MetricWebAuthnCompleted)
	e.emitAudit(ctx, auditEventWebAuthnCompleted, true, userID, tenant, MethodWebAuthn, nil, func() map[string]string {
		return map[string]string{
			"registration_id": registrationID,
		}
	})
	return result, nil
}
