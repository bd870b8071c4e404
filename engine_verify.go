package mfakit

import (
	"context"
	"errors"
	"time"

	"github.com/averix/mfakit/internal/codes"
	"github.com/averix/mfakit/internal/limiters"
)

// VerifySetup completes a pending enrollment. On success the method
// flips to enabled through the user provider and the pending challenge
// is consumed atomically, so of two racing verifications exactly one
// wins.
//
// When the verification enables the user's very first method and
// backup code auto-generation is on, the result carries the freshly
// generated plaintext backup codes. They are not retrievable again.
func (e *Engine) VerifySetup(ctx context.Context, userID string, method Method, code string) (*VerifySetupResult, error) {
	start := time.Now()
	defer func() {
		e.metricObserve(MetricVerifyLatency, time.Since(start))
	}()

	if !supportedMethod(method) {
		return nil, ErrUnsupportedMethod
	}
	if method == MethodWebAuthn {
		return nil, ErrInvalidRequest
	}
	if !e.config.methodEnabled(method) {
		return nil, ErrMethodFeatureDisabled
	}
	if e.userProvider == nil || e.challenges == nil {
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

	if err := e.verifyLimiter.Check(ctx, tenant, limiterSubject(userID, method)); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitRateLimit(ctx, "setup_verify", userID, method)
			return nil, ErrVerifyRateLimited
		}
		if !e.tolerateLimiterOutage(err) {
			return nil, ErrEnrollmentUnavailable
		}
	}

	if code == "" {
		e.metricInc(MetricSetupFailed)
		e.emitAudit(ctx, auditEventSetupFailed, false, userID, tenant, method, ErrCodeInvalid, nil)
		return nil, ErrCodeInvalid
	}

	enrollment, err := e.userProvider.GetEnrollment(ctx, userID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	switch method {
	case MethodTOTP:
		err = e.verifyTOTPSetup(ctx, user, tenant, code)
	case MethodSMS, MethodEmail:
		err = e.verifyCodeSetup(ctx, user, tenant, method, code)
	default:
		return nil, ErrUnsupportedMethod
	}
	if err != nil {
		return nil, err
	}

	_ = e.verifyLimiter.Reset(ctx, tenant, limiterSubject(userID, method))

	result := &VerifySetupResult{Method: method}
	if e.config.Enrollment.AutoGenerateBackupCodes && realMethodCount(enrollment) == 0 {
		if generated, genErr := e.installBackupCodes(ctx, userID, tenant); genErr == nil {
			result.BackupCodes = generated
		}
	}

	e.metricInc(MetricSetupVerified)
	e.emitAudit(ctx, auditEventSetupVerified, true, userID, tenant, method, nil, nil)
	return result, nil
}

func (e *Engine) verifyTOTPSetup(ctx context.Context, user UserRecord, tenant, code string) error {
	if e.totp == nil {
		return ErrEngineNotReady
	}

	challenge, err := e.challenges.Peek(ctx, tenant, user.UserID, MethodTOTP)
	if err != nil {
		if errors.Is(err, errChallengeExpired) {
			_ = e.challenges.Delete(ctx, tenant, user.UserID, MethodTOTP)
			e.metricInc(MetricSetupExpired)
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, MethodTOTP, ErrCodeExpired, nil)
			return ErrCodeExpired
		}
		return mapChallengeError(err)
	}

	ok, _, err := e.totp.VerifyCode(challenge.Secret, code, time.Now())
	if err != nil {
		return ErrEnrollmentUnavailable
	}
	if !ok {
		failErr := e.challenges.RecordFailure(ctx, tenant, user.UserID, MethodTOTP, e.config.Enrollment.MaxVerifyAttempts)
		_ = e.verifyLimiter.RecordFailure(ctx, tenant, limiterSubject(user.UserID, MethodTOTP))
		if errors.Is(failErr, errChallengeAttemptsExceeded) {
			e.metricInc(MetricAttemptsExceeded)
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, MethodTOTP, ErrAttemptsExceeded, nil)
			return ErrAttemptsExceeded
		}
		e.metricInc(MetricSetupFailed)
		e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, MethodTOTP, ErrCodeInvalid, nil)
		return ErrCodeInvalid
	}

	// compare-and-clear: if a concurrent verification already promoted
	// (or setup restarted under us), treat it as no pending setup
	consumed, err := e.challenges.ConsumeSecret(ctx, tenant, user.UserID, MethodTOTP, challenge.Secret)
	if err != nil {
		if errors.Is(err, errChallengeMismatch) || errors.Is(err, errChallengeNotFound) {
			return ErrNoSetupInProgress
		}
		return mapChallengeError(err)
	}

	if err := e.userProvider.EnableMethod(ctx, user.UserID, MethodTOTP, MethodEnrollment{TOTPSecret: consumed.Secret}); err != nil {
		return ErrEnrollmentUnavailable
	}
	return nil
}

func (e *Engine) verifyCodeSetup(ctx context.Context, user UserRecord, tenant string, method Method, code string) error {
	providedHash := codes.HashOTP(user.UserID, code)

	challenge, err := e.challenges.ConsumeCode(ctx, tenant, user.UserID, method, providedHash, e.config.Enrollment.MaxVerifyAttempts)
	if err != nil {
		switch {
		case errors.Is(err, errChallengeExpired):
			e.metricInc(MetricSetupExpired)
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, method, ErrCodeExpired, nil)
			return ErrCodeExpired
		case errors.Is(err, errChallengeMismatch):
			_ = e.verifyLimiter.RecordFailure(ctx, tenant, limiterSubject(user.UserID, method))
			e.metricInc(MetricSetupFailed)
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, method, ErrCodeInvalid, nil)
			return ErrCodeInvalid
		case errors.Is(err, errChallengeAttemptsExceeded):
			e.metricInc(MetricAttemptsExceeded)
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, method, ErrAttemptsExceeded, nil)
			return ErrAttemptsExceeded
		default:
			return mapChallengeError(err)
		}
	}

	enrollment := MethodEnrollment{}
	switch method {
	case MethodSMS:
		enrollment.Phone = challenge.Target
	case MethodEmail:
		enrollment.Email = challenge.Target
	}

	if err := e.userProvider.EnableMethod(ctx, user.UserID, method, enrollment); err != nil {
		return ErrEnrollmentUnavailable
	}
	return nil
}

// EnrolledMethods lists the user's enabled methods. Pending setups are
// not included.
func (e *Engine) EnrolledMethods(ctx context.Context, userID string) ([]Method, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.requireUser(userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := e.userProvider.GetEnrollment(ctx, user.UserID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}
	if enrollment == nil {
		return nil, nil
	}

	methods := make([]Method, 0, len(enrollment.Methods))
	for _, m := range enrollment.Methods {
		if m == MethodBackupCode {
			continue
		}
		methods = append(methods, m)
	}
	return methods, nil
}
