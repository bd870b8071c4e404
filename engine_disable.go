package mfakit

import "context"

// Disable removes an enabled method. Any pending setup challenge for the
// method is discarded as well.
//
// Disabling the user's last real method also clears their backup codes:
// codes exist to recover access to a second factor, and with no methods
// left there is nothing to recover.
func (e *Engine) Disable(ctx context.Context, userID string, method Method) error {
	if !supportedMethod(method) {
		return ErrUnsupportedMethod
	}
	if e.userProvider == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	user, err := e.requireUser(userID)
	if err != nil {
		return err
	}
	tenant := user.TenantID
	if tenant == "" {
		tenant = tenantIDFromContext(ctx)
	}

	enrollment, err := e.userProvider.GetEnrollment(ctx, userID)
	if err != nil {
		return ErrEnrollmentUnavailable
	}
	if !enrollmentHas(enrollment, method) {
		return ErrMethodNotEnabled
	}

	if err := e.userProvider.DisableMethod(ctx, userID, method); err != nil {
		return ErrEnrollmentUnavailable
	}

	_ = e.challenges.Delete(ctx, tenant, userID, method)
	_ = e.verifyLimiter.Reset(ctx, tenant, limiterSubject(userID, method))

	if realMethodCount(enrollment) <= 1 {
		// that was the last real method
		if err := e.userProvider.ReplaceBackupCodes(ctx, userID, nil); err != nil {
			return ErrEnrollmentUnavailable
		}
		_ = e.backupLimiter.Reset(ctx, tenant, userID)
	}

	e.metricInc(MetricMethodDisabled)
	e.emitAudit(ctx, auditEventMethodDisabled, true, userID, tenant, method, nil, nil)
	return nil
}
