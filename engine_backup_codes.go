package mfakit

import (
	"context"
	"errors"

	"github.com/averix/mfakit/internal/codes"
	"github.com/averix/mfakit/internal/limiters"
)

// installBackupCodes mints a fresh code set, stores the hashes through
// the user provider, and returns the formatted plaintext codes. Any
// previous set is replaced wholesale.
func (e *Engine) installBackupCodes(ctx context.Context, userID, tenant string) ([]string, error) {
	count := e.config.Enrollment.BackupCodeCount
	length := e.config.Enrollment.BackupCodeLength

	plaintext := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		raw, err := codes.NewBackupCode(length, nil)
		if err != nil {
			return nil, ErrEnrollmentUnavailable
		}
		plaintext = append(plaintext, codes.FormatBackupCode(raw))
		records = append(records, BackupCodeRecord{Hash: codes.BackupCodeHash(userID, raw)})
	}

	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	_ = e.backupLimiter.Reset(ctx, tenant, userID)

	e.metricInc(MetricBackupCodesGenerated)
	e.emitAudit(ctx, auditEventBackupCodesGen, true, userID, tenant, MethodBackupCode, nil, nil)
	return plaintext, nil
}

// RegenerateBackupCodes replaces the user's backup code set and returns
// the new codes in plaintext. This is the only moment the plaintext is
// visible; only hashes are stored.
//
// At least one real method must be enabled, since backup codes are a
// recovery path for enrolled factors rather than a factor of their own.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.userProvider == nil {
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

	enrollment, err := e.userProvider.GetEnrollment(ctx, userID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}
	if realMethodCount(enrollment) == 0 {
		return nil, ErrMethodNotEnabled
	}

	return e.installBackupCodes(ctx, userID, tenant)
}

// BackupCodeStatus reports how many unused codes remain and when the
// current set was generated. A user with no codes gets a zero status,
// not an error.
func (e *Engine) BackupCodeStatus(ctx context.Context, userID string) (BackupCodeStatus, error) {
	if e == nil || e.userProvider == nil {
		return BackupCodeStatus{}, ErrEngineNotReady
	}

	user, err := e.requireUser(userID)
	if err != nil {
		return BackupCodeStatus{}, err
	}

	records, err := e.userProvider.GetBackupCodes(ctx, user.UserID)
	if err != nil {
		return BackupCodeStatus{}, ErrEnrollmentUnavailable
	}

	status := BackupCodeStatus{Remaining: len(records)}
	if enrollment, err := e.userProvider.GetEnrollment(ctx, user.UserID); err == nil && enrollment != nil {
		status.GeneratedAt = enrollment.BackupCodesGeneratedAt
	}
	return status, nil
}

// VerifyBackupCode checks and consumes a single backup code. Consumption
// is atomic through the user provider, so a code can never be spent
// twice even under concurrent verification.
//
// Input is canonicalized before hashing: case, dashes, and spaces do not
// matter.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if e == nil || e.userProvider == nil {
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

	if err := e.backupLimiter.Check(ctx, tenant, userID); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitRateLimit(ctx, "backup_code", userID, MethodBackupCode)
			return ErrBackupCodeRateLimited
		}
		if !e.tolerateLimiterOutage(err) {
			return ErrEnrollmentUnavailable
		}
	}

	records, err := e.userProvider.GetBackupCodes(ctx, user.UserID)
	if err != nil {
		return ErrEnrollmentUnavailable
	}
	if len(records) == 0 {
		return ErrNoBackupCodes
	}

	canonical := codes.CanonicalizeBackupCode(code)
	if canonical == "" {
		return e.failBackupCode(ctx, userID, tenant)
	}

	consumed, err := e.userProvider.ConsumeBackupCode(ctx, user.UserID, codes.BackupCodeHash(user.UserID, canonical))
	if err != nil {
		return ErrEnrollmentUnavailable
	}
	if !consumed {
		return e.failBackupCode(ctx, userID, tenant)
	}

	_ = e.backupLimiter.Reset(ctx, tenant, userID)

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, tenant, MethodBackupCode, nil, nil)
	return nil
}

func (e *Engine) failBackupCode(ctx context.Context, userID, tenant string) error {
	_ = e.backupLimiter.RecordFailure(ctx, tenant, userID)
	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, auditEventBackupCodeFailed, false, userID, tenant, MethodBackupCode, ErrBackupCodeInvalid, nil)
	return ErrBackupCodeInvalid
}
