package mfakit

import "context"

// EnrollmentOverview summarizes a user's MFA posture in one call:
// enabled methods plus backup code status.
func (e *Engine) EnrollmentOverview(ctx context.Context, userID string) (*EnrollmentOverview, error) {
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

	overview := &EnrollmentOverview{}
	if enrollment != nil {
		for _, m := range enrollment.Methods {
			if m == MethodBackupCode {
				continue
			}
			overview.Methods = append(overview.Methods, m)
		}
		overview.BackupCodes.GeneratedAt = enrollment.BackupCodesGeneratedAt
	}

	records, err := e.userProvider.GetBackupCodes(ctx, user.UserID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}
	overview.BackupCodes.Remaining = len(records)

	return overview, nil
}
