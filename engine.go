package mfakit

import (
	"errors"
	"time"

	"github.com/averix/mfakit/internal/limiters"
)

// Engine orchestrates MFA enrollment: starting and verifying method
// setup, disabling methods, backup codes, and WebAuthn registration
// ceremonies. Obtain one through [New].
//
// All methods are safe for concurrent use.
type Engine struct {
	config        Config
	challenges    *challengeStore
	sendLimiter   *limiters.SendLimiter
	verifyLimiter *limiters.AttemptLimiter
	backupLimiter *limiters.AttemptLimiter
	audit         *auditDispatcher
	metrics       *Metrics
	totp          *totpManager
	userProvider  UserProvider
	email         EmailSender
	sms           SMSSender
	webauthn      WebAuthnProvider
}

// Close drains and stops the audit dispatcher. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded due to
// dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metric values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountActive, AccountPendingVerification:
		return nil
	case AccountDisabled:
		return ErrAccountDisabled
	case AccountLocked:
		return ErrAccountLocked
	case AccountDeleted:
		return ErrAccountDeleted
	default:
		return ErrInvalidRequest
	}
}

// requireUser loads the user and applies the account-status gate shared
// by every operation.
func (e *Engine) requireUser(userID string) (UserRecord, error) {
	if userID == "" {
		return UserRecord{}, ErrUserNotFound
	}
	user, err := e.userProvider.GetUserByID(userID)
	if err != nil {
		return UserRecord{}, ErrUserNotFound
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		return UserRecord{}, statusErr
	}
	return user, nil
}

func enrollmentHas(enrollment *EnrollmentRecord, method Method) bool {
	if enrollment == nil {
		return false
	}
	for _, m := range enrollment.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func realMethodCount(enrollment *EnrollmentRecord) int {
	if enrollment == nil {
		return 0
	}
	count := 0
	for _, m := range enrollment.Methods {
		if m != MethodBackupCode {
			count++
		}
	}
	return count
}

// mapChallengeError translates store sentinels into the public taxonomy.
func mapChallengeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errChallengeNotFound):
		return ErrNoSetupInProgress
	case errors.Is(err, errChallengeExpired):
		return ErrCodeExpired
	case errors.Is(err, errChallengeMismatch):
		return ErrCodeInvalid
	case errors.Is(err, errChallengeAttemptsExceeded):
		return ErrAttemptsExceeded
	default:
		return ErrEnrollmentUnavailable
	}
}

func supportedMethod(method Method) bool {
	switch method {
	case MethodTOTP, MethodSMS, MethodEmail, MethodWebAuthn:
		return true
	default:
		return false
	}
}

// limiterSubject scopes per-method counters: one user's SMS failures
// must not lock out their TOTP setup.
func limiterSubject(userID string, method Method) string {
	return userID + ":" + string(method)
}

// tolerateLimiterOutage reports whether a limiter backend failure may
// fail open. Outside strict availability mode, verification throttling
// degrades to a no-op while Redis is unreachable; challenge state and
// send throttling always require the backend.
func (e *Engine) tolerateLimiterOutage(err error) bool {
	return errors.Is(err, limiters.ErrUnavailable) && !e.config.Redis.StrictAvailability
}

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountPendingVerification:
		return "pending_verification"
	case AccountDisabled:
		return "disabled"
	case AccountLocked:
		return "locked"
	case AccountDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
