package mfakit

import "errors"

var (
	// ErrEngineNotReady is returned when a required collaborator was not wired
	// through the builder.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidRequest is returned when a request is structurally invalid.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUserNotFound is returned when the user provider has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountDisabled is returned for operations on disabled accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is returned for operations on locked accounts.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDeleted is returned for operations on deleted accounts.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrUnsupportedMethod is returned for a method name the engine does not know.
	ErrUnsupportedMethod = errors.New("unsupported mfa method")
	// ErrMethodFeatureDisabled is returned when the method is switched off in config.
	ErrMethodFeatureDisabled = errors.New("mfa method feature disabled")
	// ErrMethodAlreadyEnabled is returned when setup is started for an
	// already-enabled method.
	ErrMethodAlreadyEnabled = errors.New("mfa method already enabled")
	// ErrMethodNotEnabled is returned when the operation requires the method
	// to be enabled first.
	ErrMethodNotEnabled = errors.New("mfa method not enabled")
	// ErrNoSetupInProgress is returned when no pending setup challenge exists
	// for the (user, method) pair.
	ErrNoSetupInProgress = errors.New("no mfa setup in progress")
	// ErrCodeInvalid is returned when a submitted code does not match.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the pending challenge has passed its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrAttemptsExceeded is returned when the challenge attempt cap destroyed
	// the pending setup.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrContactMissing is returned when SMS or email setup has no target
	// phone number or address.
	ErrContactMissing = errors.New("contact information missing")
	// ErrDeliveryFailed is returned when the outbound sender reported failure.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrSetupRateLimited is returned when code sends are throttled.
	ErrSetupRateLimited = errors.New("mfa setup rate limited")
	// ErrVerifyRateLimited is returned when verification attempts are throttled.
	ErrVerifyRateLimited = errors.New("mfa verification rate limited")
	// ErrNoBackupCodes is returned when no backup codes are configured for the user.
	ErrNoBackupCodes = errors.New("no backup codes available")
	// ErrBackupCodeInvalid is returned when a backup code does not match or
	// was already used.
	ErrBackupCodeInvalid = errors.New("invalid backup code")
	// ErrBackupCodeRateLimited is returned when backup code attempts are throttled.
	ErrBackupCodeRateLimited = errors.New("backup code rate limited")
	// ErrWebAuthnFailed is returned when the WebAuthn provider rejected a ceremony.
	ErrWebAuthnFailed = errors.New("webauthn registration failed")
	// ErrEnrollmentUnavailable is returned when the Redis backend is unreachable.
	ErrEnrollmentUnavailable = errors.New("enrollment backend unavailable")
)
