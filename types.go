package mfakit

import (
	"context"
	"time"
)

// Method identifies a second-factor type.
type Method string

const (
	// MethodTOTP is an authenticator-app time-based code.
	MethodTOTP Method = "totp"
	// MethodSMS is a one-time code delivered by text message.
	MethodSMS Method = "sms"
	// MethodEmail is a one-time code delivered by email.
	MethodEmail Method = "email"
	// MethodWebAuthn is a platform or roaming authenticator credential.
	MethodWebAuthn Method = "webauthn"
	// MethodBackupCode is the virtual recovery method. It is never enabled
	// directly; backup codes exist alongside the real methods.
	MethodBackupCode Method = "backup_code"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountActive is an account in good standing.
	AccountActive AccountStatus = iota
	// AccountPendingVerification is a newly created, not yet verified account.
	AccountPendingVerification
	// AccountDisabled is an administratively disabled account.
	AccountDisabled
	// AccountLocked is a temporarily locked account.
	AccountLocked
	// AccountDeleted is a soft-deleted account.
	AccountDeleted
)

// UserRecord is the account record returned by [UserProvider.GetUserByID].
type UserRecord struct {
	UserID     string
	Identifier string
	TenantID   string
	Status     AccountStatus
	Email      string
	Phone      string
}

// EnrollmentRecord is the durable MFA state for one user, returned by
// [UserProvider.GetEnrollment]. Methods contains only ENABLED methods;
// pending setups never touch the provider.
type EnrollmentRecord struct {
	Methods    []Method
	TOTPSecret []byte
	Phone      string
	Email      string

	BackupCodesGeneratedAt time.Time
}

// MethodEnrollment carries the data to persist when a method flips to
// enabled. Exactly the fields relevant to the method are set: TOTPSecret
// for totp, Phone for sms, Email for email, nothing for webauthn.
type MethodEnrollment struct {
	TOTPSecret []byte
	Phone      string
	Email      string
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// UserProvider is the interface callers implement to connect the engine
// to their user database. It owns all durable enrollment state.
//
// EnableMethod adds the method to the enrollment's Methods set: enabling
// a second method must keep the first, and enabling an already-enabled
// method must be idempotent (replacing its MethodEnrollment data, as
// TOTP secret rotation does).
//
// ConsumeBackupCode must be atomic: when two calls race on the same hash,
// exactly one may return true.
type UserProvider interface {
	GetUserByID(userID string) (UserRecord, error)
	GetEnrollment(ctx context.Context, userID string) (*EnrollmentRecord, error)
	EnableMethod(ctx context.Context, userID string, method Method, enrollment MethodEnrollment) error
	DisableMethod(ctx context.Context, userID string, method Method) error
	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)
}

// EmailSender delivers one-time codes over email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one-time codes over SMS.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// WebAuthnProvider performs the cryptographic half of WebAuthn
// registration ceremonies. Both payloads are opaque to the engine and
// are passed through to the browser as-is (typically JSON in the
// navigator.credentials shapes).
type WebAuthnProvider interface {
	BeginRegistration(ctx context.Context, user UserRecord) (credentialOptions, sessionData []byte, err error)
	FinishRegistration(ctx context.Context, user UserRecord, sessionData, attestation []byte) (credentialID string, err error)
}

// StartSetupRequest is the input for [Engine.StartSetup].
//
// Phone and Email override the contact stored on the user's enrollment
// record; when empty, the stored contact is used. Rotate permits starting
// TOTP setup while TOTP is already enabled (secret rotation).
type StartSetupRequest struct {
	UserID string
	Method Method
	Phone  string
	Email  string
	Rotate bool
}

// StartSetupResult is returned by [Engine.StartSetup].
//
// For TOTP the secret fields are populated. For SMS and email, Target
// carries the masked destination the code was sent to.
type StartSetupResult struct {
	Method       Method
	SecretBase32 string
	OTPAuthURI   string
	QRCodePNG    []byte
	Target       string
	ExpiresAt    time.Time
}

// VerifySetupResult is returned by [Engine.VerifySetup] and
// [Engine.FinishWebAuthnRegistration]. BackupCodes is populated exactly
// once: when the verification enabled the user's first method.
type VerifySetupResult struct {
	Method      Method
	BackupCodes []string
}

// BackupCodeStatus reports the state of a user's backup code set.
// Codes are hashed at rest, so only counts are observable after
// generation.
type BackupCodeStatus struct {
	Remaining   int
	GeneratedAt time.Time
}

// WebAuthnRegistration is returned by [Engine.StartWebAuthnRegistration].
type WebAuthnRegistration struct {
	RegistrationID    string
	CredentialOptions []byte
	ExpiresAt         time.Time
}

// EnrollmentOverview is a one-call summary of a user's MFA posture,
// returned by [Engine.EnrollmentOverview].
type EnrollmentOverview struct {
	Methods     []Method
	BackupCodes BackupCodeStatus
}
