package mfakit

import (
	"errors"
	"strings"
	"time"
)

// Config carries all engine tuning. Instances are treated as immutable
// after Build; the builder clones what it is given.
type Config struct {
	Redis      RedisConfig
	Enrollment EnrollmentConfig
	TOTP       TOTPConfig
	RateLimit  RateLimitConfig
	Features   FeatureConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig controls the transient-state backend.
//
// When StrictAvailability is true, any Redis failure surfaces as
// [ErrEnrollmentUnavailable]. When false, the verification attempt
// limiters fail open while Redis is unreachable, so code checks
// proceed unthrottled; challenge state and send throttling still
// require the backend.
type RedisConfig struct {
	KeyPrefix          string
	StrictAvailability bool
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig controls setup challenges and backup codes.
type EnrollmentConfig struct {
	CodeDigits        int
	CodeTTL           time.Duration
	TOTPSetupTTL      time.Duration
	WebAuthnSetupTTL  time.Duration
	MaxVerifyAttempts int

	// RetentionGrace keeps expired challenges in Redis past their logical
	// expiry so verification can report expiry deterministically instead
	// of degrading to "no setup in progress".
	RetentionGrace time.Duration

	AutoGenerateBackupCodes bool
	BackupCodeCount         int
	BackupCodeLength        int
	BackupCodeMaxAttempts   int
	BackupCodeCooldown      time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig carries the RFC 6238 parameters baked into provisioning URIs.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
	Skew      int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig throttles code sends and verification failures per
// (tenant, user, method).
type RateLimitConfig struct {
	MaxSendsPerWindow int
	SendWindow        time.Duration
	MaxVerifyFailures int
	VerifyCooldown    time.Duration
}

/*
====================================
FEATURES CONFIG
====================================
*/

// FeatureConfig switches individual methods on and off.
type FeatureConfig struct {
	TOTP     bool
	SMS      bool
	Email    bool
	WebAuthn bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the builder starts from:
// TOTP enabled, everything else off, conservative limits.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			KeyPrefix:          "mfk",
			StrictAvailability: true,
		},
		Enrollment: EnrollmentConfig{
			CodeDigits:        6,
			CodeTTL:           10 * time.Minute,
			TOTPSetupTTL:      15 * time.Minute,
			WebAuthnSetupTTL:  5 * time.Minute,
			MaxVerifyAttempts: 5,
			RetentionGrace:    5 * time.Minute,

			AutoGenerateBackupCodes: true,
			BackupCodeCount:         10,
			BackupCodeLength:        8,
			BackupCodeMaxAttempts:   5,
			BackupCodeCooldown:      10 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:    "",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		RateLimit: RateLimitConfig{
			MaxSendsPerWindow: 3,
			SendWindow:        15 * time.Minute,
			MaxVerifyFailures: 10,
			VerifyCooldown:    15 * time.Minute,
		},
		Features: FeatureConfig{
			TOTP:     true,
			SMS:      false,
			Email:    false,
			WebAuthn: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// no reference types beyond strings today; value copy is a deep copy
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks ranges and cross-field requirements. The builder calls
// it before constructing an engine.
func (c *Config) Validate() error {
	if c.Redis.KeyPrefix == "" {
		return errors.New("Redis KeyPrefix must not be empty")
	}
	if strings.ContainsAny(c.Redis.KeyPrefix, ": ") {
		return errors.New("Redis KeyPrefix must not contain ':' or spaces")
	}

	if c.Enrollment.CodeDigits < 6 || c.Enrollment.CodeDigits > 10 {
		return errors.New("Enrollment CodeDigits must be between 6 and 10")
	}
	if c.Enrollment.CodeTTL <= 0 {
		return errors.New("Enrollment CodeTTL must be > 0")
	}
	if c.Enrollment.CodeTTL > 15*time.Minute {
		return errors.New("Enrollment CodeTTL must be <= 15m")
	}
	if c.Enrollment.TOTPSetupTTL <= 0 {
		return errors.New("Enrollment TOTPSetupTTL must be > 0")
	}
	if c.Enrollment.WebAuthnSetupTTL <= 0 {
		return errors.New("Enrollment WebAuthnSetupTTL must be > 0")
	}
	if c.Enrollment.MaxVerifyAttempts <= 0 {
		return errors.New("Enrollment MaxVerifyAttempts must be > 0")
	}
	if c.Enrollment.MaxVerifyAttempts > 10 {
		return errors.New("Enrollment MaxVerifyAttempts must be <= 10")
	}
	if c.Enrollment.RetentionGrace < 0 {
		return errors.New("Enrollment RetentionGrace must be >= 0")
	}
	if c.Enrollment.BackupCodeCount <= 0 {
		return errors.New("Enrollment BackupCodeCount must be > 0")
	}
	if c.Enrollment.BackupCodeLength < 8 {
		return errors.New("Enrollment BackupCodeLength must be >= 8")
	}
	if c.Enrollment.BackupCodeMaxAttempts <= 0 {
		return errors.New("Enrollment BackupCodeMaxAttempts must be > 0")
	}
	if c.Enrollment.BackupCodeCooldown <= 0 {
		return errors.New("Enrollment BackupCodeCooldown must be > 0")
	}

	if c.Features.TOTP {
		if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
			return errors.New("TOTP Digits must be between 6 and 10")
		}
		if c.TOTP.Period <= 0 {
			return errors.New("TOTP Period must be > 0")
		}
		if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
			return errors.New("TOTP Skew must be between 0 and 2")
		}
		switch strings.ToUpper(c.TOTP.Algorithm) {
		case "", "SHA1", "SHA256", "SHA512":
		default:
			return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
		}
	}

	if c.RateLimit.MaxSendsPerWindow <= 0 {
		return errors.New("RateLimit MaxSendsPerWindow must be > 0")
	}
	if c.RateLimit.SendWindow <= 0 {
		return errors.New("RateLimit SendWindow must be > 0")
	}
	if c.RateLimit.MaxVerifyFailures <= 0 {
		return errors.New("RateLimit MaxVerifyFailures must be > 0")
	}
	if c.RateLimit.VerifyCooldown <= 0 {
		return errors.New("RateLimit VerifyCooldown must be > 0")
	}

	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}

func (c *Config) methodEnabled(method Method) bool {
	switch method {
	case MethodTOTP:
		return c.Features.TOTP
	case MethodSMS:
		return c.Features.SMS
	case MethodEmail:
		return c.Features.Email
	case MethodWebAuthn:
		return c.Features.WebAuthn
	default:
		return false
	}
}
