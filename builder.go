package mfakit

import (
	"errors"

	"github.com/averix/mfakit/internal/limiters"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A builder is single-use: Build may be
// called once.
type Builder struct {
	config Config
	redis  *redis.Client

	userProvider UserProvider
	email        EmailSender
	sms          SMSSender
	webauthn     WebAuthnProvider
	auditSink    AuditSink

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithEmailSender wires the email delivery collaborator. Required when
// the email method is enabled.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithSMSSender wires the SMS delivery collaborator. Required when the
// sms method is enabled.
func (b *Builder) WithSMSSender(sender SMSSender) *Builder {
	b.sms = sender
	return b
}

// WithWebAuthnProvider wires the WebAuthn ceremony collaborator.
// Required when the webauthn method is enabled.
func (b *Builder) WithWebAuthnProvider(provider WebAuthnProvider) *Builder {
	b.webauthn = provider
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the wiring and configuration, then constructs the
// engine and starts its audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if cfg.Features.Email && b.email == nil {
		return nil, errors.New("email feature requires an email sender")
	}
	if cfg.Features.SMS && b.sms == nil {
		return nil, errors.New("sms feature requires an sms sender")
	}
	if cfg.Features.WebAuthn && b.webauthn == nil {
		return nil, errors.New("webauthn feature requires a webauthn provider")
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		email:        b.email,
		sms:          b.sms,
		webauthn:     b.webauthn,
	}

	engine.challenges = newChallengeStore(b.redis, cfg.Redis.KeyPrefix, cfg.Enrollment.RetentionGrace)
	engine.sendLimiter = limiters.NewSendLimiter(
		b.redis,
		cfg.Redis.KeyPrefix+":send",
		cfg.RateLimit.MaxSendsPerWindow,
		cfg.RateLimit.SendWindow,
	)
	engine.verifyLimiter = limiters.NewAttemptLimiter(
		b.redis,
		cfg.Redis.KeyPrefix+":vfy",
		cfg.RateLimit.MaxVerifyFailures,
		cfg.RateLimit.VerifyCooldown,
	)
	engine.backupLimiter = limiters.NewAttemptLimiter(
		b.redis,
		cfg.Redis.KeyPrefix+":bkp",
		cfg.Enrollment.BackupCodeMaxAttempts,
		cfg.Enrollment.BackupCodeCooldown,
	)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	b.built = true

	return engine, nil
}
