package mfakit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/averix/mfakit/internal/limiters"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// deadAttemptLimiter returns a limiter whose backend is already gone,
// so every call reports limiters.ErrUnavailable.
func deadAttemptLimiter(t *testing.T, prefix string, max int, window time.Duration) *limiters.AttemptLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()
	return limiters.NewAttemptLimiter(client, prefix, max, window)
}

func enrollTestConfig() Config {
	cfg := defaultConfig()
	cfg.Features.TOTP = true
	cfg.Features.SMS = true
	cfg.Features.Email = true
	cfg.TOTP.Issuer = "mfakit-test"
	return cfg
}

type testProvider struct {
	mu          sync.Mutex
	users       map[string]UserRecord
	enrollments map[string]*EnrollmentRecord
	backupCodes map[string][]BackupCodeRecord

	enableErr  error
	disableErr error
}

func newTestProvider() *testProvider {
	p := &testProvider{
		users:       map[string]UserRecord{},
		enrollments: map[string]*EnrollmentRecord{},
		backupCodes: map[string][]BackupCodeRecord{},
	}
	p.users["u1"] = UserRecord{
		UserID:     "u1",
		Identifier: "alice@example.com",
		TenantID:   "t1",
		Status:     AccountActive,
		Email:      "alice@example.com",
		Phone:      "+15550001234",
	}
	return p
}

func (p *testProvider) GetUserByID(userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return UserRecord{}, errors.New("no such user")
	}
	return u, nil
}

func (p *testProvider) GetEnrollment(_ context.Context, userID string) (*EnrollmentRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.enrollments[userID]
	if !ok {
		return &EnrollmentRecord{}, nil
	}
	cp := *e
	cp.Methods = append([]Method(nil), e.Methods...)
	return &cp, nil
}

func (p *testProvider) EnableMethod(_ context.Context, userID string, method Method, enrollment MethodEnrollment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enableErr != nil {
		return p.enableErr
	}
	e, ok := p.enrollments[userID]
	if !ok {
		e = &EnrollmentRecord{}
		p.enrollments[userID] = e
	}
	found := false
	for _, m := range e.Methods {
		if m == method {
			found = true
			break
		}
	}
	if !found {
		e.Methods = append(e.Methods, method)
	}
	switch method {
	case MethodTOTP:
		e.TOTPSecret = enrollment.TOTPSecret
	case MethodSMS:
		e.Phone = enrollment.Phone
	case MethodEmail:
		e.Email = enrollment.Email
	}
	return nil
}

func (p *testProvider) DisableMethod(_ context.Context, userID string, method Method) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disableErr != nil {
		return p.disableErr
	}
	e, ok := p.enrollments[userID]
	if !ok {
		return nil
	}
	out := e.Methods[:0]
	for _, m := range e.Methods {
		if m != method {
			out = append(out, m)
		}
	}
	e.Methods = out
	return nil
}

func (p *testProvider) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BackupCodeRecord(nil), p.backupCodes[userID]...), nil
}

func (p *testProvider) ReplaceBackupCodes(_ context.Context, userID string, records []BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backupCodes[userID] = append([]BackupCodeRecord(nil), records...)
	e, ok := p.enrollments[userID]
	if !ok {
		e = &EnrollmentRecord{}
		p.enrollments[userID] = e
	}
	if len(records) > 0 {
		e.BackupCodesGeneratedAt = time.Now()
	} else {
		e.BackupCodesGeneratedAt = time.Time{}
	}
	return nil
}

func (p *testProvider) ConsumeBackupCode(_ context.Context, userID string, codeHash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := p.backupCodes[userID]
	for i, rec := range stored {
		if rec.Hash == codeHash {
			p.backupCodes[userID] = append(stored[:i], stored[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (p *testProvider) enrolled(userID string) []Method {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.enrollments[userID]
	if !ok {
		return nil
	}
	return append([]Method(nil), e.Methods...)
}

func (p *testProvider) totpSecret(userID string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.enrollments[userID]
	if !ok {
		return nil
	}
	return e.TOTPSecret
}

func (p *testProvider) backupCodeCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backupCodes[userID])
}

type recordingEmailSender struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (s *recordingEmailSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.sent = append(s.sent, to+"|"+subject+"|"+body)
	return nil
}

func (s *recordingEmailSender) lastBody() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	parts := strings.SplitN(s.sent[len(s.sent)-1], "|", 3)
	return parts[2]
}

type recordingSMSSender struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (s *recordingSMSSender) Send(_ context.Context, to, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.sent = append(s.sent, to+"|"+message)
	return nil
}

func (s *recordingSMSSender) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	parts := strings.SplitN(s.sent[len(s.sent)-1], "|", 2)
	return parts[1]
}

// otpFromText pulls the numeric one-time code out of a delivered message.
func otpFromText(t *testing.T, text string) string {
	t.Helper()
	var code strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			code.WriteRune(r)
			continue
		}
		if code.Len() >= 6 {
			break
		}
		code.Reset()
	}
	if code.Len() < 6 {
		t.Fatalf("no otp found in %q", text)
	}
	return code.String()[:6]
}

type testEngineOption func(*Builder)

func withWebAuthn(provider WebAuthnProvider) testEngineOption {
	return func(b *Builder) { b.WithWebAuthnProvider(provider) }
}

func newEnrollEngine(t *testing.T, cfg Config, provider *testProvider, opts ...testEngineOption) (*Engine, *recordingEmailSender, *recordingSMSSender) {
	t.Helper()

	email := &recordingEmailSender{}
	sms := &recordingSMSSender{}

	builder := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithUserProvider(provider).
		WithEmailSender(email).
		WithSMSSender(sms)
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build engine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, email, sms
}
