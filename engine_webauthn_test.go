package mfakit

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type stubWebAuthn struct {
	beginErr  error
	finishErr error

	options []byte
	session []byte

	finishCalls int
}

func (s *stubWebAuthn) BeginRegistration(_ context.Context, _ UserRecord) ([]byte, []byte, error) {
	if s.beginErr != nil {
		return nil, nil, s.beginErr
	}
	options := s.options
	if options == nil {
		options = []byte(`{"publicKey":{}}`)
	}
	session := s.session
	if session == nil {
		session = []byte(`{"challenge":"abc"}`)
	}
	return options, session, nil
}

func (s *stubWebAuthn) FinishRegistration(_ context.Context, _ UserRecord, sessionData, attestation []byte) (string, error) {
	s.finishCalls++
	if s.finishErr != nil {
		return "", s.finishErr
	}
	if len(sessionData) == 0 || len(attestation) == 0 {
		return "", errors.New("missing ceremony data")
	}
	return "cred-1", nil
}

func webauthnTestConfig() Config {
	cfg := enrollTestConfig()
	cfg.Features.WebAuthn = true
	return cfg
}

func TestWebAuthnRegistrationRoundTrip(t *testing.T) {
	provider := newTestProvider()
	stub := &stubWebAuthn{}
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), provider, withWebAuthn(stub))

	ctx := context.Background()
	reg, err := engine.StartWebAuthnRegistration(ctx, "u1")
	if err != nil {
		t.Fatalf("StartWebAuthnRegistration failed: %v", err)
	}
	if reg.RegistrationID == "" {
		t.Fatal("expected registration id")
	}
	if !bytes.Contains(reg.CredentialOptions, []byte("publicKey")) {
		t.Fatalf("expected pass-through options, got %s", reg.CredentialOptions)
	}

	result, err := engine.FinishWebAuthnRegistration(ctx, "u1", reg.RegistrationID, []byte(`{"attestation":"ok"}`))
	if err != nil {
		t.Fatalf("FinishWebAuthnRegistration failed: %v", err)
	}
	if result.Method != MethodWebAuthn {
		t.Fatalf("expected webauthn result, got %v", result.Method)
	}

	methods := provider.enrolled("u1")
	if len(methods) != 1 || methods[0] != MethodWebAuthn {
		t.Fatalf("expected webauthn enabled, got %v", methods)
	}
	if len(result.BackupCodes) == 0 {
		t.Fatal("first method should come with backup codes")
	}
}

func TestWebAuthnFinishRejectsWrongRegistrationID(t *testing.T) {
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), newTestProvider(), withWebAuthn(&stubWebAuthn{}))

	ctx := context.Background()
	if _, err := engine.StartWebAuthnRegistration(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.FinishWebAuthnRegistration(ctx, "u1", "not-the-id", []byte("att")); !errors.Is(err, ErrNoSetupInProgress) {
		t.Fatalf("expected ErrNoSetupInProgress, got %v", err)
	}
}

func TestWebAuthnFinishWithoutCeremony(t *testing.T) {
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), newTestProvider(), withWebAuthn(&stubWebAuthn{}))

	if _, err := engine.FinishWebAuthnRegistration(context.Background(), "u1", "reg-1", []byte("att")); !errors.Is(err, ErrNoSetupInProgress) {
		t.Fatalf("expected ErrNoSetupInProgress, got %v", err)
	}
}

func TestWebAuthnFinishSurfacesProviderFailure(t *testing.T) {
	stub := &stubWebAuthn{finishErr: errors.New("bad attestation")}
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), newTestProvider(), withWebAuthn(stub))

	ctx := context.Background()
	reg, err := engine.StartWebAuthnRegistration(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.FinishWebAuthnRegistration(ctx, "u1", reg.RegistrationID, []byte("att")); !errors.Is(err, ErrWebAuthnFailed) {
		t.Fatalf("expected ErrWebAuthnFailed, got %v", err)
	}

	// a failed ceremony can be retried while the challenge lives
	stub.finishErr = nil
	if _, err := engine.FinishWebAuthnRegistration(ctx, "u1", reg.RegistrationID, []byte("att")); err != nil {
		t.Fatalf("retry after failure should work: %v", err)
	}
}

func TestWebAuthnFinishCannotReplay(t *testing.T) {
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), newTestProvider(), withWebAuthn(&stubWebAuthn{}))

	ctx := context.Background()
	reg, err := engine.StartWebAuthnRegistration(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.FinishWebAuthnRegistration(ctx, "u1", reg.RegistrationID, []byte("att")); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.FinishWebAuthnRegistration(ctx, "u1", reg.RegistrationID, []byte("att")); !errors.Is(err, ErrNoSetupInProgress) {
		t.Fatalf("expected replay rejected, got %v", err)
	}
}

func TestWebAuthnFeatureGate(t *testing.T) {
	engine, _, _ := newEnrollEngine(t, enrollTestConfig(), newTestProvider())

	if _, err := engine.StartWebAuthnRegistration(context.Background(), "u1"); !errors.Is(err, ErrMethodFeatureDisabled) {
		t.Fatalf("expected ErrMethodFeatureDisabled, got %v", err)
	}
}

func TestWebAuthnBeginFailure(t *testing.T) {
	stub := &stubWebAuthn{beginErr: errors.New("rp misconfigured")}
	engine, _, _ := newEnrollEngine(t, webauthnTestConfig(), newTestProvider(), withWebAuthn(stub))

	if _, err := engine.StartWebAuthnRegistration(context.Background(), "u1"); !errors.Is(err, ErrWebAuthnFailed) {
		t.Fatalf("expected ErrWebAuthnFailed, got %v", err)
	}
}

func TestEnrollmentOverview(t *testing.T) {
	cfg := enrollTestConfig()
	provider := newTestProvider()
	engine, _, _ := newEnrollEngine(t, cfg, provider)
	codes := enableTOTPForTest(t, engine, cfg)

	ctx := context.Background()
	if err := engine.VerifyBackupCode(ctx, "u1", codes[0]); err != nil {
		t.Fatal(err)
	}

	overview, err := engine.EnrollmentOverview(ctx, "u1")
	if err != nil {
		t.Fatalf("EnrollmentOverview failed: %v", err)
	}
	if len(overview.Methods) != 1 || overview.Methods[0] != MethodTOTP {
		t.Fatalf("expected [totp], got %v", overview.Methods)
	}
	if overview.BackupCodes.Remaining != cfg.Enrollment.BackupCodeCount-1 {
		t.Fatalf("expected %d remaining, got %d", cfg.Enrollment.BackupCodeCount-1, overview.BackupCodes.Remaining)
	}
	if overview.BackupCodes.GeneratedAt.IsZero() {
		t.Fatal("expected generation timestamp")
	}
}
