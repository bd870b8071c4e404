package mfakit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/averix/mfakit/internal/codes"
	"github.com/averix/mfakit/internal/limiters"
	qrcode "github.com/skip2/go-qrcode"
)

const qrCodePixels = 256

// StartSetup begins enrollment of a second factor and moves the
// (user, method) pair into the pending state.
//
// For TOTP the result carries the generated secret, the otpauth:// URI
// and a QR code PNG; nothing is sent anywhere. For SMS and email a
// one-time code is delivered to the target first and the pending
// challenge is persisted only after the send succeeds, so a delivery
// failure leaves no state behind. Restarting setup replaces any pending
// challenge for the same method.
//
// WebAuthn enrollment goes through [Engine.StartWebAuthnRegistration].
func (e *Engine) StartSetup(ctx context.Context, req StartSetupRequest) (*StartSetupResult, error) {
	if !supportedMethod(req.Method) {
		return nil, ErrUnsupportedMethod
	}
	if req.Method == MethodWebAuthn {
		return nil, ErrInvalidRequest
	}
	if !e.config.methodEnabled(req.Method) {
		return nil, ErrMethodFeatureDisabled
	}
	if e.userProvider == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.requireUser(req.UserID)
	if err != nil {
		return nil, err
	}
	tenant := user.TenantID
	if tenant == "" {
		tenant = tenantIDFromContext(ctx)
	}

	enrollment, err := e.userProvider.GetEnrollment(ctx, req.UserID)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	if enrollmentHas(enrollment, req.Method) {
		if !(req.Method == MethodTOTP && req.Rotate) {
			e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, req.Method, ErrMethodAlreadyEnabled, nil)
			return nil, ErrMethodAlreadyEnabled
		}
	}

	switch req.Method {
	case MethodTOTP:
		return e.startTOTPSetup(ctx, user, tenant)
	case MethodSMS, MethodEmail:
		return e.startCodeSetup(ctx, user, tenant, enrollment, req)
	default:
		return nil, ErrUnsupportedMethod
	}
}

func (e *Engine) startTOTPSetup(ctx context.Context, user UserRecord, tenant string) (*StartSetupResult, error) {
	if e.totp == nil {
		return nil, ErrEngineNotReady
	}

	secretRaw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	expiresAt := time.Now().Add(e.config.Enrollment.TOTPSetupTTL)
	challenge := &setupChallenge{
		Method:    MethodTOTP,
		Secret:    secretRaw,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.challenges.Save(ctx, tenant, user.UserID, challenge); err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	account := user.Identifier
	if account == "" {
		account = user.UserID
	}
	uri := e.totp.ProvisionURI(secretBase32, account)

	// QR rendering failure is not worth aborting setup over; the URI and
	// secret are still usable for manual entry.
	png, err := qrcode.Encode(uri, qrcode.Medium, qrCodePixels)
	if err != nil {
		png = nil
	}

	e.metricInc(MetricSetupStarted)
	e.emitAudit(ctx, auditEventSetupStarted, true, user.UserID, tenant, MethodTOTP, nil, nil)

	return &StartSetupResult{
		Method:       MethodTOTP,
		SecretBase32: secretBase32,
		OTPAuthURI:   uri,
		QRCodePNG:    png,
		ExpiresAt:    expiresAt,
	}, nil
}

func (e *Engine) startCodeSetup(
	ctx context.Context,
	user UserRecord,
	tenant string,
	enrollment *EnrollmentRecord,
	req StartSetupRequest,
) (*StartSetupResult, error) {
	target := e.resolveTarget(user, enrollment, req)
	if target == "" {
		e.emitAudit(ctx, auditEventSetupFailed, false, user.UserID, tenant, req.Method, ErrContactMissing, nil)
		return nil, ErrContactMissing
	}

	if err := e.sendLimiter.Allow(ctx, tenant, limiterSubject(user.UserID, req.Method)); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.emitRateLimit(ctx, "setup_send", user.UserID, req.Method)
			return nil, ErrSetupRateLimited
		}
		return nil, ErrEnrollmentUnavailable
	}

	otp, err := codes.NewOTP(e.config.Enrollment.CodeDigits)
	if err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	expiresAt := time.Now().Add(e.config.Enrollment.CodeTTL)
	if err := e.deliverCode(ctx, req.Method, target, otp, expiresAt); err != nil {
		e.metricInc(MetricSetupDeliveryFailed)
		e.emitAudit(ctx, auditEventSetupDeliveryFailed, false, user.UserID, tenant, req.Method, ErrDeliveryFailed, func() map[string]string {
			return map[string]string{
				"target": maskTarget(req.Method, target),
			}
		})
		return nil, ErrDeliveryFailed
	}

	challenge := &setupChallenge{
		Method:    req.Method,
		CodeHash:  codes.HashOTP(user.UserID, otp),
		Target:    target,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.challenges.Save(ctx, tenant, user.UserID, challenge); err != nil {
		return nil, ErrEnrollmentUnavailable
	}

	e.metricInc(MetricSetupStarted)
	e.emitAudit(ctx, auditEventSetupStarted, true, user.UserID, tenant, req.Method, nil, func() map[string]string {
		return map[string]string{
			"target": maskTarget(req.Method, target),
		}
	})

	return &StartSetupResult{
		Method:    req.Method,
		Target:    maskTarget(req.Method, target),
		ExpiresAt: expiresAt,
	}, nil
}

// resolveTarget prefers the request override, then the enrollment
// record, then the account record.
func (e *Engine) resolveTarget(user UserRecord, enrollment *EnrollmentRecord, req StartSetupRequest) string {
	switch req.Method {
	case MethodSMS:
		if req.Phone != "" {
			return req.Phone
		}
		if enrollment != nil && enrollment.Phone != "" {
			return enrollment.Phone
		}
		return user.Phone
	case MethodEmail:
		if req.Email != "" {
			return req.Email
		}
		if enrollment != nil && enrollment.Email != "" {
			return enrollment.Email
		}
		return user.Email
	default:
		return ""
	}
}

func (e *Engine) deliverCode(ctx context.Context, method Method, target, otp string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	switch method {
	case MethodSMS:
		if e.sms == nil {
			return ErrEngineNotReady
		}
		message := fmt.Sprintf("%s is your verification code. It expires in %d minutes.", otp, minutes)
		return e.sms.Send(ctx, target, message)
	case MethodEmail:
		if e.email == nil {
			return ErrEngineNotReady
		}
		subject := "Your verification code"
		body := fmt.Sprintf("Your verification code is: %s\n\nThis code will expire in %d minutes.", otp, minutes)
		return e.email.Send(ctx, target, subject, body)
	default:
		return ErrUnsupportedMethod
	}
}
