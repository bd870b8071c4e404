// Package mfakit is an embeddable multi-factor enrollment engine for
// multi-tenant applications.
//
// The engine owns the setup and verification lifecycle for TOTP, SMS,
// email and WebAuthn second factors, plus single-use backup codes. It
// keeps no durable user state of its own: enabled methods, TOTP secrets,
// contact bindings and hashed backup codes live behind the caller's
// [UserProvider], while all transient state (pending setup challenges,
// attempt counters, rate-limit windows) lives in Redis and expires on
// its own.
//
// Construct an [Engine] with the fluent builder:
//
//	engine, err := mfakit.New().
//		WithRedis(redisClient).
//		WithUserProvider(provider).
//		WithEmailSender(email).
//		WithSMSSender(sms).
//		Build()
//
// Per-request tenant and client IP travel on the context via
// [WithTenantID] and [WithClientIP].
package mfakit
