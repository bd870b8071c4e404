package mfakit

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeKeySegment      = "chal"
	challengeRecordVersionV1 = 1
	challengeMaxRetries      = 4
)

var (
	errChallengeNotFound         = errors.New("setup challenge not found")
	errChallengeExpired          = errors.New("setup challenge expired")
	errChallengeMismatch         = errors.New("setup challenge mismatch")
	errChallengeAttemptsExceeded = errors.New("setup challenge attempts exceeded")
	errChallengeRedisUnavailable = errors.New("setup challenge redis unavailable")
)

// setupChallenge is the transient state of one PENDING enrollment.
// CodeHash is set for sms/email, Secret for totp (pending secret) and
// webauthn (ceremony session data). Target is the unmasked delivery
// address for sms/email and the registration ID for webauthn.
type setupChallenge struct {
	Method    Method
	CodeHash  [32]byte
	Secret    []byte
	Target    string
	ExpiresAt int64
	Attempts  uint16
}

func (c *setupChallenge) expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// challengeStore keeps pending setup challenges in Redis, keyed by
// (tenant, user, method). Records outlive their logical expiry by a
// grace period so verification after expiry reports ErrCodeExpired
// instead of ErrNoSetupInProgress; ExpiresAt inside the record is
// authoritative, the Redis TTL only garbage-collects.
type challengeStore struct {
	redis  *redis.Client
	prefix string
	grace  time.Duration
}

func newChallengeStore(redisClient *redis.Client, keyPrefix string, grace time.Duration) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: keyPrefix + ":" + challengeKeySegment,
		grace:  grace,
	}
}

func (s *challengeStore) key(tenantID, userID string, method Method) string {
	return s.prefix + ":" + tenantID + ":" + userID + ":" + string(method)
}

// Save overwrites any existing challenge for the (user, method) pair:
// restarting setup is last-write-wins.
func (s *challengeStore) Save(ctx context.Context, tenantID, userID string, challenge *setupChallenge) error {
	encoded, err := encodeSetupChallenge(challenge)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(challenge.ExpiresAt, 0)) + s.grace
	if ttl <= 0 {
		return errChallengeExpired
	}

	if err := s.redis.Set(ctx, s.key(tenantID, userID, challenge.Method), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Peek loads without consuming. Expired-but-retained records are
// returned with errChallengeExpired so the caller can distinguish
// expiry from absence.
func (s *challengeStore) Peek(ctx context.Context, tenantID, userID string, method Method) (*setupChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, userID, method)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	challenge, err := decodeSetupChallenge(data)
	if err != nil {
		return nil, err
	}
	if challenge.expired(time.Now()) {
		return challenge, errChallengeExpired
	}
	return challenge, nil
}

// ConsumeCode atomically compares providedHash against the stored code
// hash and deletes the challenge on match. Mismatches increment the
// attempt counter in the same transaction; hitting maxAttempts destroys
// the challenge. Only one of several racing matches can win.
func (s *challengeStore) ConsumeCode(
	ctx context.Context,
	tenantID, userID string,
	method Method,
	providedHash [32]byte,
	maxAttempts int,
) (*setupChallenge, error) {
	key := s.key(tenantID, userID, method)

	for i := 0; i < challengeMaxRetries; i++ {
		var matched *setupChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			challenge, err := decodeSetupChallenge(data)
			if err != nil {
				return err
			}

			if challenge.expired(time.Now()) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			if subtle.ConstantTimeCompare(challenge.CodeHash[:], providedHash[:]) != 1 {
				challenge.Attempts++
				if int(challenge.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(challenge.ExpiresAt, 0)) + s.grace
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeExpired
				}

				updated, err := encodeSetupChallenge(challenge)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = challenge
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errChallengeNotFound
			case errors.Is(err, errChallengeExpired),
				errors.Is(err, errChallengeMismatch),
				errors.Is(err, errChallengeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

// ConsumeSecret atomically deletes the challenge if its stored secret
// still equals expectedSecret. Used to promote a pending TOTP secret or
// WebAuthn session exactly once: the loser of a race sees a mismatch.
func (s *challengeStore) ConsumeSecret(
	ctx context.Context,
	tenantID, userID string,
	method Method,
	expectedSecret []byte,
) (*setupChallenge, error) {
	key := s.key(tenantID, userID, method)

	for i := 0; i < challengeMaxRetries; i++ {
		var matched *setupChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			challenge, err := decodeSetupChallenge(data)
			if err != nil {
				return err
			}

			if challenge.expired(time.Now()) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			if len(challenge.Secret) != len(expectedSecret) ||
				subtle.ConstantTimeCompare(challenge.Secret, expectedSecret) != 1 {
				return errChallengeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = challenge
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errChallengeNotFound
			case errors.Is(err, errChallengeExpired), errors.Is(err, errChallengeMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

// RecordFailure increments the attempt counter for challenges whose
// code is not hash-compared in Redis (TOTP). Hitting maxAttempts
// destroys the challenge and returns errChallengeAttemptsExceeded.
func (s *challengeStore) RecordFailure(
	ctx context.Context,
	tenantID, userID string,
	method Method,
	maxAttempts int,
) error {
	key := s.key(tenantID, userID, method)

	for i := 0; i < challengeMaxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			challenge, err := decodeSetupChallenge(data)
			if err != nil {
				return err
			}

			if challenge.expired(time.Now()) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			challenge.Attempts++
			if int(challenge.Attempts) >= maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeAttemptsExceeded
			}

			ttl := time.Until(time.Unix(challenge.ExpiresAt, 0)) + s.grace
			updated, err := encodeSetupChallenge(challenge)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return errChallengeNotFound
			case errors.Is(err, errChallengeExpired), errors.Is(err, errChallengeAttemptsExceeded):
				return err
			default:
				return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return nil
	}

	return errChallengeNotFound
}

func (s *challengeStore) Delete(ctx context.Context, tenantID, userID string, method Method) error {
	if err := s.redis.Del(ctx, s.key(tenantID, userID, method)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

var methodCodes = map[Method]byte{
	MethodTOTP:     1,
	MethodSMS:      2,
	MethodEmail:    3,
	MethodWebAuthn: 4,
}

func methodFromCode(code byte) (Method, bool) {
	for m, c := range methodCodes {
		if c == code {
			return m, true
		}
	}
	return "", false
}

func encodeSetupChallenge(challenge *setupChallenge) ([]byte, error) {
	methodCode, ok := methodCodes[challenge.Method]
	if !ok {
		return nil, errors.New("unencodable challenge method")
	}

	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(methodCode)

	if err := binary.Write(&buf, binary.BigEndian, challenge.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, challenge.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(challenge.CodeHash[:])

	if len(challenge.Secret) > 65535 {
		return nil, errors.New("challenge secret too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(challenge.Secret))); err != nil {
		return nil, err
	}
	buf.Write(challenge.Secret)

	if len(challenge.Target) > 65535 {
		return nil, errors.New("challenge target too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(challenge.Target))); err != nil {
		return nil, err
	}
	buf.WriteString(challenge.Target)

	return buf.Bytes(), nil
}

func decodeSetupChallenge(data []byte) (*setupChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	methodCode, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	method, ok := methodFromCode(methodCode)
	if !ok {
		return nil, errors.New("invalid challenge method code")
	}

	challenge := &setupChallenge{Method: method}

	if err := binary.Read(reader, binary.BigEndian, &challenge.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &challenge.ExpiresAt); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, challenge.CodeHash[:]); err != nil {
		return nil, err
	}

	var secretLen uint16
	if err := binary.Read(reader, binary.BigEndian, &secretLen); err != nil {
		return nil, err
	}
	if secretLen > 0 {
		challenge.Secret = make([]byte, secretLen)
		if _, err := io.ReadFull(reader, challenge.Secret); err != nil {
			return nil, err
		}
	}

	var targetLen uint16
	if err := binary.Read(reader, binary.BigEndian, &targetLen); err != nil {
		return nil, err
	}
	if targetLen > 0 {
		target := make([]byte, targetLen)
		if _, err := io.ReadFull(reader, target); err != nil {
			return nil, err
		}
		challenge.Target = string(target)
	}

	return challenge, nil
}
