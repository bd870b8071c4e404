// Package codes generates and hashes one-time codes and backup codes.
package codes

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// BackupCodeAlphabet excludes characters that are easy to misread
// (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOTP returns a numeric one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashOTP derives the at-rest hash for a one-time code. The user ID acts
// as a salt so identical codes hash differently across users.
func HashOTP(userID, code string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(code))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, code...)
	return sha256.Sum256(data)
}

// NewBackupCode returns an unformatted backup code of the given length.
// randomIndex may be injected for tests; nil selects crypto/rand.
func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

// FormatBackupCode inserts the display dash: ABCDEFGH -> ABCD-EFGH.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips formatting so user input matches the
// stored hash regardless of case, dashes, or spaces.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash derives the at-rest hash for a canonicalized backup
// code, salted with the user ID.
func BackupCodeHash(userID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonicalCode))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
