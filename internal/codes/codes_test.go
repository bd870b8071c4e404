package codes

import (
	"strings"
	"testing"
)

func TestNewOTPLengthAndCharset(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(otp) != digits {
			t.Fatalf("expected %d digits, got %q", digits, otp)
		}
		for _, r := range otp {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in otp: %q", otp)
			}
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("NewOTP(%d) should fail", digits)
		}
	}
}

func TestHashOTPIsUserSalted(t *testing.T) {
	a := HashOTP("u1", "123456")
	b := HashOTP("u2", "123456")
	if a == b {
		t.Fatal("same code for different users must hash differently")
	}
	if a != HashOTP("u1", "123456") {
		t.Fatal("hash must be deterministic")
	}
}

func TestHashOTPSeparatorPreventsAmbiguity(t *testing.T) {
	// without a separator, ("u1","2123456") and ("u12","123456") would collide
	if HashOTP("u1", "2123456") == HashOTP("u12", "123456") {
		t.Fatal("user/code boundary must be unambiguous")
	}
}

func TestNewBackupCodeUsesAlphabet(t *testing.T) {
	code, err := NewBackupCode(8, nil)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 chars, got %q", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			t.Fatalf("character %q outside alphabet", r)
		}
	}
}

func TestNewBackupCodeDeterministicWithInjectedRandom(t *testing.T) {
	next := 0
	sequential := func(max int) (int, error) {
		n := next % max
		next++
		return n, nil
	}
	code, err := NewBackupCode(8, sequential)
	if err != nil {
		t.Fatal(err)
	}
	if code != BackupCodeAlphabet[:8] {
		t.Fatalf("expected %q, got %q", BackupCodeAlphabet[:8], code)
	}
}

func TestFormatBackupCode(t *testing.T) {
	if got := FormatBackupCode("ABCDEFGH"); got != "ABCD-EFGH" {
		t.Fatalf("expected ABCD-EFGH, got %q", got)
	}
	if got := FormatBackupCode("ABCDEFGHJK"); got != "ABCDE-FGHJK" {
		t.Fatalf("expected ABCDE-FGHJK, got %q", got)
	}
	// too short to split, passes through
	if got := FormatBackupCode("ABC"); got != "ABC" {
		t.Fatalf("expected ABC, got %q", got)
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ABCD-EFGH", "ABCDEFGH"},
		{"abcd-efgh", "ABCDEFGH"},
		{" ab cd ef gh ", "ABCDEFGH"},
		{"ABCDEFGH", "ABCDEFGH"},
	}
	for _, tc := range cases {
		if got := CanonicalizeBackupCode(tc.in); got != tc.want {
			t.Fatalf("CanonicalizeBackupCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBackupCodeHashRoundTrip(t *testing.T) {
	code, err := NewBackupCode(8, nil)
	if err != nil {
		t.Fatal(err)
	}

	stored := BackupCodeHash("u1", code)
	presented := BackupCodeHash("u1", CanonicalizeBackupCode(FormatBackupCode(code)))
	if stored != presented {
		t.Fatal("formatted then canonicalized code must hash identically")
	}

	if stored == BackupCodeHash("u2", code) {
		t.Fatal("hash must be user-salted")
	}
}
