package mfakit

import "strings"

// maskEmail keeps the first character of the local part and the full
// domain: jane@example.com -> j***@example.com.
func maskEmail(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return "***"
	}
	return address[:1] + "***" + address[at:]
}

// maskPhone keeps the leading plus sign and the last four digits.
func maskPhone(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return "***"
	}

	prefix := ""
	digits := trimmed
	if strings.HasPrefix(digits, "+") {
		prefix = "+"
		digits = digits[1:]
	}
	if len(digits) <= 4 {
		return prefix + "***"
	}
	return prefix + strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func maskTarget(method Method, target string) string {
	switch method {
	case MethodEmail:
		return maskEmail(target)
	case MethodSMS:
		return maskPhone(target)
	default:
		return target
	}
}
