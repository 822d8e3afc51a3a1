package utils

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail keeps the first and last character of the local part.
// john.doe@example.com -> j******e@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := []rune(email[:at]), email[at:]

	fill := 4
	if len(local) > fill+2 {
		fill = len(local) - 2
	}
	return string(local[0]) + strings.Repeat("*", fill) + string(local[len(local)-1]) + domain
}

// MaskPhone keeps the first character and the last two digits.
// +15551234567 -> +*********67
func MaskPhone(phone string) string {
	n := utf8.RuneCountInString(phone)
	if n <= 3 {
		return "***"
	}
	r := []rune(phone)
	return string(r[0]) + strings.Repeat("*", n-3) + string(r[n-2:])
}

// MaskIdentifier masks an email or phone number for logging.
func MaskIdentifier(identifier string) string {
	switch {
	case identifier == "":
		return ""
	case strings.Contains(identifier, "@"):
		return MaskEmail(identifier)
	default:
		return MaskPhone(identifier)
	}
}
