// Package otp holds code generation and phone helpers shared by the OTP engine and transports.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var (
	// ErrInvalidPhone is returned by NormalizePhone for input that is not a phone number.
	ErrInvalidPhone = errors.New("invalid phone number")

	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// GenerateCode returns a 6-digit code drawn uniformly from 100000-999999 using crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(codeMin)).String(), nil
}

// NormalizePhone strips formatting characters and validates the result: an optional
// leading + followed by 8 to 15 digits.
func NormalizePhone(raw string) (string, error) {
	p := phoneNoise.Replace(strings.TrimSpace(raw))
	if !phonePattern.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}

// ValidCode reports whether code has the shape of an issued code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// MaskPhone hides all but the last four digits, for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
