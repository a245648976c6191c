package cardnum

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"
)

const panLen = 16

// Normalize strips spaces, tabs and dashes, returning the bare digit string.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Validate checks length, digits and the Luhn check digit. Lengths 13-19 are
// accepted; generation always produces 16.
func Validate(pan string) error {
	if pan == "" {
		return fmt.Errorf("card number is required")
	}
	if !IsDigits(pan) {
		return fmt.Errorf("card number must contain digits only")
	}
	if l := len(pan); l < 13 || l > 19 {
		return fmt.Errorf("card number length must be 13..19 digits (got %d)", l)
	}

	body := pan[:len(pan)-1]
	if pan[len(pan)-1] != luhnCheckDigit(body) {
		return fmt.Errorf("invalid luhn check digit")
	}
	return nil
}

func ValidateBIN(bin string) error {
	if bin == "" {
		return fmt.Errorf("bin is required")
	}
	if !IsDigits(bin) {
		return fmt.Errorf("bin must contain digits only")
	}
	switch len(bin) {
	case 6, 8, 9:
		return nil
	default:
		return fmt.Errorf("bin must be 6, 8, or 9 digits")
	}
}

// Generate produces a 16-digit Luhn-valid card number under the given BIN.
func Generate(bin string) (string, error) {
	if err := ValidateBIN(bin); err != nil {
		return "", err
	}

	fill := panLen - 1 - len(bin)
	if fill <= 0 {
		return "", fmt.Errorf("bin too long: %s", bin)
	}

	digits, err := randomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}

	body := bin + digits
	return body + string(luhnCheckDigit(body)), nil
}

// randomDigits draws uniformly distributed digits from crypto/rand using
// rejection sampling: only bytes below 250 are accepted before mod 10.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - (256 % 10)
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if buf[i] < threshold {
				sb.WriteByte('0' + (buf[i] % 10))
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) byte {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return '0' + byte((10-(sum%10))%10)
}

// Mask keeps the first 4 and last 4 digits visible and replaces the middle
// with four asterisks: 4532015112830366 → 4532****0366. Inputs too short to
// mask safely collapse to "****".
func Mask(pan string) string {
	cleaned := Normalize(pan)
	if len(cleaned) < 8 {
		return "****"
	}
	return cleaned[:4] + "****" + cleaned[len(cleaned)-4:]
}

// HashHMAC computes HMAC-SHA256 over a normalized card number with a secret
// pepper. Callers must not log the input.
func HashHMAC(pan string, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(pan))
	return h.Sum(nil)
}
