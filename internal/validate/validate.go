// Package validate holds the pure identifier checks used by the registration
// form: Iranian national codes, mobile numbers and participant names.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	NationalCodeLength = 10
	MaxNameLength      = 50
)

var (
	mobileLocal   = regexp.MustCompile(`^09\d{9}$`)
	mobilePlus    = regexp.MustCompile(`^\+989\d{9}$`)
	mobileZeroes  = regexp.MustCompile(`^00989\d{9}$`)
	digitsToASCII = runes.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹': // extended arabic-indic (persian)
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩': // arabic-indic
			return '0' + (r - '٠')
		}
		return r
	})
)

// NormalizeDigits rewrites Persian and Arabic-Indic digits as ASCII digits
// and leaves every other rune untouched.
func NormalizeDigits(s string) string {
	out, _, err := transform.String(digitsToASCII, s)
	if err != nil {
		return s
	}
	return out
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizeNationalCode returns the 10 ASCII digits of a valid national code.
func NormalizeNationalCode(code string) (string, bool) {
	digits := onlyDigits(NormalizeDigits(code))
	if len(digits) != NationalCodeLength {
		return "", false
	}
	if strings.Count(digits, digits[:1]) == NationalCodeLength {
		return "", false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(digits[i]-'0') * (10 - i)
	}
	rem := sum % 11
	check := int(digits[9] - '0')
	if rem < 2 {
		if check != rem {
			return "", false
		}
	} else if check != 11-rem {
		return "", false
	}
	return digits, true
}

func ValidateNationalCode(code string) bool {
	_, ok := NormalizeNationalCode(code)
	return ok
}

func cleanPhone(phone string) string {
	phone = strings.TrimSpace(NormalizeDigits(phone))
	if strings.HasPrefix(phone, "+") {
		return "+" + onlyDigits(phone[1:])
	}
	return onlyDigits(phone)
}

// ValidatePhone accepts 09XXXXXXXXX, +989XXXXXXXXX and 00989XXXXXXXXX.
func ValidatePhone(phone string) bool {
	p := cleanPhone(phone)
	return mobileLocal.MatchString(p) || mobilePlus.MatchString(p) || mobileZeroes.MatchString(p)
}

// NormalizePhone converts any accepted form to the canonical 09XXXXXXXXX.
func NormalizePhone(phone string) (string, bool) {
	p := cleanPhone(phone)
	switch {
	case mobileLocal.MatchString(p):
		return p, true
	case mobilePlus.MatchString(p):
		return "0" + p[3:], true
	case mobileZeroes.MatchString(p):
		return "0" + p[4:], true
	}
	return "", false
}

// ValidateName trims s and accepts it when it is non-empty and at most
// MaxNameLength runes.
func ValidateName(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || utf8.RuneCountInString(s) > MaxNameLength {
		return "", false
	}
	return s, true
}
