package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNationalCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"checksum remainder >= 2", "0013542419", true},
		{"checksum remainder 1", "1234567891", true},
		{"checksum remainder 0", "1000000060", true},
		{"persian digits", "۰۰۱۳۵۴۲۴۱۹", true},
		{"arabic-indic digits", "٠٠١٣٥٤٢٤١٩", true},
		{"separators stripped", "001-354241-9", true},
		{"wrong check digit", "0013542418", false},
		{"all zeroes", "0000000000", false},
		{"monodigit passing checksum", "1111111111", false},
		{"too short", "001354241", false},
		{"too long", "00135424190", false},
		{"empty", "", false},
		{"letters", "abcdefghij", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateNationalCode(tt.in))
		})
	}
}

func TestNormalizeNationalCode(t *testing.T) {
	code, ok := NormalizeNationalCode(" ۰۰۱۳۵۴۲۴۱۹ ")
	require.True(t, ok)
	assert.Equal(t, "0013542419", code)

	_, ok = NormalizeNationalCode("0000000000")
	assert.False(t, ok)
}

func TestMonodigitCodesAlwaysRejected(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		assert.False(t, ValidateNationalCode(strings.Repeat(string(d), 10)), "digit %c", d)
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		canon string
	}{
		{"09123456789", true, "09123456789"},
		{"+989123456789", true, "09123456789"},
		{"00989123456789", true, "09123456789"},
		{"۰۹۱۲۳۴۵۶۷۸۹", true, "09123456789"},
		{"0912 345 6789", true, "09123456789"},
		{"+98 912-345-6789", true, "09123456789"},
		{"9123456789", false, ""},
		{"989123456789", false, ""},
		{"0812345678", false, ""},
		{"091234567890", false, ""},
		{"+1 555 123 4567", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidatePhone(tt.in))
			got, ok := NormalizePhone(tt.in)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.canon, got)
		})
	}
}

func TestNormalizePhoneIsCanonicalAcrossForms(t *testing.T) {
	for _, suffix := range []string{"123456789", "000000000", "987654321"} {
		local, ok1 := NormalizePhone("09" + suffix)
		plus, ok2 := NormalizePhone("+989" + suffix)
		zeroes, ok3 := NormalizePhone("00989" + suffix)
		require.True(t, ok1 && ok2 && ok3)
		assert.Equal(t, local, plus)
		assert.Equal(t, local, zeroes)
		assert.True(t, ValidatePhone(local))
	}
}

func TestValidateName(t *testing.T) {
	got, ok := ValidateName("  Sara   Ahmadi ")
	require.True(t, ok)
	assert.Equal(t, "Sara Ahmadi", got)

	_, ok = ValidateName("   \t ")
	assert.False(t, ok)

	_, ok = ValidateName(strings.Repeat("ن", MaxNameLength))
	assert.True(t, ok)
	_, ok = ValidateName(strings.Repeat("n", MaxNameLength+1))
	assert.False(t, ok)
}

func TestNormalizeDigitsLeavesOtherRunes(t *testing.T) {
	assert.Equal(t, "abc 123 ج", NormalizeDigits("abc ۱۲۳ ج"))
}
