package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSHA256Hex(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		HMACSHA256Hex("Jefe", "what do ya want for nothing?"))
}

func TestExportToken(t *testing.T) {
	tok := ExportToken("s3cret", 7)
	assert.True(t, CheckExportToken("s3cret", 7, tok))
	assert.False(t, CheckExportToken("s3cret", 8, tok))
	assert.False(t, CheckExportToken("other", 7, tok))
	assert.False(t, CheckExportToken("", 7, ExportToken("", 7)))
	assert.False(t, CheckExportToken("s3cret", 7, ""))

	assert.Equal(t, "https://bot.example.com/export/event.csv?event_id=7&token="+tok,
		ExportURL("https://bot.example.com/", "s3cret", 7))
}

func TestEventLink(t *testing.T) {
	assert.Equal(t, "https://t.me/cup_bot?start=ab12", EventLink("@cup_bot", "ab12"))
}

func TestQRCodePNG(t *testing.T) {
	png, err := QRCodePNG("https://t.me/cup_bot?start=ab12")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1500000:  "1,500,000",
		-250000:  "-250,000",
		12345678: "12,345,678",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatAmount(in))
	}
}
