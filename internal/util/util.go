package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ExportToken signs the CSV download link of one event.
func ExportToken(secret string, eventID int64) string {
	return HMACSHA256Hex(secret, "export:"+strconv.FormatInt(eventID, 10))
}

// CheckExportToken compares in constant time.
func CheckExportToken(secret string, eventID int64, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	want := ExportToken(secret, eventID)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(token)))
}

// ExportURL is the signed download link served by the side server.
func ExportURL(baseURL, secret string, eventID int64) string {
	q := url.Values{}
	q.Set("event_id", strconv.FormatInt(eventID, 10))
	q.Set("token", ExportToken(secret, eventID))
	return strings.TrimRight(baseURL, "/") + "/export/event.csv?" + q.Encode()
}

// EventLink is the t.me deep link that opens the bot with /start <code>.
func EventLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), url.QueryEscape(code))
}

// QRCodePNG encodes content as a 256px PNG.
func QRCodePNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}
	return png, nil
}

// FormatAmount groups thousands: 1500000 -> "1,500,000".
func FormatAmount(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
