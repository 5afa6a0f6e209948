package common

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short stable digest of a secret value for log lines.
// Raw credential values never reach the logs.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:6])
}

// MaskValue keeps the first and last four characters of a secret
func MaskValue(value string) string {
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// MaskQuery masks every query parameter value of rawURL and drops the
// fragment. Parameter names and order are kept. An unparseable URL is
// reduced to an empty string.
func MaskQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if parsed.RawQuery == "" {
		return parsed.String()
	}

	params := strings.Split(parsed.RawQuery, "&")
	for i, param := range params {
		name, value, found := strings.Cut(param, "=")
		if !found {
			continue
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		params[i] = name + "=" + MaskValue(value)
	}
	parsed.RawQuery = strings.Join(params, "&")
	return parsed.String()
}
