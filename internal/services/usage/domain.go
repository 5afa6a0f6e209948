package usage

import (
	"net"
	"net/url"
	"strings"
)

// multiPartTLDs are public suffixes that need three labels to name a site
var multiPartTLDs = map[string]bool{
	"co.uk": true, "org.uk": true, "ac.uk": true, "gov.uk": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.nz": true, "co.jp": true, "co.id": true, "co.in": true, "co.za": true, "co.kr": true,
	"com.br": true, "com.sg": true, "com.my": true, "com.cn": true, "com.hk": true, "com.tw": true, "com.mx": true,
}

// RootDomain reduces a hostname to the domain a page usage bucket is keyed by.
// localhost and IP literals are returned unchanged.
func RootDomain(hostname string) string {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return host
	}

	labels := strings.Split(host, ".")
	n := len(labels)
	if n <= 2 {
		return host
	}

	lastTwo := strings.Join(labels[n-2:], ".")
	if multiPartTLDs[lastTwo] {
		return strings.Join(labels[n-3:], ".")
	}
	return lastTwo
}

// PageDomain derives the bucket key from a page URL
func PageDomain(pageURL string) (string, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Hostname() == "" {
		return "", false
	}
	return RootDomain(parsed.Hostname()), true
}
