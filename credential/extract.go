// Package credential pulls raw session values out of request headers.
//
// Nothing in here touches the network or disk and nothing returns an error:
// a missing or malformed header is reported as an absent value and callers
// decide what rejection means for them.
package credential

import (
	"net/url"
	"strings"
)

// Source tells where a credential was found
type Source string

const (
	SourceNone   Source = ""
	SourceCookie Source = "cookie"
	SourceHeader Source = "header"
)

// DefaultScheme is the auth scheme expected in the fallback header
const DefaultScheme = "Bearer"

// ParseCookies splits a raw Cookie header into key/value pairs.
// Keys are trimmed and matched case sensitive, duplicated keys keep the
// last value seen. Entries without a "=" or with an empty key are ignored.
func ParseCookies(header string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(header) == "" {
		return out
	}

	var pairs []string
	if strings.Contains(header, ";") {
		pairs = strings.Split(header, ";")
	} else {
		pairs = []string{header}
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		value = strings.TrimSpace(value)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}

		out[key] = value
	}

	return out
}

// ExtractCookie returns the value stored under key in the raw Cookie header.
func ExtractCookie(header, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	value, ok := ParseCookies(header)[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// ExtractBearer returns the token segment of a "<scheme> <token>" header value.
func ExtractBearer(headerValue, scheme string) (string, bool) {
	if scheme == "" {
		scheme = DefaultScheme
	}

	prefix, token, found := strings.Cut(strings.TrimSpace(headerValue), " ")
	if !found || !strings.EqualFold(prefix, scheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return "", false
	}

	return token, true
}

// Extractor looks up a credential in a fixed list of cookies and falls
// back to a single header.
type Extractor struct {
	CookieNames []string
	Header      string
	Scheme      string
}

// Extract checks the cookies in declared order, then the header.
// cookieHeader and headerValue are the raw request header values.
func (e Extractor) Extract(cookieHeader, headerValue string) (string, Source, bool) {
	if len(e.CookieNames) > 0 && cookieHeader != "" {
		cookies := ParseCookies(cookieHeader)
		for _, name := range e.CookieNames {
			if value := cookies[name]; value != "" {
				return value, SourceCookie, true
			}
		}
	}

	if e.Header == "" {
		return "", SourceNone, false
	}

	if token, ok := ExtractBearer(headerValue, e.Scheme); ok {
		return token, SourceHeader, true
	}

	return "", SourceNone, false
}
