// Package safeurl vets URLs that arrive from outside the process: webhook
// poster URLs and configured service endpoints.
package safeurl

import "net/url"

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Rejects file://, ftp://, and other schemes that could lead to SSRF or
// local file access when the URL is forwarded to a remote service.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact returns u with any userinfo password and common token query
// parameters blanked, for logging.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	if _, has := parsed.User.Password(); has {
		parsed.User = url.User(parsed.User.Username())
	}
	q := parsed.Query()
	for _, key := range []string{"X-Plex-Token", "token", "apikey"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
