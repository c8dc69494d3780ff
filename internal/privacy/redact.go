// Package privacy masks credentials that feed URLs and upstream diagnostics can carry
// before they reach logs, terminals or API clients.
package privacy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	redactedPlaceholder = "[REDACTED]"
	// urlMask survives URL encoding unchanged.
	urlMask = "xxxxx"
)

// Query parameters whose values are treated as secrets, compared case-insensitively.
var sensitiveParams = map[string]bool{
	"token":        true,
	"access_token": true,
	"key":          true,
	"apikey":       true,
	"api_key":      true,
	"secret":       true,
	"password":     true,
	"auth":         true,
	"sig":          true,
	"signature":    true,
}

// Redactor applies configured patterns to free text.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns into a Redactor. An invalid pattern is an error.
func New(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Apply replaces all pattern matches in text with [REDACTED]. A nil Redactor returns
// text unchanged.
func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// RedactURL masks the userinfo password and the values of credential-like query
// parameters. Parameter order is preserved. Unparseable input is returned as is.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), urlMask)
		}
	}

	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			name, _, found := strings.Cut(part, "=")
			if !found {
				continue
			}
			decoded, err := url.QueryUnescape(name)
			if err != nil {
				decoded = name
			}
			if sensitiveParams[strings.ToLower(decoded)] {
				parts[i] = name + "=" + urlMask
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	return u.String()
}
