// Package masking redacts credential material from tool output before it
// reaches the LLM, the evidence store, or the event stream.
package masking

import (
	"log/slog"
	"regexp"
)

// MaskedValue replaces every pattern match.
const MaskedValue = "***MASKED***"

// pattern pairs a name with its compiled regex. When groups is true, only
// the capture groups are replaced, preserving the surrounding key text.
type pattern struct {
	name   string
	re     *regexp.Regexp
	groups bool
}

// builtinPatterns covers the credential shapes that commonly leak through
// crawled pages, API responses, and sandbox output.
var builtinPatterns = []pattern{
	{name: "private_key", re: regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)},
	{name: "certificate", re: regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----.*?-----END CERTIFICATE-----`)},
	{name: "aws_access_key", re: regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{name: "slack_token", re: regexp.MustCompile(`\bxox[abopsr]-[0-9A-Za-z-]{10,}\b`)},
	{name: "github_token", re: regexp.MustCompile(`\bgh[pousr]_[0-9A-Za-z]{36,}\b`)},
	{name: "openai_key", re: regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
	{name: "bearer_token", re: regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9._~+/-]{16,}=*`), groups: true},
	{name: "api_key_field", re: regexp.MustCompile(`(?i)\b((?:api[_-]?key|apikey|secret|token|password|passwd)["']?\s*[:=]\s*["']?)([^\s"',;&]{8,})`), groups: true},
	{name: "basic_auth_url", re: regexp.MustCompile(`(//[^/\s:@]+:)([^@\s/]+)(@)`), groups: true},
}

// Service applies the builtin patterns plus any custom ones. Stateless after
// construction and safe for concurrent use.
type Service struct {
	patterns []pattern
	logger   *slog.Logger
}

// NewService compiles the builtin patterns plus custom regexes from
// configuration. Invalid custom patterns are logged and skipped, never
// fatal.
func NewService(custom map[string]string) *Service {
	s := &Service{
		patterns: builtinPatterns,
		logger:   slog.Default().With("component", "masking"),
	}
	for name, expr := range custom {
		re, err := regexp.Compile(expr)
		if err != nil {
			s.logger.Warn("skipping invalid masking pattern", "pattern", name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, pattern{name: name, re: re})
	}
	s.logger.Info("masking service initialized", "patterns", len(s.patterns))
	return s
}

// Mask replaces all credential matches in data.
func (s *Service) Mask(data string) string {
	if data == "" {
		return data
	}
	for _, p := range s.patterns {
		if p.groups {
			data = maskGroups(p.re, data)
		} else {
			data = p.re.ReplaceAllString(data, MaskedValue)
		}
	}
	return data
}

// maskGroups keeps the first capture group (the key text) and masks the
// value group, so "api_key: hunter2secret" becomes "api_key: ***MASKED***".
func maskGroups(re *regexp.Regexp, data string) string {
	return re.ReplaceAllStringFunc(data, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) < 3 {
			// Two-group form: prefix + secret.
			if len(sub) == 2 {
				return sub[1] + MaskedValue
			}
			return MaskedValue
		}
		out := sub[1] + MaskedValue
		// Trailing groups past the secret (e.g. the "@" in URL credentials).
		for _, tail := range sub[3:] {
			out += tail
		}
		return out
	})
}
