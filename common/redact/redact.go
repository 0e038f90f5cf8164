// Package redact strips credentials from strings before they reach a log
// line. It is best-effort: callers still keep secrets out of log call sites.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)

// String replaces every occurrence of each sensitive value in s, and any
// "Bearer <token>" fragment, with [REDACTED]. Values shorter than four
// characters are ignored to avoid mangling ordinary words.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return bearerPattern.ReplaceAllString(s, "${1}"+placeholder)
}

// Error is String applied to err.Error(). A nil error yields "".
func Error(err error, sensitiveValues ...string) string {
	if err == nil {
		return ""
	}
	return String(err.Error(), sensitiveValues...)
}
