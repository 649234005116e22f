package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// Patterns are applied in this order; the phone pattern is the loosest and
// would otherwise eat the digit groups of a UUID.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	codeRE  = regexp.MustCompile(`(?i)\b(code|token)=[^&]*`)
)

// RedactOptions configures a Redactor.
type RedactOptions struct {
	// MaskHeaders lists extra headers whose values are replaced entirely.
	// Authorization, Cookie and Set-Cookie are always masked.
	MaskHeaders []string
	// LogHeaders adds the scrubbed request headers to access log lines.
	LogHeaders bool
}

// Redactor scrubs identifiers, contact details and handover codes from text
// that ends up in logs. Item contact info routinely holds emails and phone
// numbers, so anything user-supplied goes through it.
type Redactor struct {
	LogHeaders bool
	mask       map[string]struct{}
}

// NewRedactor builds a Redactor.
func NewRedactor(opts RedactOptions) *Redactor {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}
	return &Redactor{LogHeaders: opts.LogHeaders, mask: mask}
}

// Redact returns s with sensitive substrings replaced by typed placeholders.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	s = codeRE.ReplaceAllString(s, "$1=[REDACTED]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Headers flattens h, masking sensitive headers and scrubbing the rest.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.mask[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.Redact(strings.Join(vv, ", "))
	}
	return out
}
