// Package safety implements deterministic content checks applied to user
// input before a turn starts and to model output before it is returned.
package safety

import (
	"regexp"
	"sort"
	"strings"
)

// Result describes the outcome of a single filter check.
type Result struct {
	Allowed  bool   // true when the text may pass unchanged
	Reason   string // populated only when Allowed is false
	Redacted string // text with sensitive spans masked, when the check found any
}

// Filter checks a piece of text against a content policy. Implementations
// must be deterministic so the same text always yields the same result.
type Filter interface {
	Check(text string) Result
}

// Sanitizer masks sensitive spans instead of rejecting the whole text.
type Sanitizer interface {
	Sanitize(text string) string
}

// Options configures a RuleFilter.
type Options struct {
	// ToxicityThreshold is the fraction of toxicity patterns that must match
	// before the text is rejected. Values at or below the threshold pass.
	ToxicityThreshold float64
	// DetectPII enables rejection of text containing personal identifiers.
	DetectPII bool
}

// RuleFilter is a regex based Filter covering a small toxicity vocabulary and
// common PII shapes (email, phone, SSN, credit card numbers).
type RuleFilter struct {
	opts             Options
	toxicityPatterns []*regexp.Regexp
	piiPatterns      map[string]*regexp.Regexp
}

var _ Filter = (*RuleFilter)(nil)
var _ Sanitizer = (*RuleFilter)(nil)

// NewRuleFilter creates a filter with the default pattern set.
func NewRuleFilter(optFns ...func(o *Options)) *RuleFilter {
	opts := Options{
		ToxicityThreshold: 0.5,
		DetectPII:         true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RuleFilter{
		opts: opts,
		toxicityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(hate|violence|harmful)\b`),
		},
		piiPatterns: map[string]*regexp.Regexp{
			"email":       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			"phone":       regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
			"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			"credit_card": regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
		},
	}
}

// Check evaluates text against the toxicity and PII rules.
func (f *RuleFilter) Check(text string) Result {
	if f.toxicityScore(text) > f.opts.ToxicityThreshold {
		return Result{Allowed: false, Reason: "content violates safety policy"}
	}
	if f.opts.DetectPII && f.containsPII(text) {
		return Result{
			Allowed:  false,
			Reason:   "content contains potentially sensitive information",
			Redacted: f.Sanitize(text),
		}
	}
	return Result{Allowed: true}
}

// Sanitize masks every detected PII span with a typed redaction marker,
// e.g. "[EMAIL_REDACTED]".
func (f *RuleFilter) Sanitize(text string) string {
	names := make([]string, 0, len(f.piiPatterns))
	for name := range f.piiPatterns {
		names = append(names, name)
	}
	sort.Strings(names) // stable application order

	sanitized := text
	for _, name := range names {
		marker := "[" + strings.ToUpper(name) + "_REDACTED]"
		sanitized = f.piiPatterns[name].ReplaceAllString(sanitized, marker)
	}
	return sanitized
}

// toxicityScore returns the fraction of toxicity patterns that match,
// normalized to the 0..1 range.
func (f *RuleFilter) toxicityScore(text string) float64 {
	if len(f.toxicityPatterns) == 0 {
		return 0
	}
	matches := 0
	for _, pattern := range f.toxicityPatterns {
		if pattern.MatchString(text) {
			matches++
		}
	}
	score := float64(matches) / float64(len(f.toxicityPatterns))
	if score > 1 {
		score = 1
	}
	return score
}

func (f *RuleFilter) containsPII(text string) bool {
	for _, pattern := range f.piiPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// NoOpFilter allows everything. Useful when guardrails are disabled.
type NoOpFilter struct{}

// Check always allows the text.
func (NoOpFilter) Check(string) Result { return Result{Allowed: true} }
