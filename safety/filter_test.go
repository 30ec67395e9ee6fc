package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleFilter_AllowsBenignText(t *testing.T) {
	f := NewRuleFilter()

	res := f.Check("What is the capital of France?")
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
}

func TestRuleFilter_RejectsToxicContent(t *testing.T) {
	f := NewRuleFilter()

	res := f.Check("I hate everything about this")
	assert.False(t, res.Allowed)
	assert.Equal(t, "content violates safety policy", res.Reason)
}

func TestRuleFilter_RejectsPII(t *testing.T) {
	f := NewRuleFilter()

	tests := []struct {
		name string
		text string
	}{
		{"email", "contact me at alice@example.com please"},
		{"phone", "my number is 555-123-4567"},
		{"ssn", "ssn is 123-45-6789"},
		{"credit_card", "card 4111 1111 1111 1111"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Check(tt.text)
			assert.False(t, res.Allowed)
			assert.Equal(t, "content contains potentially sensitive information", res.Reason)
			assert.Contains(t, res.Redacted, "_REDACTED]")
		})
	}
}

func TestRuleFilter_PIIDetectionDisabled(t *testing.T) {
	f := NewRuleFilter(func(o *Options) { o.DetectPII = false })

	res := f.Check("contact me at alice@example.com")
	assert.True(t, res.Allowed)
}

func TestRuleFilter_Deterministic(t *testing.T) {
	f := NewRuleFilter()

	text := "violence is never the answer"
	first := f.Check(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.Check(text))
	}
}

func TestRuleFilter_Sanitize(t *testing.T) {
	f := NewRuleFilter()

	out := f.Sanitize("email alice@example.com, ssn 123-45-6789")
	assert.Equal(t, "email [EMAIL_REDACTED], ssn [SSN_REDACTED]", out)
}

func TestNoOpFilter(t *testing.T) {
	res := NoOpFilter{}.Check("I hate this, call 555-123-4567")
	assert.True(t, res.Allowed)
}
