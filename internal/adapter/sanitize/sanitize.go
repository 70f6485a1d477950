// Package sanitize strips markup from chat text before it is stored.
package sanitize

import (
	"strings"
	"unicode"

	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/microcosm-cc/bluemonday"
)

// Policy removes every HTML element and drops control characters.
// Entities stay escaped so stored text is safe to embed in markup.
type Policy struct {
	policy *bluemonday.Policy
}

var _ domain.Sanitizer = (*Policy)(nil)

func NewPolicy() *Policy {
	return &Policy{policy: bluemonday.StrictPolicy()}
}

func (p *Policy) Sanitize(text string) string {
	cleaned := p.policy.Sanitize(text)
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.TrimSpace(cleaned)
}
