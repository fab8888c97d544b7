package app

import (
	"context"
	"maps"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// UserFields is the untyped form of user input, keyed like domain.FromMap expects.
type UserFields = map[string]any

// Normalizer is the service that cleans user input before it is validated:
// names are trimmed and their inner whitespace collapsed, emails are trimmed
// and lower-cased. Other keys pass through unchanged. It never fails on
// content; validation is the value object's job.
type Normalizer struct {
	titleCase bool
}

var _ ports.Service[UserFields, UserFields] = (*Normalizer)(nil)

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithTitleCaseNames also converts names to title case.
func WithTitleCaseNames() NormalizerOption {
	return func(n *Normalizer) {
		n.titleCase = true
	}
}

// NewNormalizer creates the normalizer service.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Run implements ports.Service. The input map is not modified.
func (n *Normalizer) Run(_ context.Context, in UserFields) (UserFields, error) {
	out := maps.Clone(in)
	if out == nil {
		out = UserFields{}
	}

	if name, ok := out["name"].(string); ok {
		name = strings.Join(strings.Fields(name), " ")
		if n.titleCase {
			// Casers carry state and are not shared between calls.
			name = cases.Title(language.Und).String(name)
		}

		out["name"] = name
	}

	if email, ok := out["email"].(string); ok {
		out["email"] = strings.ToLower(strings.TrimSpace(email))
	}

	return out, nil
}
