package security

import (
	"sort"
	"strings"
)

// Redactor replaces known secret values in strings before they are logged.
type Redactor struct {
	secrets []string
}

// NewRedactor builds a redactor from the secret values of a run
// (password, and anything else the caller marks sensitive).
func NewRedactor(secrets ...string) *Redactor {
	var kept []string
	for _, s := range secrets {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return &Redactor{secrets: kept}
}

func (r *Redactor) Redact(s string) string {
	if r == nil || len(r.secrets) == 0 {
		return s
	}

	// Longest first so a secret that contains another is replaced whole.
	secrets := make([]string, len(r.secrets))
	copy(secrets, r.secrets)
	sort.Slice(secrets, func(i, j int) bool {
		return len(secrets[i]) > len(secrets[j])
	})

	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, "********")
	}
	return s
}
