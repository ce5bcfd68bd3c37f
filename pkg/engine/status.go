package engine

import (
	"strings"

	"github.com/admitflow/admitflow/pkg/config"
)

// StatusUnknown is reported when no rule phrase appears in page text.
const StatusUnknown = "unknown"

// StatusClassifier maps extracted page text onto a site's status rules.
// Rules are checked in declaration order and the first phrase found
// wins; matching is a case-insensitive substring test.
type StatusClassifier struct {
	rules []config.StatusRule
}

func NewStatusClassifier(rules []config.StatusRule) *StatusClassifier {
	return &StatusClassifier{rules: rules}
}

// Classify returns the matched status name and the phrase that matched.
func (c *StatusClassifier) Classify(pageText string) (status, phrase string) {
	lower := strings.ToLower(pageText)
	for _, rule := range c.rules {
		for _, p := range rule.Phrases {
			if strings.Contains(lower, strings.ToLower(p)) {
				return rule.Status, p
			}
		}
	}
	return StatusUnknown, ""
}

// TerminalNegative reports whether the status makes the download phase
// pointless, per the site's policy.
func (c *StatusClassifier) TerminalNegative(status string) bool {
	for _, rule := range c.rules {
		if rule.Status == status {
			return rule.TerminalNegative
		}
	}
	return false
}
