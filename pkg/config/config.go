// Package config loads and validates per-site automation definitions.
// A site file declares three phase blocks (login, navigation, download),
// each an ordered list of declarative steps, plus the status rules used
// to classify the application page.
package config

import "fmt"

// Action identifies one kind of declarative step. The vocabulary is
// closed: anything else is rejected at load time.
type Action string

const (
	ActionFindAndFill       Action = "find_and_fill"
	ActionFindAndClick      Action = "find_and_click"
	ActionWaitForLoad       Action = "wait_for_load"
	ActionWaitForNavigation Action = "wait_for_navigation"
	ActionCaptureDownload   Action = "capture_download"
	ActionPressKey          Action = "press_key"
	ActionScroll            Action = "scroll"
	ActionWait              Action = "wait"
)

var validActions = map[Action]bool{
	ActionFindAndFill:       true,
	ActionFindAndClick:      true,
	ActionWaitForLoad:       true,
	ActionWaitForNavigation: true,
	ActionCaptureDownload:   true,
	ActionPressKey:          true,
	ActionScroll:            true,
	ActionWait:              true,
}

// NeedsTarget reports whether the action interacts with a page element
// and therefore requires selectors or hints.
func (a Action) NeedsTarget() bool {
	return a == ActionFindAndFill || a == ActionFindAndClick
}

// Step is one declarative instruction within a phase. Immutable once
// loaded; value and hints may carry {{ param }} placeholders resolved
// against the run context before execution.
type Step struct {
	Action      Action `yaml:"action"`
	Description string `yaml:"description,omitempty"`

	// Target specification, tried tier by tier.
	Selectors []string `yaml:"selectors,omitempty"`
	Hints     []string `yaml:"hints,omitempty"`
	// DeepScan widens hint scanning to overlay containers and text-node
	// ancestry for component trees that hide structure from a normal
	// candidate query.
	DeepScan bool `yaml:"deep_scan,omitempty"`

	Value string `yaml:"value,omitempty"`

	// Timeout in seconds for this step's waits; 0 inherits the site default.
	Timeout int `yaml:"timeout,omitempty"`

	OpensNewTab       bool     `yaml:"opens_new_tab,omitempty"`
	TriggersDownload  bool     `yaml:"triggers_download,omitempty"`
	ExpectedExtension string   `yaml:"expected_extension,omitempty"`
	SuccessIndicators []string `yaml:"success_indicators,omitempty"`

	Optional bool `yaml:"optional,omitempty"`

	// Per-step retry overrides; nil inherits the phase defaults.
	MaxRetries *int `yaml:"max_retries,omitempty"`
	RetryDelay *int `yaml:"retry_delay,omitempty"` // seconds
}

// Phase is an ordered list of steps plus the retry defaults its steps
// inherit.
type Phase struct {
	Steps      []Step `yaml:"steps"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
	RetryDelay int    `yaml:"retry_delay,omitempty"` // seconds
}

// StatusRule maps a status name to the phrases that signal it. Rules are
// evaluated in declaration order; the first phrase found in page text
// wins (case-insensitive substring).
type StatusRule struct {
	Status  string   `yaml:"status"`
	Phrases []string `yaml:"phrases"`
	// TerminalNegative marks a status that makes the download phase
	// pointless (e.g. rejected); the engine short-circuits past it.
	TerminalNegative bool `yaml:"terminal_negative,omitempty"`
}

// Site is the full declarative definition for one portal.
type Site struct {
	Name      string `yaml:"site_name"`
	PortalURL string `yaml:"portal_url"`

	// Timeout is the default per-step wait budget in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	Login      Phase `yaml:"login"`
	Navigation Phase `yaml:"navigation"`
	Download   Phase `yaml:"download"`

	StatusRules []StatusRule `yaml:"status_rules"`

	Notes string `yaml:"notes,omitempty"`
}

const (
	DefaultTimeout    = 30 // seconds
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 // seconds
)

// EffectiveTimeout returns the site default timeout, falling back to the
// package default when the site does not declare one.
func (s *Site) EffectiveTimeout() int {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// Phases returns the step blocks in execution order with their names.
func (s *Site) Phases() []NamedPhase {
	return []NamedPhase{
		{Name: "login", Phase: s.Login},
		{Name: "navigation", Phase: s.Navigation},
		{Name: "download", Phase: s.Download},
	}
}

type NamedPhase struct {
	Name  string
	Phase Phase
}

// StepLabel is the step's identity in results and logs.
func StepLabel(phase string, index int, step Step) string {
	if step.Description != "" {
		return fmt.Sprintf("%s[%d] %s", phase, index+1, step.Description)
	}
	return fmt.Sprintf("%s[%d] %s", phase, index+1, step.Action)
}
