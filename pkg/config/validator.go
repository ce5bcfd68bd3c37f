package config

import "fmt"

// ValidateSite checks a loaded site definition. Step actions are a closed
// vocabulary; an unrecognized action is rejected here, never at execution
// time.
func ValidateSite(s *Site) error {
	if s.Name == "" {
		return fmt.Errorf("site is missing 'site_name'")
	}
	if s.PortalURL == "" {
		return fmt.Errorf("site %q is missing 'portal_url'", s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("site %q has negative 'timeout'", s.Name)
	}

	for _, np := range s.Phases() {
		if err := validatePhase(np.Name, np.Phase); err != nil {
			return err
		}
	}
	if len(s.Login.Steps) == 0 {
		return fmt.Errorf("site %q: login phase has no steps", s.Name)
	}
	if len(s.Navigation.Steps) == 0 {
		return fmt.Errorf("site %q: navigation phase has no steps", s.Name)
	}

	statuses := make(map[string]bool)
	for i, rule := range s.StatusRules {
		if rule.Status == "" {
			return fmt.Errorf("site %q: status rule %d is missing 'status'", s.Name, i)
		}
		if statuses[rule.Status] {
			return fmt.Errorf("site %q: duplicate status rule %q", s.Name, rule.Status)
		}
		statuses[rule.Status] = true
		if len(rule.Phrases) == 0 {
			return fmt.Errorf("site %q: status rule %q has no phrases", s.Name, rule.Status)
		}
	}

	return nil
}

func validatePhase(name string, p Phase) error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("phase %q has negative 'max_retries'", name)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("phase %q has negative 'retry_delay'", name)
	}

	for i, step := range p.Steps {
		label := StepLabel(name, i, step)

		if !validActions[step.Action] {
			return fmt.Errorf("step %q: unrecognized action %q", label, step.Action)
		}

		if step.Action.NeedsTarget() && len(step.Selectors) == 0 && len(step.Hints) == 0 {
			return fmt.Errorf("step %q: %s requires selectors or hints", label, step.Action)
		}

		switch step.Action {
		case ActionFindAndFill:
			if step.Value == "" {
				return fmt.Errorf("step %q: find_and_fill requires 'value'", label)
			}
		case ActionPressKey:
			if step.Value == "" {
				return fmt.Errorf("step %q: press_key requires 'value' (the key name)", label)
			}
		case ActionWaitForNavigation:
			if len(step.SuccessIndicators) == 0 {
				return fmt.Errorf("step %q: wait_for_navigation requires 'success_indicators'", label)
			}
		case ActionWait:
			if step.Timeout <= 0 {
				return fmt.Errorf("step %q: wait requires a positive 'timeout'", label)
			}
		}

		if step.TriggersDownload && step.Action != ActionFindAndClick && step.Action != ActionCaptureDownload {
			return fmt.Errorf("step %q: triggers_download only applies to find_and_click", label)
		}
		if step.OpensNewTab && step.Action != ActionFindAndClick {
			return fmt.Errorf("step %q: opens_new_tab only applies to find_and_click", label)
		}
		if step.MaxRetries != nil && *step.MaxRetries < 0 {
			return fmt.Errorf("step %q: negative 'max_retries'", label)
		}
		if step.RetryDelay != nil && *step.RetryDelay < 0 {
			return fmt.Errorf("step %q: negative 'retry_delay'", label)
		}
	}

	return nil
}
