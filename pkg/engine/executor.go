package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/log"
)

// RunMetadata is the sibling record persisted next to a captured offer.
type RunMetadata struct {
	RunID          string `json:"run_id"`
	Site           string `json:"site"`
	ApplicationID  string `json:"application_id,omitempty"`
	StudentName    string `json:"student_name,omitempty"`
	Status         string `json:"status"`
	StatusText     string `json:"status_text,omitempty"`
	Downloaded     bool   `json:"downloaded"`
	OfferPath      string `json:"offer_path,omitempty"`
	TriggeringStep string `json:"triggering_step,omitempty"`
	Warning        string `json:"warning,omitempty"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
}

// ArtifactStore is the persistence collaborator: offer files, metadata
// records, and audit captures live behind it.
type ArtifactStore interface {
	SaveOffer(site, applicationID, srcPath, filename string) (string, error)
	SaveMetadata(site, applicationID string, meta RunMetadata) (string, error)
	SaveScreenshot(prefix string, png []byte) (string, error)
}

// Executor performs exactly one declarative step against the current
// page: placeholder substitution, target resolution, the primitive
// action, tab/download capture, audit brackets, and the retry policy,
// appending one ExecutionResult to the trail per attempt.
type Executor struct {
	driver   browser.Driver
	resolver *Resolver
	store    ArtifactStore
	logger   log.Logger
}

func NewExecutor(driver browser.Driver, resolver *Resolver, store ArtifactStore, logger log.Logger) *Executor {
	return &Executor{driver: driver, resolver: resolver, store: store, logger: logger}
}

// ExecuteStep runs one step under its retry policy. The returned error
// is classified; optional-step semantics belong to the phase runner.
func (e *Executor) ExecuteStep(ctx context.Context, rc *RunContext, phaseName string, idx int, step config.Step, policy RetryPolicy, stepTimeout time.Duration) error {
	label := config.StepLabel(phaseName, idx, step)
	logger := e.logger.With().Str("phase", phaseName).Str("step", label).Logger()

	e.audit(ctx, phaseName, idx, "pre")
	defer e.audit(ctx, phaseName, idx, "post")

	value, hints, err := e.substitute(rc, step)
	if err != nil {
		// Unresolved placeholder: fails before any action, not retried.
		e.record(rc, logger, ExecutionResult{
			Phase: phaseName, Step: label, Action: step.Action,
			Attempt: 1, ErrorKind: KindOf(err), Error: err.Error(),
		})
		return err
	}

	return policy.Do(ctx, func(attempt int) error {
		started := time.Now()
		tier, attemptErr := e.attempt(ctx, rc, logger, label, step, value, hints, stepTimeout)

		res := ExecutionResult{
			Phase:   phaseName,
			Step:    label,
			Action:  step.Action,
			Attempt: attempt,
			Success: attemptErr == nil,
			Tier:    tier,
			Elapsed: time.Since(started),
		}
		if attemptErr != nil {
			res.ErrorKind = KindOf(attemptErr)
			res.Error = attemptErr.Error()
		}
		e.record(rc, logger, res)
		return attemptErr
	})
}

func (e *Executor) substitute(rc *RunContext, step config.Step) (value string, hints []string, err error) {
	value, err = rc.Substitute(step.Value)
	if err != nil {
		return "", nil, err
	}
	hints, err = rc.SubstituteAll(step.Hints)
	if err != nil {
		return "", nil, err
	}
	return value, hints, nil
}

// attempt is the resolve+act unit wrapped by the retry policy.
func (e *Executor) attempt(ctx context.Context, rc *RunContext, logger log.Logger, label string, step config.Step, value string, hints []string, stepTimeout time.Duration) (Tier, error) {
	switch step.Action {
	case config.ActionFindAndFill:
		loc, err := e.resolveTarget(ctx, step, hints)
		if err != nil {
			return TierNone, err
		}
		if loc.ByPoint() {
			if err := e.driver.ClickAt(ctx, loc.Point.X, loc.Point.Y); err != nil {
				return loc.Tier, classify(err)
			}
			if err := e.driver.TypeText(ctx, value); err != nil {
				return loc.Tier, classify(err)
			}
			return loc.Tier, nil
		}
		if err := e.driver.Fill(ctx, loc.Selector, value); err != nil {
			return loc.Tier, classify(err)
		}
		return loc.Tier, nil

	case config.ActionFindAndClick:
		return e.click(ctx, rc, logger, label, step, hints, stepTimeout)

	case config.ActionWaitForLoad:
		if err := e.driver.WaitReady(ctx, stepTimeout); err != nil {
			return TierNone, classify(err)
		}
		return TierNone, nil

	case config.ActionWaitForNavigation:
		if err := e.driver.WaitReady(ctx, stepTimeout); err != nil {
			return TierNone, classify(err)
		}
		text, err := e.driver.PageText(ctx)
		if err != nil {
			return TierNone, classify(err)
		}
		lower := strings.ToLower(text)
		for _, indicator := range step.SuccessIndicators {
			if strings.Contains(lower, strings.ToLower(indicator)) {
				return TierNone, nil
			}
		}
		return TierNone, timeoutErr(fmt.Errorf("no success indicator on page after navigation"))

	case config.ActionCaptureDownload:
		dl, err := e.driver.ArmDownload(ctx)
		if err != nil {
			return TierNone, classify(err)
		}
		defer dl.Close()
		return TierNone, e.bindDownload(ctx, rc, logger, label, step, dl, stepTimeout)

	case config.ActionPressKey:
		if err := e.driver.PressKey(ctx, value); err != nil {
			return TierNone, classify(err)
		}
		return TierNone, nil

	case config.ActionScroll:
		if err := e.driver.ScrollToBottom(ctx); err != nil {
			return TierNone, classify(err)
		}
		return TierNone, nil

	case config.ActionWait:
		timer := time.NewTimer(stepTimeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return TierNone, timeoutErr(ctx.Err())
		case <-timer.C:
			return TierNone, nil
		}

	default:
		// Unreachable: the vocabulary is validated at load time.
		return TierNone, configErr("unrecognized action %q", step.Action)
	}
}

// click performs find_and_click with its new-tab and download variants.
// Listeners are armed before the click so the events cannot be missed.
func (e *Executor) click(ctx context.Context, rc *RunContext, logger log.Logger, label string, step config.Step, hints []string, stepTimeout time.Duration) (Tier, error) {
	var before map[browser.TargetID]bool
	if step.OpensNewTab {
		ids, err := e.driver.Targets(ctx)
		if err != nil {
			return TierNone, classify(err)
		}
		before = make(map[browser.TargetID]bool, len(ids))
		for _, id := range ids {
			before[id] = true
		}
	}

	var dl browser.Download
	if step.TriggersDownload {
		var err error
		dl, err = e.driver.ArmDownload(ctx)
		if err != nil {
			return TierNone, classify(err)
		}
		defer dl.Close()
	}

	loc, err := e.resolveTarget(ctx, step, hints)
	if err != nil {
		return TierNone, err
	}

	if loc.ByPoint() {
		err = e.driver.ClickAt(ctx, loc.Point.X, loc.Point.Y)
	} else {
		err = e.driver.Click(ctx, loc.Selector)
	}
	if err != nil {
		return loc.Tier, classify(err)
	}

	if step.OpensNewTab {
		if err := e.switchToNewTab(ctx, before, stepTimeout); err != nil {
			return loc.Tier, err
		}
	}
	if step.TriggersDownload {
		if err := e.bindDownload(ctx, rc, logger, label, step, dl, stepTimeout); err != nil {
			return loc.Tier, err
		}
	}
	return loc.Tier, nil
}

func (e *Executor) resolveTarget(ctx context.Context, step config.Step, hints []string) (Locator, error) {
	return e.resolver.Resolve(ctx, target{
		selectors: step.Selectors,
		hints:     hints,
		deep:      step.DeepScan,
		action:    string(step.Action),
	})
}

// switchToNewTab waits for a page handle absent from the pre-click
// snapshot and makes it the active context. No new handle within the
// timeout is a timeout error, eligible for retry.
func (e *Executor) switchToNewTab(ctx context.Context, before map[browser.TargetID]bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ids, err := e.driver.Targets(ctx)
		if err != nil {
			return classify(err)
		}
		for _, id := range ids {
			if !before[id] {
				if err := e.driver.SwitchTo(ctx, id); err != nil {
					return classify(err)
				}
				return nil
			}
		}
		if time.Now().After(deadline) {
			return timeoutErr(fmt.Errorf("no new page handle within %s", timeout))
		}
		timer := time.NewTimer(250 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timeoutErr(ctx.Err())
		case <-timer.C:
		}
	}
}

// bindDownload awaits the armed capture and binds the artifact into the
// run context exactly once for the successful triggering step. An
// extension mismatch is recorded as a warning, never a failure.
func (e *Executor) bindDownload(ctx context.Context, rc *RunContext, logger log.Logger, label string, step config.Step, dl browser.Download, timeout time.Duration) error {
	srcPath, filename, err := dl.Wait(ctx, timeout)
	if err != nil {
		return classify(err)
	}

	saved, err := e.store.SaveOffer(rc.Site, rc.Params["application_id"], srcPath, filename)
	if err != nil {
		return interactionErr(fmt.Errorf("binding download: %w", err))
	}

	art := Artifact{
		Path:       saved,
		Step:       label,
		Extension:  strings.TrimPrefix(filepath.Ext(filename), "."),
		CapturedAt: time.Now(),
	}
	if step.ExpectedExtension != "" && !strings.EqualFold(art.Extension, step.ExpectedExtension) {
		art.Warning = fmt.Sprintf("download integrity warning: extension %q, expected %q", art.Extension, step.ExpectedExtension)
		logger.Warn().Str("file", filename).Msg(art.Warning)
	}
	rc.addArtifact(art)

	logger.Info().Str("file", filename).Str("path", saved).Msg("Download captured")
	return nil
}

// record appends to the trail and emits the structured log entry every
// ExecutionResult gets.
func (e *Executor) record(rc *RunContext, logger log.Logger, res ExecutionResult) {
	rc.appendResult(res)

	evt := logger.Info()
	if !res.Success {
		evt = logger.Warn()
	}
	evt = evt.
		Str("action", string(res.Action)).
		Int("attempt", res.Attempt).
		Bool("success", res.Success).
		Dur("elapsed", res.Elapsed)
	if res.Tier != TierNone {
		evt = evt.Str("tier", string(res.Tier))
	}
	if res.ErrorKind != "" {
		evt = evt.Str("error_kind", string(res.ErrorKind)).Str("error", res.Error)
	}
	if res.Success {
		evt.Msg("Step succeeded")
	} else {
		evt.Msg("Step attempt failed")
	}
}

// audit captures the step-boundary screenshot. Best effort: a failed
// capture never affects the step outcome.
func (e *Executor) audit(ctx context.Context, phaseName string, idx int, boundary string) {
	shot, err := e.driver.Screenshot(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Audit capture failed")
		return
	}
	prefix := fmt.Sprintf("%s_%02d_%s", phaseName, idx+1, boundary)
	if _, err := e.store.SaveScreenshot(prefix, shot); err != nil {
		e.logger.Debug().Err(err).Msg("Audit capture not saved")
	}
}
