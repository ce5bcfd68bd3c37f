package engine

import (
	"context"
	"strings"
	"time"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/log"
	"github.com/admitflow/admitflow/pkg/vision"
)

// State is the workflow's stage marker. Transitions are monotonic
// forward except FAILED, which is reachable from any non-terminal state
// and is itself terminal.
type State string

const (
	StateInit            State = "INIT"
	StateLogin           State = "LOGIN"
	StateNavigate        State = "NAVIGATE"
	StateFindApplication State = "FIND_APPLICATION"
	StateCheckStatus     State = "CHECK_STATUS"
	StateDownload        State = "DOWNLOAD"
	StateComplete        State = "COMPLETE"
	StateFailed          State = "FAILED"
)

// RunRequest identifies one application check: the credentials and at
// least one of application id / student name / student email.
type RunRequest struct {
	RunID         string
	Username      string
	Password      string
	ApplicationID string
	StudentName   string
	StudentEmail  string
}

// RunResult is the terminal outcome of one run.
type RunResult struct {
	Success    bool
	Status     string
	StatusText string
	Downloaded bool
	OfferPath  string

	// CompletedState is the last state that finished cleanly. On
	// failure FailedState names where the run stopped and Reason is the
	// human-readable diagnostic.
	CompletedState State
	FailedState    State
	Reason         string

	Trail     []ExecutionResult
	Artifacts []Artifact
}

// Engine drives the phases of one run in fixed order and decides
// short-circuits. It performs no retries of its own; retry is
// exclusively local to steps.
type Engine struct {
	site       *config.Site
	driver     browser.Driver
	store      ArtifactStore
	phases     *PhaseRunner
	classifier *StatusClassifier
	logger     log.Logger

	state     State
	completed State
}

func New(site *config.Site, driver browser.Driver, vis vision.Locator, store ArtifactStore, logger log.Logger) *Engine {
	resolver := NewResolver(driver, vis, logger)
	executor := NewExecutor(driver, resolver, store, logger)
	siteTimeout := time.Duration(site.EffectiveTimeout()) * time.Second

	return &Engine{
		site:       site,
		driver:     driver,
		store:      store,
		phases:     NewPhaseRunner(executor, DefaultRetryPolicy(), siteTimeout, logger),
		classifier: NewStatusClassifier(site.StatusRules),
		logger:     logger,
		state:      StateInit,
	}
}

// State returns the engine's current stage marker.
func (e *Engine) State() State {
	return e.state
}

// Execute runs LOGIN → NAVIGATE → FIND_APPLICATION → CHECK_STATUS →
// DOWNLOAD → COMPLETE. A terminal-negative status short-circuits past
// DOWNLOAD; any phase failure transitions to FAILED and halts the
// remaining phases.
func (e *Engine) Execute(ctx context.Context, req RunRequest) *RunResult {
	started := time.Now()

	rc := &RunContext{
		RunID:  req.RunID,
		Site:   e.site.Name,
		Driver: e.driver,
		Params: map[string]string{
			"username":       req.Username,
			"password":       req.Password,
			"application_id": req.ApplicationID,
			"student_name":   req.StudentName,
			"student_email":  req.StudentEmail,
			"site_name":      e.site.Name,
		},
	}

	identifiers := []string{req.ApplicationID, req.StudentName, req.StudentEmail}
	if req.ApplicationID == "" && req.StudentName == "" && req.StudentEmail == "" {
		return e.fail(rc, "request carries no application identifier")
	}
	e.completed = StateInit

	// LOGIN: the portal's base address first, then the login steps.
	e.state = StateLogin
	e.logger.Info().Str("state", string(e.state)).Str("site", e.site.Name).Msg("Starting login")
	if err := e.driver.Navigate(ctx, e.site.PortalURL); err != nil {
		return e.fail(rc, "opening portal: "+err.Error())
	}
	if err := e.phases.Run(ctx, rc, "login", e.site.Login); err != nil {
		return e.fail(rc, err.Error())
	}
	e.completed = StateLogin

	e.state = StateNavigate
	e.logger.Info().Str("state", string(e.state)).Msg("Navigating to application")
	if err := e.phases.Run(ctx, rc, "navigation", e.site.Navigation); err != nil {
		return e.fail(rc, err.Error())
	}
	e.completed = StateNavigate

	e.state = StateFindApplication
	pageText, err := e.driver.PageText(ctx)
	if err != nil {
		return e.fail(rc, "reading page text: "+err.Error())
	}
	if !containsAny(pageText, identifiers) {
		return e.fail(rc, "application not found on page (no identifier matched)")
	}
	e.completed = StateFindApplication

	e.state = StateCheckStatus
	status, phrase := e.classifier.Classify(pageText)
	e.logger.Info().Str("state", string(e.state)).Str("status", status).Str("phrase", phrase).Msg("Status classified")
	e.completed = StateCheckStatus

	result := &RunResult{
		Status:     status,
		StatusText: phrase,
	}

	switch {
	case e.classifier.TerminalNegative(status):
		// Deliberate short-circuit, not a failure: no offer to fetch.
		e.logger.Info().Str("status", status).Msg("Terminal-negative status, skipping download")
	case len(e.site.Download.Steps) == 0:
		e.logger.Info().Msg("Site declares no download steps, skipping download")
	default:
		e.state = StateDownload
		if err := e.phases.Run(ctx, rc, "download", e.site.Download); err != nil {
			res := e.fail(rc, err.Error())
			res.Status = status
			res.StatusText = phrase
			return res
		}
		e.completed = StateDownload
		if len(rc.Artifacts) > 0 {
			art := rc.Artifacts[len(rc.Artifacts)-1]
			result.Downloaded = true
			result.OfferPath = art.Path
		}
	}

	e.state = StateComplete
	e.completed = StateComplete
	result.Success = true
	result.CompletedState = StateComplete
	result.Trail = rc.Trail
	result.Artifacts = rc.Artifacts

	e.saveMetadata(rc, req, result, started)
	e.logger.Info().
		Str("status", result.Status).
		Bool("downloaded", result.Downloaded).
		Dur("elapsed", time.Since(started)).
		Msg("Run complete")
	return result
}

func (e *Engine) fail(rc *RunContext, reason string) *RunResult {
	failedAt := e.state
	e.state = StateFailed
	e.logger.Error().
		Str("failed_state", string(failedAt)).
		Str("completed_state", string(e.completed)).
		Msg(reason)

	return &RunResult{
		Success:        false,
		Status:         StatusUnknown,
		CompletedState: e.completed,
		FailedState:    failedAt,
		Reason:         reason,
		Trail:          rc.Trail,
		Artifacts:      rc.Artifacts,
	}
}

func (e *Engine) saveMetadata(rc *RunContext, req RunRequest, result *RunResult, started time.Time) {
	meta := RunMetadata{
		RunID:         rc.RunID,
		Site:          e.site.Name,
		ApplicationID: req.ApplicationID,
		StudentName:   req.StudentName,
		Status:        result.Status,
		StatusText:    result.StatusText,
		Downloaded:    result.Downloaded,
		OfferPath:     result.OfferPath,
		StartedAt:     started.UTC().Format(time.RFC3339),
		FinishedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if result.Downloaded && len(rc.Artifacts) > 0 {
		art := rc.Artifacts[len(rc.Artifacts)-1]
		meta.TriggeringStep = art.Step
		meta.Warning = art.Warning
	}

	if _, err := e.store.SaveMetadata(e.site.Name, req.ApplicationID, meta); err != nil {
		e.logger.Warn().Err(err).Msg("Metadata record not saved")
	}
}

func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
