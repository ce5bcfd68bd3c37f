package engine

import (
	"context"
	"time"

	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/log"
)

// PhaseRunner executes the ordered steps of one phase. A phase advances
// only when every non-optional step has succeeded; an optional step that
// exhausts its budget is logged and skipped.
type PhaseRunner struct {
	executor *Executor
	defaults RetryPolicy
	timeout  time.Duration // site default per-step wait budget
	logger   log.Logger
}

func NewPhaseRunner(executor *Executor, defaults RetryPolicy, siteTimeout time.Duration, logger log.Logger) *PhaseRunner {
	return &PhaseRunner{executor: executor, defaults: defaults, timeout: siteTimeout, logger: logger}
}

// Run executes steps strictly in declaration order. It returns a
// *PhaseFailure when a non-optional step exhausts its retries, and a
// config error immediately without retry.
func (p *PhaseRunner) Run(ctx context.Context, rc *RunContext, phaseName string, phase config.Phase) error {
	logger := p.logger.With().Str("phase", phaseName).Logger()

	for i, step := range phase.Steps {
		label := config.StepLabel(phaseName, i, step)
		logger.Info().Msgf("Running step %d/%d: %s", i+1, len(phase.Steps), label)

		policy := EffectivePolicy(step, phase, p.defaults)
		stepTimeout := p.timeout
		if step.Timeout > 0 {
			stepTimeout = time.Duration(step.Timeout) * time.Second
		}

		err := p.executor.ExecuteStep(ctx, rc, phaseName, i, step, policy, stepTimeout)
		if err == nil {
			continue
		}

		if step.Optional {
			logger.Warn().Err(err).Msgf("Optional step %q exhausted its attempts, continuing", label)
			continue
		}

		return &PhaseFailure{Phase: phaseName, Step: label, Err: err}
	}

	logger.Info().Msgf("Phase %s complete (%d steps)", phaseName, len(phase.Steps))
	return nil
}
