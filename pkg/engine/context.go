package engine

import (
	"regexp"
	"time"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/config"
)

// varRegex matches {{ paramName }} placeholders in step values and hints.
var varRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Artifact is one captured download, keyed by site, application id, and
// capture time through the store path.
type Artifact struct {
	Path       string
	Step       string
	Extension  string
	Warning    string // download integrity warning, "" when clean
	CapturedAt time.Time
}

// ExecutionResult records one step attempt outcome. The trail is
// append-only: one entry per attempt, in execution order.
type ExecutionResult struct {
	Phase     string
	Step      string
	Action    config.Action
	Attempt   int
	Success   bool
	Tier      Tier
	ErrorKind ErrorKind
	Error     string
	Elapsed   time.Duration
}

// RunContext is the mutable, run-scoped state: parameter bindings, the
// active page handle, captured artifacts, and the result trail. Created
// at run start, mutated step by step, discarded at run end. Exclusively
// owned by its run.
type RunContext struct {
	RunID  string
	Site   string
	Params map[string]string
	Driver browser.Driver

	Artifacts []Artifact
	Trail     []ExecutionResult
}

// Substitute resolves every {{ param }} placeholder against the run's
// parameter bindings. An unresolved placeholder is a config error: the
// step fails before any action and is never retried. Substitution is
// idempotent: a fully resolved string passes through unchanged.
func (rc *RunContext) Substitute(input string) (string, error) {
	var firstErr error
	output := varRegex.ReplaceAllStringFunc(input, func(match string) string {
		if firstErr != nil {
			return match
		}
		key := varRegex.FindStringSubmatch(match)[1]
		val, ok := rc.Params[key]
		if !ok {
			firstErr = configErr("unresolved placeholder %q", key)
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return output, nil
}

// SubstituteAll resolves a slice of templated strings.
func (rc *RunContext) SubstituteAll(inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([]string, len(inputs))
	for i, s := range inputs {
		resolved, err := rc.Substitute(s)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func (rc *RunContext) appendResult(res ExecutionResult) {
	rc.Trail = append(rc.Trail, res)
}

func (rc *RunContext) addArtifact(a Artifact) {
	rc.Artifacts = append(rc.Artifacts, a)
}
