package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/vision"
)

func newTestExecutor(driver *fakeDriver, vis vision.Locator, store *fakeStore) *Executor {
	logger := testLogger()
	return NewExecutor(driver, NewResolver(driver, vis, logger), store, logger)
}

func TestExecuteStep_TrailRecordsEveryAttempt(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#submit"] = `[data-admitflow-target="1"]`
	driver.clickErrs = []error{errors.New("obscured"), errors.New("obscured")}
	store := &fakeStore{}
	exec := newTestExecutor(driver, vision.Disabled{}, store)
	rc := newRunContext(driver)

	step := config.Step{Action: config.ActionFindAndClick, Selectors: []string{"#submit"}}
	err := exec.ExecuteStep(context.Background(), rc, "login", 0, step, fastPolicy(2), time.Second)

	require.NoError(t, err)
	require.Len(t, rc.Trail, 3, "one trail entry per attempt")
	for i, res := range rc.Trail {
		assert.Equal(t, i+1, res.Attempt)
		assert.Equal(t, "login", res.Phase)
		assert.Equal(t, config.ActionFindAndClick, res.Action)
	}
	assert.False(t, rc.Trail[0].Success)
	assert.Equal(t, KindInteraction, rc.Trail[0].ErrorKind)
	assert.False(t, rc.Trail[1].Success)
	assert.True(t, rc.Trail[2].Success)
	assert.Equal(t, TierSelector, rc.Trail[2].Tier)
}

func TestExecuteStep_UnresolvedPlaceholderFailsBeforeAction(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#user"] = `[data-admitflow-target="1"]`
	store := &fakeStore{}
	exec := newTestExecutor(driver, vision.Disabled{}, store)
	rc := newRunContext(driver)

	step := config.Step{
		Action:    config.ActionFindAndFill,
		Selectors: []string{"#user"},
		Value:     "{{ not_a_param }}",
	}
	err := exec.ExecuteStep(context.Background(), rc, "login", 0, step, fastPolicy(3), time.Second)

	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
	require.Len(t, rc.Trail, 1, "a config error is recorded once and never retried")
	assert.Equal(t, 1, rc.Trail[0].Attempt)
	assert.Empty(t, driver.filled, "no action may run on an unresolved step")
}

func TestExecuteStep_FillResolvesPlaceholders(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#password"] = `[data-admitflow-target="2"]`
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action:    config.ActionFindAndFill,
		Selectors: []string{"#password"},
		Value:     "{{ password }}",
	}
	err := exec.ExecuteStep(context.Background(), rc, "login", 1, step, fastPolicy(0), time.Second)

	require.NoError(t, err)
	assert.Equal(t, "hunter2", driver.filled[`[data-admitflow-target="2"]`])
}

func TestExecuteStep_VisionLocatorFillsByCoordinates(t *testing.T) {
	driver := newFakeDriver()
	vis := &fakeVision{point: vision.Point{X: 0.3, Y: 0.6}}
	exec := newTestExecutor(driver, vis, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action: config.ActionFindAndFill,
		Hints:  []string{"Username"},
		Value:  "{{ username }}",
	}
	err := exec.ExecuteStep(context.Background(), rc, "login", 0, step, fastPolicy(0), time.Second)

	require.NoError(t, err)
	require.Len(t, driver.clickedAt, 1, "a coordinate locator focuses by click first")
	assert.Equal(t, []string{"student"}, driver.typed)
	assert.Empty(t, driver.filled)
	assert.Equal(t, TierVision, rc.Trail[0].Tier)
}

func TestExecuteStep_WaitForNavigationChecksIndicators(t *testing.T) {
	driver := newFakeDriver()
	driver.pageText = "Welcome back! Dashboard loaded."
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action:            config.ActionWaitForNavigation,
		SuccessIndicators: []string{"dashboard"},
	}
	require.NoError(t, exec.ExecuteStep(context.Background(), rc, "login", 3, step, fastPolicy(0), time.Second))

	step.SuccessIndicators = []string{"My Applications"}
	err := exec.ExecuteStep(context.Background(), rc, "login", 3, step, fastPolicy(0), time.Second)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err), "a missing indicator is a timeout, eligible for retry")
}

func TestExecuteStep_ClickBindsDownload(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#download"] = `[data-admitflow-target="9"]`
	driver.download = &fakeDownload{path: "/tmp/dl/guid-1", filename: "offer_letter.pdf"}
	store := &fakeStore{}
	exec := newTestExecutor(driver, vision.Disabled{}, store)
	rc := newRunContext(driver)

	step := config.Step{
		Action:            config.ActionFindAndClick,
		Selectors:         []string{"#download"},
		TriggersDownload:  true,
		ExpectedExtension: "pdf",
	}
	err := exec.ExecuteStep(context.Background(), rc, "download", 0, step, fastPolicy(0), time.Second)

	require.NoError(t, err)
	require.Len(t, rc.Artifacts, 1)
	assert.Equal(t, "/stored/offer_letter.pdf", rc.Artifacts[0].Path)
	assert.Equal(t, "pdf", rc.Artifacts[0].Extension)
	assert.Empty(t, rc.Artifacts[0].Warning)
	assert.True(t, driver.download.closed, "the capture handle is discarded when the step ends")
}

func TestExecuteStep_ExtensionMismatchIsWarningNotFailure(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#download"] = `[data-admitflow-target="9"]`
	driver.download = &fakeDownload{path: "/tmp/dl/guid-2", filename: "offer.html"}
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action:            config.ActionFindAndClick,
		Selectors:         []string{"#download"},
		TriggersDownload:  true,
		ExpectedExtension: "pdf",
	}
	err := exec.ExecuteStep(context.Background(), rc, "download", 0, step, fastPolicy(0), time.Second)

	require.NoError(t, err, "an unexpected extension must not fail the step")
	require.Len(t, rc.Artifacts, 1)
	assert.Contains(t, rc.Artifacts[0].Warning, `"html"`)
	assert.Contains(t, rc.Artifacts[0].Warning, `"pdf"`)
}

func TestExecuteStep_NewTabSwitchesToFreshTarget(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#open"] = `[data-admitflow-target="4"]`
	driver.targetSnapshots = [][]browser.TargetID{
		{"main"},
		{"main", "popup"},
	}
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action:      config.ActionFindAndClick,
		Selectors:   []string{"#open"},
		OpensNewTab: true,
	}
	err := exec.ExecuteStep(context.Background(), rc, "navigation", 0, step, fastPolicy(0), time.Second)

	require.NoError(t, err)
	assert.Equal(t, []browser.TargetID{"popup"}, driver.switched)
}

func TestExecuteStep_NewTabTimeoutIsRetryable(t *testing.T) {
	driver := newFakeDriver()
	driver.query["#open"] = `[data-admitflow-target="4"]`
	driver.targetSnapshots = [][]browser.TargetID{{"main"}}
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{
		Action:      config.ActionFindAndClick,
		Selectors:   []string{"#open"},
		OpensNewTab: true,
	}
	err := exec.ExecuteStep(context.Background(), rc, "navigation", 0, step, fastPolicy(0), 10*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestExecuteStep_AuditBracketsEveryStep(t *testing.T) {
	driver := newFakeDriver()
	store := &fakeStore{}
	exec := newTestExecutor(driver, vision.Disabled{}, store)
	rc := newRunContext(driver)

	step := config.Step{Action: config.ActionScroll}
	require.NoError(t, exec.ExecuteStep(context.Background(), rc, "navigation", 2, step, fastPolicy(0), time.Second))

	require.Len(t, store.screenshots, 2)
	assert.Equal(t, "navigation_03_pre", store.screenshots[0])
	assert.Equal(t, "navigation_03_post", store.screenshots[1])
}

func TestExecuteStep_PressKeyUsesSubstitutedValue(t *testing.T) {
	driver := newFakeDriver()
	exec := newTestExecutor(driver, vision.Disabled{}, &fakeStore{})
	rc := newRunContext(driver)

	step := config.Step{Action: config.ActionPressKey, Value: "Enter"}
	require.NoError(t, exec.ExecuteStep(context.Background(), rc, "login", 4, step, fastPolicy(0), time.Second))
	assert.Equal(t, []string{"Enter"}, driver.keys)
}
