package actions_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/actions"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	action   model.Action
	env      map[string]string
	deadline time.Time
}

type fakeExecutor struct {
	calls   []fakeCall
	results map[string]actions.ExecResult
	errs    map[string]error
}

func (f *fakeExecutor) Execute(ctx context.Context, action model.Action, env map[string]string) (actions.ExecResult, error) {
	deadline, _ := ctx.Deadline()
	f.calls = append(f.calls, fakeCall{action: action, env: env, deadline: deadline})
	return f.results[action.Name], f.errs[action.Name]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPolicy() model.ActionPolicy {
	return actions.DefaultPolicy([]string{"/usr/local/bin/guardian"})
}

func TestAuthorize_NoneAndWarningAlwaysEmpty(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		assert.Empty(t, actions.Authorize(model.LevelNone, testPolicy(), enabled))
		assert.Empty(t, actions.Authorize(model.LevelWarning, testPolicy(), enabled))
	}
}

func TestAuthorize_DisabledTriggers(t *testing.T) {
	assert.Empty(t, actions.Authorize(model.LevelCritical, testPolicy(), false))
	assert.Empty(t, actions.Authorize(model.LevelEmergency, testPolicy(), false))
}

func TestAuthorize_CriticalAndEmergency(t *testing.T) {
	critical := actions.Authorize(model.LevelCritical, testPolicy(), true)
	require.Len(t, critical, 1)
	assert.Equal(t, "EC2 Auto-Off", critical[0].Name)
	assert.Equal(t, []string{"/usr/local/bin/guardian", "ec2-auto-off"}, critical[0].Command)

	emergency := actions.Authorize(model.LevelEmergency, testPolicy(), true)
	require.Len(t, emergency, 1)
	assert.Equal(t, "EC2 Auto-Off", emergency[0].Name)
}

func TestAuthorize_ReturnsCopy(t *testing.T) {
	policy := testPolicy()
	got := actions.Authorize(model.LevelCritical, policy, true)
	got[0].Name = "mutated"
	assert.Equal(t, "EC2 Auto-Off", policy.Critical[0].Name)
}

func TestRunner_DryRunNeverInvokesExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	r := actions.NewRunner(exec, time.Minute, quietLogger())

	acts := []model.Action{{Name: "a", Command: []string{"x"}}, {Name: "b", Command: []string{"y"}}}
	results := r.Run(context.Background(), acts, true)

	assert.Empty(t, exec.calls)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, model.StatusDryRun, res.Status)
	}
}

func TestRunner_StatusMapping(t *testing.T) {
	exec := &fakeExecutor{
		results: map[string]actions.ExecResult{
			"ok":     {ExitCode: 0},
			"broken": {ExitCode: 2, Stderr: "permission denied"},
			"slow":   {ExitCode: -1},
		},
		errs: map[string]error{
			"slow":    actions.ErrTimeout,
			"missing": errors.New("exec: \"nope\": executable file not found in $PATH"),
		},
	}
	r := actions.NewRunner(exec, time.Minute, quietLogger())

	acts := []model.Action{
		{Name: "broken", Command: []string{"x"}},
		{Name: "slow", Command: []string{"x"}},
		{Name: "missing", Command: []string{"nope"}},
		{Name: "ok", Command: []string{"x"}},
	}
	results := r.Run(context.Background(), acts, false)

	require.Len(t, results, 4)
	assert.Len(t, exec.calls, 4, "failures must not stop remaining actions")

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, "permission denied", results[0].Error)
	assert.Equal(t, 2, results[0].ExitCode)

	assert.Equal(t, model.StatusTimeout, results[1].Status)

	assert.Equal(t, model.StatusError, results[2].Status)
	assert.Contains(t, results[2].Error, "executable file not found")

	assert.Equal(t, model.StatusSuccess, results[3].Status)
	assert.Empty(t, results[3].Error)
}

func TestRunner_ForcesLiveEnvironment(t *testing.T) {
	exec := &fakeExecutor{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := actions.NewRunner(exec, time.Minute, logger)

	r.Run(context.Background(), testPolicy().Emergency, false)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "false", exec.calls[0].env["DRY_RUN"])
	assert.Equal(t, "false", exec.calls[0].env["GUARDIAN_DRY_RUN"])
	assert.Contains(t, buf.String(), "forcing live mode")
}

func TestRunner_AppliesTimeout(t *testing.T) {
	exec := &fakeExecutor{}
	r := actions.NewRunner(exec, 300*time.Second, quietLogger())

	before := time.Now()
	r.Run(context.Background(), []model.Action{{Name: "a", Command: []string{"x"}}}, false)

	require.Len(t, exec.calls, 1)
	require.False(t, exec.calls[0].deadline.IsZero())
	assert.WithinDuration(t, before.Add(300*time.Second), exec.calls[0].deadline, 5*time.Second)
}

func TestNewRunner_DefaultTimeout(t *testing.T) {
	exec := &fakeExecutor{}
	r := actions.NewRunner(exec, 0, quietLogger())

	before := time.Now()
	r.Run(context.Background(), []model.Action{{Name: "a", Command: []string{"x"}}}, false)
	assert.WithinDuration(t, before.Add(actions.DefaultTimeout), exec.calls[0].deadline, 5*time.Second)
}
