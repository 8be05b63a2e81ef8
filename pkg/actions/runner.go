package actions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// DefaultTimeout bounds a single action run.
const DefaultTimeout = 5 * time.Minute

// ForceLiveEnv returns the environment overrides applied to every live
// action. A triggered action always runs for real: its own dry-run setting
// is forced off, whatever its configuration says. The outer dry-run flag
// only decides whether the action is launched at all.
func ForceLiveEnv() map[string]string {
	return map[string]string{
		"DRY_RUN":          "false",
		"GUARDIAN_DRY_RUN": "false",
	}
}

// Authorize returns the actions permitted for level. Warning and none never
// carry actions, and nothing is authorized while triggers are disabled.
func Authorize(level model.AlertLevel, policy model.ActionPolicy, enabled bool) []model.Action {
	if !enabled || !level.AtLeast(model.LevelCritical) {
		return nil
	}
	src := policy.For(level)
	if len(src) == 0 {
		return nil
	}
	out := make([]model.Action, len(src))
	copy(out, src)
	return out
}

// Runner executes authorized actions one after another.
type Runner struct {
	executor Executor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a runner. A non-positive timeout selects DefaultTimeout.
func NewRunner(executor Executor, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		executor: executor,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes every action and returns one result per action, in order.
// Individual failures never stop the remaining actions.
func (r *Runner) Run(ctx context.Context, actions []model.Action, dryRun bool) []model.ActionResult {
	results := make([]model.ActionResult, 0, len(actions))
	for _, action := range actions {
		r.logger.Info("triggering action", "action", action.Name, "description", action.Description)

		if dryRun {
			r.logger.Info("DRY RUN: would execute", "action", action.Name, "command", strings.Join(action.Command, " "))
			results = append(results, model.ActionResult{Action: action, Status: model.StatusDryRun})
			continue
		}

		results = append(results, r.runOne(ctx, action))
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, action model.Action) model.ActionResult {
	env := ForceLiveEnv()
	r.logger.Warn("forcing live mode for triggered action",
		"action", action.Name,
		"env", env,
	)

	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.executor.Execute(actx, action, env)
	result := model.ActionResult{
		Action:   action,
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}

	switch {
	case err != nil && (errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)):
		result.Status = model.StatusTimeout
		result.Error = "timed out after " + r.timeout.String()
		r.logger.Error("action timed out", "action", action.Name, "timeout", r.timeout)
	case err != nil:
		result.Status = model.StatusError
		result.Error = err.Error()
		r.logger.Error("action could not be executed", "action", action.Name, "error", err)
	case res.ExitCode == 0:
		result.Status = model.StatusSuccess
		r.logger.Info("action completed", "action", action.Name, "duration", result.Duration)
	default:
		result.Status = model.StatusFailed
		result.Error = res.Stderr
		r.logger.Error("action failed",
			"action", action.Name,
			"exit_code", res.ExitCode,
			"stderr", res.Stderr,
		)
	}

	if res.Stdout != "" {
		r.logger.Debug("action output", "action", action.Name, "stdout", res.Stdout)
	}
	return result
}
