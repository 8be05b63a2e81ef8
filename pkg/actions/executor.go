package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
)

// ErrTimeout is returned by an Executor when the action outlives its deadline.
var ErrTimeout = errors.New("action timed out")

// ExecResult is the captured outcome of a finished command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs a remediation action with extra environment variables.
// A non-zero exit is reported through ExecResult, not as an error; errors
// are reserved for timeouts (ErrTimeout) and launch failures.
type Executor interface {
	Execute(ctx context.Context, action model.Action, env map[string]string) (ExecResult, error)
}

// CommandExecutor runs actions as child processes.
type CommandExecutor struct {
	// WaitDelay bounds how long Execute waits for output pipes after the
	// process is killed on timeout.
	WaitDelay time.Duration
}

// NewCommandExecutor returns an executor backed by os/exec.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{WaitDelay: 5 * time.Second}
}

func (e *CommandExecutor) Execute(ctx context.Context, action model.Action, env map[string]string) (ExecResult, error) {
	if len(action.Command) == 0 {
		return ExecResult{}, fmt.Errorf("action %q has no command", action.Name)
	}

	cmd := exec.CommandContext(ctx, action.Command[0], action.Command[1:]...)
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.WaitDelay = e.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", action.Command[0], err)
	}
	return res, nil
}

// mergeEnv appends overrides to base. Later entries win for exec.Cmd, so
// overrides replace inherited values.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
