package actions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"gopkg.in/yaml.v3"
)

// SelfPlaceholder in a policy command is replaced by the command that runs
// the guardian binary: its path followed by any global flags such as
// --config.
const SelfPlaceholder = "{self}"

// DefaultPolicy returns the built-in policy: critical and emergency both run
// the EC2 auto-off remediation through the given self command.
func DefaultPolicy(self []string) model.ActionPolicy {
	ec2AutoOff := model.Action{
		Name:        "EC2 Auto-Off",
		Command:     selfCommand(self, "ec2-auto-off"),
		Description: "Stop tagged EC2 instances",
	}
	return model.ActionPolicy{
		Critical:  []model.Action{ec2AutoOff},
		Emergency: []model.Action{ec2AutoOff},
	}
}

// LoadPolicy reads a YAML action policy. Only the critical and emergency
// keys are accepted; a warning list is rejected because warning is alert-only.
func LoadPolicy(path string, self []string) (model.ActionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ActionPolicy{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	policy, err := ParsePolicy(data, self)
	if err != nil {
		return model.ActionPolicy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy parses YAML policy data.
func ParsePolicy(data []byte, self []string) (model.ActionPolicy, error) {
	var policy model.ActionPolicy

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return model.ActionPolicy{}, fmt.Errorf("parse policy: %w", err)
	}

	for _, list := range [][]model.Action{policy.Critical, policy.Emergency} {
		for i := range list {
			if err := expandAction(&list[i], self); err != nil {
				return model.ActionPolicy{}, err
			}
		}
	}
	return policy, nil
}

// expandAction validates a and substitutes the self command. A leading
// placeholder expands to the whole self command; one embedded in a shell
// string is replaced by the space-joined command.
func expandAction(a *model.Action, self []string) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("action with command %v: missing name", a.Command)
	}
	if len(a.Command) == 0 || a.Command[0] == "" {
		return fmt.Errorf("action %q: missing command", a.Name)
	}
	if len(self) == 0 {
		return fmt.Errorf("action %q: empty self command", a.Name)
	}

	args := a.Command
	var cmd []string
	if args[0] == SelfPlaceholder {
		cmd = append(cmd, self...)
		args = args[1:]
	}
	joined := strings.Join(self, " ")
	for _, arg := range args {
		cmd = append(cmd, strings.ReplaceAll(arg, SelfPlaceholder, joined))
	}
	a.Command = cmd
	return nil
}

func selfCommand(self []string, args ...string) []string {
	cmd := make([]string, 0, len(self)+len(args))
	cmd = append(cmd, self...)
	return append(cmd, args...)
}
