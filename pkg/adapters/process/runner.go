// Package process exposes external commands as toolbox tools. The tool input
// is written to the command's stdin as JSON and each top-level field is also
// passed as a TENDRIL_ARG_<NAME> environment variable. Stdout is the result.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/tendril/pkg/toolbox"
)

// DefaultTimeout bounds a single command execution.
const DefaultTimeout = 30 * time.Second

// Runner builds toolbox tools out of process configs.
type Runner struct {
	baseDir string
	timeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory of the commands.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds each execution. Zero disables the bound.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tool converts a config into a toolbox tool.
func (r *Runner) Tool(cfg ProcessConfig) (toolbox.Tool, error) {
	var schema json.RawMessage
	if cfg.InputSchema != nil {
		data, err := json.Marshal(cfg.InputSchema)
		if err != nil {
			return toolbox.Tool{}, fmt.Errorf("tool %s: invalid input schema: %w", cfg.Name, err)
		}
		schema = data
	}
	return toolbox.Tool{
		Spec: toolbox.Spec{
			Name:        cfg.Name,
			Description: cfg.Description,
			InputSchema: schema,
		},
		Handler: func(ctx context.Context, input json.RawMessage) (any, error) {
			return r.run(ctx, cfg, input)
		},
	}, nil
}

// RegisterAll adds every config to box.
func (r *Runner) RegisterAll(box *toolbox.Toolbox, cfgs []ProcessConfig) error {
	for _, cfg := range cfgs {
		tool, err := r.Tool(cfg)
		if err != nil {
			return err
		}
		if err := box.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, cfg ProcessConfig, input json.RawMessage) (any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = time.Second

	// Arguments travel as environment variables, never as command flags.
	env := cmd.Environ()
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	argEnv, err := argsEnv(input)
	if err != nil {
		return nil, err
	}
	cmd.Env = append(env, argEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("execution timed out after %s", r.timeout)
		}
		return nil, fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(out, "{") && strings.HasSuffix(out, "}")) ||
		(strings.HasPrefix(out, "[") && strings.HasSuffix(out, "]")) {
		if json.Valid([]byte(out)) {
			return json.RawMessage(out), nil
		}
	}
	return out, nil
}

func argsEnv(input json.RawMessage) ([]string, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("tool input must be a JSON object: %w", err)
	}
	env := make([]string, 0, len(args))
	for k, v := range args {
		var val string
		switch v.(type) {
		case string, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			val = string(data)
		}
		env = append(env, fmt.Sprintf("TENDRIL_ARG_%s=%s", strings.ToUpper(k), val))
	}
	return env, nil
}
