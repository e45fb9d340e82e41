// Package tool invokes local command line tools and captures their output.
package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
)

// Runner starts a process and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner runs commands with os/exec.
type OSRunner struct{}

// Run executes name and returns stdout. Stderr is folded into the error on a
// non-zero exit.
func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

// Executor invokes configured command templates with a bounded timeout.
type Executor struct {
	runner  Runner
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutor creates an Executor that uses the OS runner.
func NewExecutor(timeout time.Duration, logger zerolog.Logger) *Executor {
	return NewExecutorWithRunner(timeout, OSRunner{}, logger)
}

// NewExecutorWithRunner creates an Executor around a custom Runner.
func NewExecutorWithRunner(timeout time.Duration, runner Runner, logger zerolog.Logger) *Executor {
	return &Executor{
		runner:  runner,
		timeout: timeout,
		logger:  logger.With().Str("component", "ToolExecutor").Logger(),
	}
}

// Invoke expands the {placeholder} markers in command with vars and runs it.
// The tool name is only used to label errors, logs and metrics. Any failure is
// returned as a *types.TransportError.
func (e *Executor) Invoke(ctx context.Context, name string, command []string, vars map[string]string) (string, error) {
	collaborator := "tool:" + name
	argv := Expand(command, vars)
	if len(argv) == 0 {
		metrics.ToolInvocations.WithLabelValues(name, "failure").Inc()
		return "", &types.TransportError{Collaborator: collaborator, Err: fmt.Errorf("empty command")}
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.runner.Run(runCtx, argv[0], argv[1:]...)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues(name, "failure").Inc()
		if ctxErr := runCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", &types.TransportError{Collaborator: collaborator, Err: err}
	}
	metrics.ToolInvocations.WithLabelValues(name, "success").Inc()
	e.logger.Debug().Str("tool", name).Str("command", argv[0]).Dur("duration", time.Since(start)).Msg("Tool finished.")
	return string(out), nil
}

// Expand substitutes {key} markers in every argument. Unknown markers are left
// untouched and each argument stays a single argv entry.
func Expand(command []string, vars map[string]string) []string {
	if len(command) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = r.Replace(arg)
	}
	return out
}
