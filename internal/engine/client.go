// Package engine drives the external game engine executable.
//
// The engine is a black box invoked as
//
//	<engine> --json --headless --command "<command>"
//	<engine> --json --headless --batch "<cmd1>" "<cmd2>" ...
//	<engine> --json --headless --script <file>
//
// and prints one JSON object per command: {success, output, error, data}.
// The JSON decides success; the exit code is only a diagnostic.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command outlives its timeout
var ErrTimeout = errors.New("engine command timed out")

// Commander interface for testing
type Commander interface {
	Run() error
}

// CommandFunc creates the process for one engine invocation
type CommandFunc func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) Commander

// Client runs engine commands as subprocesses
type Client struct {
	// Path to the engine executable
	Path string

	Logger *slog.Logger

	execCommand CommandFunc
}

// NewClient creates a client for the engine at path
func NewClient(path string, logger *slog.Logger) *Client {
	return &Client{
		Path:        path,
		Logger:      logger,
		execCommand: execCommand,
	}
}

// WithCommandFunc replaces process creation, for tests and dry runs
func (c *Client) WithCommandFunc(fn CommandFunc) *Client {
	c.execCommand = fn
	return c
}

func execCommand(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) Commander {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children that inherit the pipes must not hold Run open after a kill
	cmd.WaitDelay = 2 * time.Second

	return cmd
}

// Result is the outcome of one engine invocation
type Result struct {
	Commands  []string
	Responses []Response
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
}

// OK reports whether the engine produced at least one response and every
// response succeeded
func (r *Result) OK() bool {
	if r == nil || len(r.Responses) == 0 {
		return false
	}

	for _, resp := range r.Responses {
		if !resp.Success {
			return false
		}
	}

	return true
}

// Failed returns the first unsuccessful response, if any
func (r *Result) Failed() (Response, bool) {
	if r == nil {
		return Response{}, false
	}

	for _, resp := range r.Responses {
		if !resp.Success {
			return resp, true
		}
	}

	return Response{}, false
}

// ErrorMessage describes why the invocation failed
func (r *Result) ErrorMessage() string {
	if r == nil {
		return ""
	}

	if resp, ok := r.Failed(); ok && resp.Error != "" {
		return resp.Error
	}

	if r.TimedOut {
		return GetExitMessage(ExitTimeout)
	}

	if stderr := strings.TrimSpace(r.Stderr); stderr != "" {
		return stderr
	}

	if len(r.Responses) == 0 {
		return fmt.Sprintf("no JSON response from engine (exit code %d: %s)", r.ExitCode, GetExitMessage(r.ExitCode))
	}

	return fmt.Sprintf("exit code %d: %s", r.ExitCode, GetExitMessage(r.ExitCode))
}

// Output joins the output of every response
func (r *Result) Output() string {
	if r == nil {
		return ""
	}

	var parts []string
	for _, resp := range r.Responses {
		if resp.Output != "" {
			parts = append(parts, resp.Output)
		}
	}

	return strings.Join(parts, "\n")
}

// BuildArgs builds the engine arguments for one or more commands
func BuildArgs(commands ...string) ([]string, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("no engine command given")
	}

	for _, c := range commands {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("empty engine command")
		}
	}

	args := []string{"--json", "--headless"}

	if len(commands) == 1 {
		return append(args, "--command", commands[0]), nil
	}

	args = append(args, "--batch")
	return append(args, commands...), nil
}

// Run executes commands in one engine process. A returned error means the
// process could not be started, timed out or was cancelled; a process that
// ran to completion is judged by Result.OK.
func (c *Client) Run(ctx context.Context, timeout time.Duration, commands ...string) (*Result, error) {
	args, err := BuildArgs(commands...)
	if err != nil {
		return nil, err
	}

	return c.run(ctx, timeout, commands, args)
}

// RunScript executes a newline-separated command file
func (c *Client) RunScript(ctx context.Context, timeout time.Duration, scriptPath string) (*Result, error) {
	return c.run(ctx, timeout, []string{"script:" + scriptPath},
		[]string{"--json", "--headless", "--script", scriptPath})
}

func (c *Client) run(ctx context.Context, timeout time.Duration, commands, args []string) (*Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := logger(c.Logger)
	log.Debug("running engine", "path", c.Path, "args", strings.Join(args, " "), "timeout", timeout)

	var stdout, stderr bytes.Buffer
	start := time.Now()

	runErr := c.execCommand(runCtx, &stdout, &stderr, c.Path, args...).Run()

	res := &Result{
		Commands:  commands,
		Responses: ParseResponses(stdout.Bytes()),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
	}

	switch {
	case runErr == nil:
		res.ExitCode = ExitSuccess

	case ctx.Err() != nil:
		res.ExitCode = ExitKilled
		return res, fmt.Errorf("engine command cancelled: %w", ctx.Err())

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
		res.TimedOut = true
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, strings.Join(commands, "; "))

	default:
		var exitErr interface{ ExitCode() int }
		if !errors.As(runErr, &exitErr) {
			res.ExitCode = ExitNotStarted
			return res, fmt.Errorf("failed to run engine %s: %w", c.Path, runErr)
		}

		res.ExitCode = exitErr.ExitCode()
	}

	log.Debug("engine finished", "exit_code", res.ExitCode, "responses", len(res.Responses), "duration", res.Duration)

	return res, nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}

	return slog.New(slog.DiscardHandler)
}
