package engine

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCommander implements Commander interface for testing
type mockCommander struct {
	runFunc func() error
}

func (m *mockCommander) Run() error {
	return m.runFunc()
}

type exitError struct {
	code int
}

func (e *exitError) Error() string { return "exit status" }
func (e *exitError) ExitCode() int { return e.code }

type invocation struct {
	name string
	args []string
}

// fakeEngine returns a client whose process writes stdout/stderr and exits
// with err, recording each invocation
func fakeEngine(stdout, stderr string, err error, calls *[]invocation) *Client {
	return NewClient("game_engine", nil).WithCommandFunc(
		func(ctx context.Context, out, errOut io.Writer, name string, args ...string) Commander {
			if calls != nil {
				*calls = append(*calls, invocation{name: name, args: args})
			}

			return &mockCommander{runFunc: func() error {
				_, _ = io.WriteString(out, stdout)
				_, _ = io.WriteString(errOut, stderr)
				return err
			}}
		})
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		commands []string
		wantArgs []string
		wantErr  bool
	}{
		{
			name:     "single command",
			commands: []string{"project.build"},
			wantArgs: []string{"--json", "--headless", "--command", "project.build"},
		},
		{
			name:     "batch",
			commands: []string{"project.open Alpha", "project.build.fast"},
			wantArgs: []string{"--json", "--headless", "--batch", "project.open Alpha", "project.build.fast"},
		},
		{
			name:    "no commands",
			wantErr: true,
		},
		{
			name:     "blank command",
			commands: []string{"project.open Alpha", "  "},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildArgs(tt.commands...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestClient_RunSuccess(t *testing.T) {
	var calls []invocation
	stdout := "[engine] booting headless\n" +
		`{"success": true, "output": "Opened project Alpha", "error": "", "data": null}` + "\n" +
		`{"success": true, "output": "Build complete", "error": "", "data": {"target": "Alpha"}}` + "\n"

	client := fakeEngine(stdout, "", nil, &calls)

	res, err := client.Run(context.Background(), time.Second, "project.open Alpha", "project.build")
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, ExitSuccess, res.ExitCode)
	assert.Len(t, res.Responses, 2)
	assert.Equal(t, "Opened project Alpha\nBuild complete", res.Output())
	assert.JSONEq(t, `{"target": "Alpha"}`, string(res.Responses[1].Data))

	require.Len(t, calls, 1)
	assert.Equal(t, "game_engine", calls[0].name)
	assert.Equal(t, []string{"--json", "--headless", "--batch", "project.open Alpha", "project.build"}, calls[0].args)
}

func TestClient_RunFailures(t *testing.T) {
	tests := []struct {
		name         string
		stdout       string
		stderr       string
		runErr       error
		wantExitCode int
		wantMessage  string
	}{
		{
			name:         "json failure with exit code",
			stdout:       `{"success": false, "output": "", "error": "CMake configure failed", "data": null}`,
			runErr:       &exitError{code: 1},
			wantExitCode: 1,
			wantMessage:  "CMake configure failed",
		},
		{
			name:         "json failure despite zero exit",
			stdout:       `{"success": false, "output": "", "error": "No project open", "data": null}`,
			wantExitCode: 0,
			wantMessage:  "No project open",
		},
		{
			name:         "crash without json",
			stderr:       "segmentation fault\n",
			runErr:       &exitError{code: 139},
			wantExitCode: 139,
			wantMessage:  "segmentation fault",
		},
		{
			name:         "silent failure",
			runErr:       &exitError{code: 2},
			wantExitCode: 2,
			wantMessage:  "no JSON response from engine (exit code 2: Invalid arguments)",
		},
		{
			name:         "one failing response in batch",
			stdout:       `{"success": true, "output": "ok"}` + "\n" + `{"success": false, "error": "link error"}`,
			runErr:       &exitError{code: 1},
			wantExitCode: 1,
			wantMessage:  "link error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fakeEngine(tt.stdout, tt.stderr, tt.runErr, nil)

			res, err := client.Run(context.Background(), time.Second, "project.open Alpha", "project.build")
			require.NoError(t, err, "a process that ran is judged by its result")

			assert.False(t, res.OK())
			assert.Equal(t, tt.wantExitCode, res.ExitCode)
			assert.Equal(t, tt.wantMessage, res.ErrorMessage())
		})
	}
}

func TestClient_RunNotStarted(t *testing.T) {
	client := fakeEngine("", "", errors.New(`exec: "game_engine": executable file not found in $PATH`), nil)

	res, err := client.Run(context.Background(), time.Second, "project.build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run engine")
	assert.Equal(t, ExitNotStarted, res.ExitCode)
	assert.False(t, res.OK())
}

func TestClient_RunTimeout(t *testing.T) {
	client := NewClient("game_engine", nil).WithCommandFunc(
		func(ctx context.Context, out, errOut io.Writer, name string, args ...string) Commander {
			return &mockCommander{runFunc: func() error {
				<-ctx.Done()
				return ctx.Err()
			}}
		})

	res, err := client.Run(context.Background(), 20*time.Millisecond, "project.build")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Equal(t, "Timed out", res.ErrorMessage())
}

func TestClient_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := NewClient("game_engine", nil).WithCommandFunc(
		func(runCtx context.Context, out, errOut io.Writer, name string, args ...string) Commander {
			return &mockCommander{runFunc: func() error {
				cancel()
				<-runCtx.Done()
				return runCtx.Err()
			}}
		})

	res, err := client.Run(ctx, time.Minute, "project.build")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.False(t, res.TimedOut)
}

func TestClient_RunScript(t *testing.T) {
	var calls []invocation
	client := fakeEngine(`{"success": true, "output": "done"}`, "", nil, &calls)

	res, err := client.RunScript(context.Background(), time.Second, "/tmp/commands.txt")
	require.NoError(t, err)
	assert.True(t, res.OK())

	require.Len(t, calls, 1)
	assert.Equal(t, []string{"--json", "--headless", "--script", "/tmp/commands.txt"}, calls[0].args)
}

func TestResult_NilSafety(t *testing.T) {
	var res *Result

	assert.False(t, res.OK())
	assert.Equal(t, "", res.ErrorMessage())
	assert.Equal(t, "", res.Output())
}
