package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds one code execution.
	DefaultTimeout = 30 * time.Second
	// installTimeout bounds a pip install.
	installTimeout = 2 * time.Minute

	tempCodeDir = "temp_code"
)

// pythonPrelude runs before user code. The interpreter already starts
// in the workspace directory; the prelude makes it importable too.
const pythonPrelude = `import os
import sys

WORKSPACE_PATH = os.getcwd()
sys.path.insert(0, WORKSPACE_PATH)

`

// ExecResult is the transcript-facing outcome of one execution.
// Stderr carries the failure reason for timeouts and blocked commands
// so the model can correct itself.
type ExecResult struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
	Command    string `json:"command,omitempty"`
	Package    string `json:"package,omitempty"`
	Blocked    bool   `json:"blocked,omitempty"`
}

// Runner executes Python snippets and shell commands inside one task
// workspace. Scripts are staged under temp_code/ and removed after
// the run.
type Runner struct {
	root   string
	python string
}

type Option func(*Runner)

// WithPythonBinary overrides the interpreter, e.g. a venv path.
func WithPythonBinary(path string) Option {
	return func(r *Runner) {
		r.python = path
	}
}

func NewRunner(workspaceRoot string, options ...Option) (*Runner, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve workspace root")
	}
	if err := os.MkdirAll(filepath.Join(abs, tempCodeDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create temp_code directory")
	}

	r := &Runner{
		root:   abs,
		python: "python3",
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// ExecutePython stages code as a script and runs it with the
// configured interpreter. Run failures and timeouts are reported in
// the result, not as errors; the error return covers staging only.
func (r *Runner) ExecutePython(ctx context.Context, code string, timeout time.Duration) (*ExecResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	script := filepath.Join(r.root, tempCodeDir, fmt.Sprintf("code_%d.py", time.Now().UnixNano()))
	if err := os.WriteFile(script, []byte(pythonPrelude+code), 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to stage code")
	}
	defer func() {
		_ = os.Remove(script)
	}()

	res, timedOut := r.run(ctx, timeout, r.python, script)
	if timedOut {
		res.Stderr = fmt.Sprintf("Execution timed out after %d seconds", int(timeout.Seconds()))
	}

	log.Debug().
		Bool("success", res.Success).
		Int("return_code", res.ReturnCode).
		Int("stdout_len", len(res.Stdout)).
		Msg("python execution finished")

	return res, nil
}

// InstallPackage installs one package with pip.
func (r *Runner) InstallPackage(ctx context.Context, pkg string) (*ExecResult, error) {
	if pkg == "" {
		return nil, errors.New("package name required")
	}

	res, timedOut := r.run(ctx, installTimeout, r.python, "-m", "pip", "install", pkg)
	res.Package = pkg
	if timedOut {
		res.Stderr = "Package installation timed out"
	}
	return res, nil
}

// RunShell executes a shell command after the allow/deny checks in
// commands.go. Blocked commands never reach the shell.
func (r *Runner) RunShell(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if blocked, reason := checkCommand(command); blocked {
		log.Warn().Str("command", command).Str("reason", reason).Msg("shell command blocked")
		return &ExecResult{
			Success:    false,
			Stderr:     reason,
			ReturnCode: -1,
			Command:    command,
			Blocked:    true,
		}, nil
	}

	res, timedOut := r.run(ctx, timeout, "/bin/sh", "-c", command)
	res.Command = command
	if timedOut {
		res.Stderr = fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, name string, args ...string) (*ExecResult, bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.Success = false
		res.ReturnCode = -1
		return res, true
	}

	switch {
	case err == nil:
		res.Success = true
		res.ReturnCode = 0
	case cmd.ProcessState != nil:
		res.Success = false
		res.ReturnCode = cmd.ProcessState.ExitCode()
	default:
		res.Success = false
		res.ReturnCode = -1
		res.Stderr = err.Error()
	}

	return res, false
}
