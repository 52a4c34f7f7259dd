package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/sandbox"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

const defaultMaxCodeAttempts = 5

// PythonRunner executes python code. Satisfied by sandbox.Runner.
type PythonRunner interface {
	ExecutePython(ctx context.Context, code string, timeout time.Duration) (*sandbox.ExecResult, error)
}

// Coder solves programming tasks in an iterative tool loop. Final
// answers that embed python are verified by running the blocks before
// the answer is accepted.
type Coder struct {
	taskID   string
	profile  Profile
	caller   Caller
	registry tools.Registry
	runner   PythonRunner
}

// NewCoder wires the coding agent. A nil runner disables answer
// verification; the model can still execute code through its tools.
func NewCoder(taskID string, profile Profile, caller Caller, registry tools.Registry, runner PythonRunner) *Coder {
	return &Coder{
		taskID:   taskID,
		profile:  profile,
		caller:   caller,
		registry: registry,
		runner:   runner,
	}
}

func (c *Coder) ExecuteTask(ctx context.Context, task, extra string) (string, error) {
	prompt, err := renderPrompt(coderTaskTemplate, promptData{Task: task, Context: extra})
	if err != nil {
		return "", err
	}

	options := []LoopOption{
		WithMinContent(c.profile.MinContentLength, coderElaboratePrompt),
		WithFallbackResult(coderFallbackResult),
		WithContinueOnError(),
	}
	if c.runner != nil {
		maxAttempts := c.profile.MaxCodeAttempts
		if maxAttempts <= 0 {
			maxAttempts = defaultMaxCodeAttempts
		}
		options = append(options, WithGates(CodeRunGate(c.runner, maxAttempts)))
	}

	loop := NewLoop(AgentCoder, c.taskID, c.profile, coderSystemPrompt, c.caller, c.registry, options...)
	return loop.RunIterative(ctx, prompt)
}

var _ SubAgent = (*Coder)(nil)

// CodeRunGate verifies candidate answers that embed python code by
// running each block in the sandbox. A failing block rejects the
// candidate and its output becomes the corrective turn. After
// maxAttempts failed verifications the candidate passes unverified
// rather than burning the remaining step budget on the same bug.
func CodeRunGate(runner PythonRunner, maxAttempts int) Gate {
	attempts := 0
	return func(ctx context.Context, candidate string) (bool, string) {
		blocks, err := ExtractCodeBlocks(candidate)
		if err != nil {
			log.Warn().Err(err).Msg("could not parse candidate for code blocks")
			return true, ""
		}
		python := PythonBlocks(blocks)
		if len(python) == 0 {
			return true, ""
		}
		if attempts >= maxAttempts {
			log.Warn().Int("attempts", attempts).Msg("code verification budget exhausted, accepting candidate")
			return true, ""
		}
		attempts++

		for _, block := range python {
			res, err := runner.ExecutePython(ctx, block.Code, 0)
			if err != nil {
				return false, fmt.Sprintf(
					"Executing your code failed: %s. Please fix the code and provide the full corrected solution.", err)
			}
			if !res.Success {
				return false, fmt.Sprintf(
					"Your code exited with code %d.\nstdout:\n%s\nstderr:\n%s\nPlease fix the code and provide the full corrected solution.",
					res.ReturnCode, res.Stdout, res.Stderr)
			}
		}
		return true, ""
	}
}
