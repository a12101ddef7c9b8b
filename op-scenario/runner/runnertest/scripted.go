// Package runnertest provides a scripted stand-in for the external tool so
// fixtures and scenarios can be exercised without a real ledger.
package runnertest

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-scenario/runner"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

var _ runner.Invoker = (*Scripted)(nil)

// Call records one invocation made against a Scripted invoker.
type Call struct {
	CommandLine string
	Env         types.Env
}

type response struct {
	output string
	err    error
}

// Scripted answers command lines with canned outputs. Responses for the same
// command line are consumed in order; the last one is repeated once the
// queue is down to a single entry.
type Scripted struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     []Call
}

// New creates an empty Scripted invoker.
func New() *Scripted {
	return &Scripted{responses: make(map[string][]response)}
}

// On queues a successful response for commandLine.
func (s *Scripted) On(commandLine string, output string) *Scripted {
	return s.enqueue(commandLine, response{output: output})
}

// Fail queues a non-zero exit for commandLine.
func (s *Scripted) Fail(commandLine string, exitCode int, stdout string) *Scripted {
	return s.enqueue(commandLine, response{err: &runner.ToolFailureError{
		Command:  commandLine,
		ExitCode: exitCode,
		Stdout:   stdout,
	}})
}

// Error queues an arbitrary error for commandLine.
func (s *Scripted) Error(commandLine string, err error) *Scripted {
	return s.enqueue(commandLine, response{err: err})
}

func (s *Scripted) enqueue(commandLine string, r response) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[commandLine] = append(s.responses[commandLine], r)
	return s
}

// Run implements runner.Invoker.
func (s *Scripted) Run(_ context.Context, commandLine string, env types.Env) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recorded types.Env
	if env != nil {
		recorded = env.Clone()
	}
	s.calls = append(s.calls, Call{CommandLine: commandLine, Env: recorded})

	queue := s.responses[commandLine]
	if len(queue) == 0 {
		return "", &runner.ToolFailureError{
			Command:  commandLine,
			ExitCode: 127,
			Stderr:   "unscripted command: " + commandLine,
		}
	}
	r := queue[0]
	if len(queue) > 1 {
		s.responses[commandLine] = queue[1:]
	}
	if r.err != nil {
		return "", r.err
	}
	return r.output, nil
}

// Calls returns a copy of every invocation seen so far.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CommandLines returns the command lines seen so far, in call order.
func (s *Scripted) CommandLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.CommandLine)
	}
	return out
}
