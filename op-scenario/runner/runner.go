package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-scenario/logging"
	"github.com/ethereum-optimism/infra/op-scenario/metrics"
	"github.com/ethereum-optimism/infra/op-scenario/types"
)

var _ Invoker = (*ProcessRunner)(nil)

// Invoker runs one command line against the external tool and returns its
// stdout. A nil env means no overlay.
type Invoker interface {
	Run(ctx context.Context, commandLine string, env types.Env) (string, error)
}

// Config holds configuration for creating a new ProcessRunner
type Config struct {
	WorkDir    string           // Directory the tool runs in; defaults to the current directory
	Log        log.Logger       // Logger for invocation records
	Journal    *logging.Journal // Optional per-invocation journal
	StderrTail int              // Bytes of stderr kept per invocation; defaults to 1MB
	CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// ProcessRunner spawns the external tool synchronously. Invocations are
// serialised: the tool's ledger is a shared, unsynchronised on-disk store
// and two overlapping invocations would race on it.
type ProcessRunner struct {
	workDir    string
	log        log.Logger
	journal    *logging.Journal
	stderrTail int
	cmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
	tracer     trace.Tracer

	mu sync.Mutex
}

// NewProcessRunner creates a new process runner
func NewProcessRunner(cfg Config) *ProcessRunner {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	return &ProcessRunner{
		workDir:    cfg.WorkDir,
		log:        cfg.Log,
		journal:    cfg.Journal,
		stderrTail: cfg.StderrTail,
		cmdBuilder: cfg.CmdBuilder,
		tracer:     otel.Tracer("scenario runner"),
	}
}

// Run splits commandLine on whitespace into executable and arguments, runs
// it with env layered over the parent environment and returns stdout.
// There is no quoting support: arguments cannot contain whitespace.
func (r *ProcessRunner) Run(ctx context.Context, commandLine string, env types.Env) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context cannot be nil")
	}
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return "", fmt.Errorf("command line cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	label := commandLabel(fields)
	ctx, span := r.tracer.Start(ctx, label)
	defer span.End()
	span.SetAttributes(
		attribute.String("command", commandLine),
		attribute.StringSlice("env.keys", env.Keys()),
	)

	cmd := r.cmdBuilder(ctx, fields[0], fields[1:]...)
	cmd.Dir = r.workDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, append(os.Environ(), env.Environ()...))

	var stdout bytes.Buffer
	stderr := newTailBuffer(r.stderrTail)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	r.log.Info("Running command", "command", commandLine, "env", env.Keys())
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	out, err := r.result(commandLine, stdout.Bytes(), stderr.String(), runErr)

	exitCode := 0
	var toolErr *ToolFailureError
	if errors.As(err, &toolErr) {
		exitCode = toolErr.ExitCode
	}
	if r.journal != nil {
		path, jerr := r.journal.RecordInvocation(logging.Invocation{
			Command:  commandLine,
			Env:      env,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
			Duration: duration,
			Err:      err,

			StderrBytes:     stderr.TotalBytes(),
			StderrTruncated: stderr.Truncated(),
		})
		if jerr != nil {
			r.log.Warn("Failed to journal invocation", "command", commandLine, "err", jerr)
		} else {
			r.log.Debug("Journaled invocation", "path", path)
		}
	}

	if stderr.Truncated() {
		r.log.Warn("Command stderr truncated", "command", commandLine, "stderrBytes", stderr.TotalBytes())
	}
	metrics.RecordInvocation(label, err, duration)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invocation failed")
		metrics.RecordErrorDetails(label, ErrorClass(err))
		r.log.Error("Command failed", "command", commandLine, "exitCode", exitCode, "duration", duration)
		return "", err
	}

	r.log.Debug("Command finished", "command", commandLine, "duration", duration, "stdoutBytes", stdout.Len())
	return out, nil
}

// result turns the raw process outcome into the runner contract.
func (r *ProcessRunner) result(commandLine string, stdout []byte, stderr string, runErr error) (string, error) {
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if errors.As(runErr, &exitErr) {
			return "", &ToolFailureError{
				Command:  commandLine,
				ExitCode: exitErr.ExitCode(),
				Stdout:   string(stdout),
				Stderr:   stderr,
				Err:      runErr,
			}
		}
		return "", &ToolFailureError{
			Command:  commandLine,
			ExitCode: -1,
			Stdout:   string(stdout),
			Stderr:   stderr,
			Err:      runErr,
		}
	}
	if !utf8.Valid(stdout) {
		return "", &EncodingError{Command: commandLine, Output: stdout}
	}
	return string(stdout), nil
}

// commandLabel names an invocation by executable and sub-command, eg.
// "resim publish", keeping manifest paths and other arguments out of
// metric labels.
func commandLabel(fields []string) string {
	label := filepath.Base(fields[0])
	if len(fields) > 1 {
		label += " " + fields[1]
	}
	return label
}
