package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-scenario/types"
)

const (
	RunDirectoryPrefix = "scenario-run-"
	SummaryFilename    = "summary.log"
	InvocationsDirName = "invocations"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Invocation is the journal record of one external tool invocation.
type Invocation struct {
	Command  string
	Env      types.Env
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error

	// StderrBytes is how much the tool wrote to stderr. It exceeds
	// len(Stderr) when StderrTruncated is set and only the tail was kept.
	StderrBytes     int64
	StderrTruncated bool
}

// Journal writes every invocation of a run, with the exact environment it
// was given, to its own file so a failed scenario can be replayed by hand.
type Journal struct {
	baseDir        string     // Base directory for logs
	logDir         string     // Directory of this run
	invocationsDir string     // Directory for per-invocation records
	summary        *AsyncFile // summary.log writer
	runID          string
	mu             sync.Mutex // Protects seq
	seq            int
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// NewJournal creates the run directory <baseDir>/scenario-run-<runID>.
func NewJournal(baseDir string, runID string) (*Journal, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	invocationsDir := filepath.Join(logDir, InvocationsDirName)
	for _, dir := range []string{baseDir, logDir, invocationsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	summary, err := NewAsyncFile(filepath.Join(logDir, SummaryFilename))
	if err != nil {
		return nil, err
	}

	return &Journal{
		baseDir:        baseDir,
		logDir:         logDir,
		invocationsDir: invocationsDir,
		summary:        summary,
		runID:          runID,
	}, nil
}

// GetRunID returns the run ID of this journal
func (j *Journal) GetRunID() string {
	return j.runID
}

// GetDirectory returns the directory of this run
func (j *Journal) GetDirectory() string {
	return j.logDir
}

// RecordInvocation writes one invocation record and returns its path.
// Records are numbered in call order, which is also ledger mutation order.
func (j *Journal) RecordInvocation(inv Invocation) (string, error) {
	j.mu.Lock()
	j.seq++
	seq := j.seq
	j.mu.Unlock()

	name := fmt.Sprintf("%04d-%s.log", seq, safeFilename(inv.Command))
	path := filepath.Join(j.invocationsDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "run_id: %s\n", j.runID)
	fmt.Fprintf(&b, "command: %s\n", inv.Command)
	fmt.Fprintf(&b, "exit_code: %d\n", inv.ExitCode)
	fmt.Fprintf(&b, "duration: %s\n", inv.Duration)
	if inv.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", inv.Err)
	}
	b.WriteString("env:\n")
	for _, kv := range inv.Env.Environ() {
		fmt.Fprintf(&b, "  %s\n", kv)
	}
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(inv.Stdout)
	if inv.StderrTruncated {
		fmt.Fprintf(&b, "\n--- stderr (truncated, %d bytes total) ---\n", inv.StderrBytes)
		b.WriteString(inv.Stderr)
	} else if inv.Stderr != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(inv.Stderr)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write invocation record: %w", err)
	}
	return path, nil
}

// RecordScenario appends a scenario outcome to summary.log.
func (j *Journal) RecordScenario(result *types.ScenarioResult) error {
	if result == nil {
		return fmt.Errorf("scenario result cannot be nil")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "scenario=%s setup=%s status=%s duration=%s package=%s\n",
		result.Name, result.Setup, result.Status, types.FormatDuration(result.Duration), result.Package)
	for _, step := range result.Steps {
		fmt.Fprintf(&b, "  step=%s status=%s command=%q\n", step.Name, step.Status, step.Command)
		for _, k := range sortedKeys(step.Captured) {
			fmt.Fprintf(&b, "    captured %s=%s\n", k, step.Captured[k])
		}
		if step.Error != nil {
			fmt.Fprintf(&b, "    error: %v\n", step.Error)
		}
	}
	if result.Error != nil && len(result.Steps) == 0 {
		fmt.Fprintf(&b, "  error: %v\n", result.Error)
	}
	return j.summary.Write([]byte(b.String()))
}

// Close flushes and closes the summary file.
func (j *Journal) Close() error {
	return j.summary.Close()
}

func safeFilename(command string) string {
	fields := strings.Fields(command)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	name := unsafeFilenameChars.ReplaceAllString(strings.Join(fields, "_"), "_")
	if name == "" {
		return "invocation"
	}
	return name
}

func sortedKeys(m map[string]string) []string {
	return types.Env(m).Keys()
}
