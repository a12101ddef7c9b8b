package types

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the possible states of a scenario or step execution
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// StepResult captures the outcome of a single scenario step
type StepResult struct {
	Name     string
	Command  string
	Env      Env               // The exact environment the step was invoked with
	Captured map[string]string // Values extracted from the step output
	Status   Status
	Error    error
	Duration time.Duration
}

// ScenarioResult captures the outcome of a scenario
type ScenarioResult struct {
	Name     string
	Setup    string
	Package  string
	Steps    []*StepResult
	Env      Env // Final environment after the last successful step
	Status   Status
	Error    error
	Duration time.Duration
}

// RunResult captures the complete results of a plan run
type RunResult struct {
	RunID     string
	Scenarios []*ScenarioResult
	Status    Status
	Duration  time.Duration
	Stats     ResultStats
}

// ResultStats tracks scenario statistics for a run
type ResultStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// Add records a scenario result in the stats.
func (s *ResultStats) Add(status Status) {
	s.Total++
	switch status {
	case StatusPass:
		s.Passed++
	case StatusFail:
		s.Failed++
	case StatusSkip:
		s.Skipped++
	}
}

// DetermineStatus derives the overall run status from its scenarios.
func (r *RunResult) DetermineStatus() Status {
	if len(r.Scenarios) == 0 {
		return StatusSkip
	}
	allSkipped := true
	for _, s := range r.Scenarios {
		if s.Status == StatusFail {
			return StatusFail
		}
		if s.Status != StatusSkip {
			allSkipped = false
		}
	}
	if allSkipped {
		return StatusSkip
	}
	return StatusPass
}

// String returns a formatted string representation of the run results
func (r *RunResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Scenario Run Results (%s):\n", FormatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped))

	for _, s := range r.Scenarios {
		b.WriteString(fmt.Sprintf("\nScenario: %s (%s) [setup=%s status=%s]\n",
			s.Name, FormatDuration(s.Duration), s.Setup, s.Status))
		for i, step := range s.Steps {
			prefix := "├──"
			if i == len(s.Steps)-1 {
				prefix = "└──"
			}
			b.WriteString(fmt.Sprintf("%s Step: %s (%s) [status=%s]\n",
				prefix, step.Name, FormatDuration(step.Duration), step.Status))
			if step.Error != nil {
				b.WriteString(fmt.Sprintf("│       └── Error: %s\n", step.Error.Error()))
			}
		}
		if s.Error != nil && len(s.Steps) == 0 {
			b.WriteString(fmt.Sprintf("└── Error: %s\n", s.Error.Error()))
		}
	}
	return b.String()
}

// FormatDuration formats a duration to seconds with 1 decimal place
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
