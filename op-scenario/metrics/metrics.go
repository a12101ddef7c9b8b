package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-scenario/types"
)

const (
	MetricsNamespace = "op_scenario"

	ResultSuccess = "success"
	ResultFailure = "failure"

	// MaxErrorClassLength caps the class part of the errors_total label.
	MaxErrorClassLength = 48
)

var (
	Debug                bool = true
	validResults              = []types.Status{types.StatusPass, types.StatusFail, types.StatusSkip}
	nonLabelRegex             = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of external tool invocations",
	}, []string{
		"command",
		"result",
	})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "invocation_duration_seconds",
		Help:      "Duration of external tool invocations",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{
		"command",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of scenarios run",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a full plan run",
	}, []string{
		"run_id",
		"result",
	})
)

// classToLabel squeezes an error class into a short Prometheus label value.
func classToLabel(class string) string {
	if class == "" {
		return "unknown"
	}
	clean := nonLabelRegex.ReplaceAllString(class, "_")
	if len(clean) > MaxErrorClassLength {
		clean = clean[:MaxErrorClassLength]
	}
	return clean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails counts an error as <label>.<class>. class names the
// kind of failure (eg. "tool_failure.exit_1"), never the error message:
// messages carry tool output and would make the label unbounded.
func RecordErrorDetails(label string, class string) {
	RecordError(fmt.Sprintf("%s.%s", label, classToLabel(class)))
}

// RecordInvocation records one external tool invocation. command is the
// tool sub-command (eg. "publish"), never the full command line, to keep
// label cardinality bounded.
func RecordInvocation(command string, err error, duration time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	invocationsTotal.WithLabelValues(command, result).Inc()
	invocationDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordScenario(runID string, name string, result types.Status) {
	if !isValidResult(result) {
		log.Error("RecordScenario - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"run_id", runID,
			"scenario", name,
			"result", result)
	}
	scenariosTotal.WithLabelValues(runID, name, string(result)).Inc()
}

func RecordRun(runID string, result types.Status, duration time.Duration) {
	runDuration.WithLabelValues(runID, string(result)).Set(duration.Seconds())
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format, for runs that exit before anything could scrape them.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
