package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

const (
	MetricsNamespace = "op_suite"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	workItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "work_items_total",
		Help:      "Count of completed work items",
	}, []string{
		"kind",
		"status",
	})

	workItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "work_item_duration_seconds",
		Help:      "Duration of completed work items",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{
		"kind",
	})

	fixtureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fixture_failures_total",
		Help:      "Count of failed one-time setups and teardowns",
	}, []string{
		"site",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Result of the latest run",
	}, []string{
		"run_id",
		"result",
	})

	runTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Number of tests per run and status",
	}, []string{
		"run_id",
		"status",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
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

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordWorkItem records a completed work item of the given node kind
func RecordWorkItem(kind string, status types.TestStatus, duration time.Duration) {
	if !status.IsValid() {
		log.Error("RecordWorkItem - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "work_items_total",
			"kind", kind,
			"status", status,
			"duration", duration)
	}
	workItemsTotal.WithLabelValues(kind, string(status)).Inc()
	workItemDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFailureSite counts a failed setup or teardown
func RecordFailureSite(site types.FailureSite) {
	if site == types.FailureSiteNone {
		return
	}
	fixtureFailuresTotal.WithLabelValues(string(site)).Inc()
}

// RecordRun records the outcome of a whole run. counts maps each status to the number
// of tests that ended with it.
func RecordRun(runID string, result types.TestStatus, counts map[types.TestStatus]int, duration time.Duration) {
	runResult.WithLabelValues(runID, string(result)).Set(1)
	for status, n := range counts {
		runTestsTotal.WithLabelValues(runID, string(status)).Add(float64(n))
	}
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
