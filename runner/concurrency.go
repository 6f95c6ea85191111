package runner

import "runtime"

// DetermineConcurrency picks how many tests run at the same time. A positive requested
// value is honoured up to the number of tests; otherwise the CPU count decides: low-core
// machines stay at the core count, mid-range ones go slightly above it and larger ones
// up to 1.5x, never above MaxReasonableConcurrency.
func DetermineConcurrency(requested, tests int) int {
	if tests <= 0 {
		return 0
	}
	if requested > 0 {
		return min(requested, tests)
	}

	numCPU := runtime.NumCPU()
	var concurrency int
	switch {
	case numCPU <= 2:
		concurrency = numCPU
	case numCPU <= 4:
		concurrency = int(float64(numCPU) * 1.25)
	default:
		concurrency = int(float64(numCPU) * 1.5)
	}

	concurrency = min(concurrency, MaxReasonableConcurrency, tests)
	return max(concurrency, 1)
}
