package runner

import "time"

const (
	// DefaultTestTimeout is the default timeout for individual tests
	DefaultTestTimeout = 10 * time.Minute

	// Default go binary name
	DefaultGoBinary = "go"

	// DefaultShell runs command tests and fixtures
	DefaultShell = "sh"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// OutputEnvVar names the file a setup command writes KEY=VALUE lines to
	OutputEnvVar = "OP_SUITE_OUTPUT"

	// timeoutGrace is added on top of the go test -timeout before the process is killed,
	// so go test can report which test hung
	timeoutGrace = 30 * time.Second

	// DefaultProgressInterval is how often a running tree logs a progress update
	DefaultProgressInterval = 30 * time.Second

	// maxRunningShown bounds the longest-running tests listed in a progress update
	maxRunningShown = 3

	// MaxReasonableConcurrency caps auto-determined concurrency to avoid resource exhaustion
	MaxReasonableConcurrency = 32
)
