package types

import (
	"strings"
	"time"
)

// TestStatus is the outcome recorded on a result node
type TestStatus string

const (
	TestStatusInconclusive TestStatus = "inconclusive"
	TestStatusPass         TestStatus = "pass"
	TestStatusFail         TestStatus = "fail"
	TestStatusError        TestStatus = "error"
	TestStatusSkip         TestStatus = "skip"
	TestStatusIgnored      TestStatus = "ignored"
	TestStatusCancelled    TestStatus = "cancelled"
)

// AllTestStatuses lists every status in reporting order
var AllTestStatuses = []TestStatus{
	TestStatusPass,
	TestStatusFail,
	TestStatusError,
	TestStatusSkip,
	TestStatusIgnored,
	TestStatusInconclusive,
	TestStatusCancelled,
}

// IsFailure reports whether a child with this status forces its parent to fail.
// Only assertion failures and unexpected errors do; cancelled, skipped, ignored and
// inconclusive outcomes never propagate upwards.
func (s TestStatus) IsFailure() bool {
	return s == TestStatusFail || s == TestStatusError
}

// IsFailing reports whether the status already represents a failed node. Unlike
// IsFailure it includes cancellation.
func (s TestStatus) IsFailing() bool {
	return s.IsFailure() || s == TestStatusCancelled
}

// IsValid reports whether s is one of the known statuses
func (s TestStatus) IsValid() bool {
	for _, known := range AllTestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s TestStatus) String() string {
	return string(s)
}

// FailureSite records which phase of a node produced its status
type FailureSite string

const (
	FailureSiteNone     FailureSite = ""
	FailureSiteTest     FailureSite = "test"
	FailureSiteSetUp    FailureSite = "setup"
	FailureSiteTearDown FailureSite = "teardown"
	FailureSiteChild    FailureSite = "child"
)

// TestConfig represents a single entry of a gate or suite.
// Package without Name runs every Test function of the package, Run executes a shell command.
type TestConfig struct {
	Name    string         `yaml:"name,omitempty" toml:"name"`
	Package string         `yaml:"package,omitempty" toml:"package"`
	Run     string         `yaml:"run,omitempty" toml:"run"`
	Timeout *time.Duration `yaml:"timeout,omitempty" toml:"timeout"`
	Skip    string         `yaml:"skip,omitempty" toml:"skip"`
	Ignore  string         `yaml:"ignore,omitempty" toml:"ignore"`
}

// Key identifies a test entry for inheritance deduplication
func (t TestConfig) Key() string {
	if t.Run != "" {
		return "run:" + t.Name
	}
	key := t.Package
	if t.Name != "" {
		key += ":" + t.Name
	}
	return key
}

// IsRunAll reports whether the entry expands into every test of its package
func (t TestConfig) IsRunAll() bool {
	return t.Run == "" && t.Name == "" && t.Package != ""
}

// DisplayName returns a readable name for the entry. Package entries are shortened to
// their last path element.
func (t TestConfig) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	pkgParts := strings.Split(strings.TrimSuffix(t.Package, "/"), "/")
	return pkgParts[len(pkgParts)-1]
}
