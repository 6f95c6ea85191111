package types

// SuiteConfig represents a collection of related tests sharing one-time setup and teardown.
// Suites nest to any depth.
type SuiteConfig struct {
	Description string                 `yaml:"description" toml:"description"`
	SetUp       *FixtureConfig         `yaml:"setup,omitempty" toml:"setup"`
	TearDown    *FixtureConfig         `yaml:"teardown,omitempty" toml:"teardown"`
	Skip        string                 `yaml:"skip,omitempty" toml:"skip"`
	Ignore      string                 `yaml:"ignore,omitempty" toml:"ignore"`
	Tests       []TestConfig           `yaml:"tests" toml:"tests"`
	Suites      map[string]SuiteConfig `yaml:"suites,omitempty" toml:"suites"`
}

// FixtureConfig describes a one-time setup or teardown command
type FixtureConfig struct {
	Run string            `yaml:"run" toml:"run"`
	Env map[string]string `yaml:"env,omitempty" toml:"env"`
}
