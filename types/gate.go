package types

import "fmt"

// GateConfig represents a top-level collection of tests and suites.
// A gate behaves like a suite: it may carry its own one-time setup and teardown.
type GateConfig struct {
	ID          string                 `yaml:"id" toml:"id"`
	Description string                 `yaml:"description" toml:"description"`
	Inherits    []string               `yaml:"inherits,omitempty" toml:"inherits"`
	SetUp       *FixtureConfig         `yaml:"setup,omitempty" toml:"setup"`
	TearDown    *FixtureConfig         `yaml:"teardown,omitempty" toml:"teardown"`
	Tests       []TestConfig           `yaml:"tests,omitempty" toml:"tests"`
	Suites      map[string]SuiteConfig `yaml:"suites,omitempty" toml:"suites"`
}

// ResolveInherited merges the tests and suites of every gate listed in Inherits into g.
//
// Inheritance is recursive and depth-first: if C inherits from B and B from A, C
// receives the entries of both. The gate's own entries take precedence:
//   - Suites: a parent suite is only inherited when no suite with the same ID exists
//   - Tests: parent tests are appended, deduplicated by TestConfig.Key
//
// Fixtures are never inherited; a gate's setup and teardown belong to that gate only.
func (g *GateConfig) ResolveInherited(gates map[string]GateConfig) error {
	processed := make(map[string]bool)
	return g.resolveInheritedRecursive(gates, processed)
}

func (g *GateConfig) resolveInheritedRecursive(gates map[string]GateConfig, processed map[string]bool) error {
	if len(g.Inherits) == 0 {
		return nil
	}

	mergedSuites := make(map[string]SuiteConfig, len(g.Suites))
	for k, v := range g.Suites {
		mergedSuites[k] = v
	}

	var mergedTests []TestConfig
	seenTests := make(map[string]bool)
	addTests := func(tests []TestConfig) {
		for _, test := range tests {
			key := test.Key()
			if seenTests[key] {
				continue
			}
			mergedTests = append(mergedTests, test)
			seenTests[key] = true
		}
	}
	addTests(g.Tests)

	for _, inheritFrom := range g.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for gate %q", inheritFrom)
		}

		parent, ok := gates[inheritFrom]
		if !ok {
			return fmt.Errorf("gate %q inherits from non-existent gate %q", g.ID, inheritFrom)
		}

		processed[inheritFrom] = true

		if err := parent.resolveInheritedRecursive(gates, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent gate %q: %w", inheritFrom, err)
		}

		for k, v := range parent.Suites {
			if _, exists := mergedSuites[k]; !exists {
				mergedSuites[k] = v
			}
		}
		addTests(parent.Tests)

		processed[inheritFrom] = false
	}

	g.Suites = mergedSuites
	g.Tests = mergedTests
	return nil
}
