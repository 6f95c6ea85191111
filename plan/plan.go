// Package plan loads test plan files and turns them into a test tree.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Format is the encoding of a plan file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported plan file extension %q", filepath.Ext(path))
	}
}

// Load reads, parses and validates a plan file. Gate inheritance is resolved.
func Load(path string) (*types.PlanConfig, error) {
	log.Debug("Reading plan file", "path", path)

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a plan, validates it and resolves gate inheritance
func Parse(data []byte, format Format) (*types.PlanConfig, error) {
	var cfg types.PlanConfig
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown toml keys: %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("unknown plan format %q", format)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	if err := resolveGateInheritance(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve gate inheritance: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *types.PlanConfig) error {
	if len(cfg.Gates) == 0 {
		return fmt.Errorf("plan has no gates")
	}
	seen := make(map[string]bool)
	for _, gate := range cfg.Gates {
		if gate.ID == "" {
			return fmt.Errorf("gate without id")
		}
		if seen[gate.ID] {
			return fmt.Errorf("duplicate gate %q", gate.ID)
		}
		seen[gate.ID] = true
		if err := validateEntries(gate.ID, gate.Tests, gate.Suites); err != nil {
			return err
		}
	}
	return nil
}

func validateEntries(scope string, tests []types.TestConfig, suites map[string]types.SuiteConfig) error {
	for i, test := range tests {
		switch {
		case test.Run != "" && test.Package != "":
			return fmt.Errorf("%s: test %d sets both run and package", scope, i)
		case test.Run != "" && test.Name == "":
			return fmt.Errorf("%s: command test %d has no name", scope, i)
		case test.Run == "" && test.Package == "":
			return fmt.Errorf("%s: test %d needs a package or a run command", scope, i)
		}
	}
	for id, suite := range suites {
		if id == "" {
			return fmt.Errorf("%s: suite without id", scope)
		}
		if err := validateEntries(scope+"/"+id, suite.Tests, suite.Suites); err != nil {
			return err
		}
	}
	return nil
}

// resolveGateInheritance checks for inheritance cycles, then merges inherited entries
// into every gate
func resolveGateInheritance(cfg *types.PlanConfig) error {
	gateMap := make(map[string]types.GateConfig, len(cfg.Gates))
	for _, gate := range cfg.Gates {
		gateMap[gate.ID] = gate
	}

	for _, gate := range cfg.Gates {
		if err := checkCircularInheritance(gate.ID, gate.Inherits, gateMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for i := range cfg.Gates {
		if err := cfg.Gates[i].ResolveInherited(gateMap); err != nil {
			return fmt.Errorf("invalid gate inheritance: %w", err)
		}
	}
	return nil
}

func checkCircularInheritance(currentID string, inherits []string, gateMap map[string]types.GateConfig, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at gate %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, inheritedID := range inherits {
		inherited, exists := gateMap[inheritedID]
		if !exists {
			return fmt.Errorf("gate %s inherits from non-existent gate %s", currentID, inheritedID)
		}
		if err := checkCircularInheritance(inheritedID, inherited.Inherits, gateMap, visited); err != nil {
			return err
		}
	}
	return nil
}
