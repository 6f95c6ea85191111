// Package types contains the plan configuration and status taxonomy shared across op-suite
package types

import "time"

// PlanConfig represents a complete test plan file
type PlanConfig struct {
	Gates    []GateConfig `yaml:"gates" toml:"gates"`
	Metadata struct {
		Timeouts map[string]time.Duration `yaml:"timeouts" toml:"timeouts"`
	} `yaml:"metadata" toml:"metadata"`
}

// Gate returns the gate with the given ID
func (p *PlanConfig) Gate(id string) (GateConfig, bool) {
	for _, gate := range p.Gates {
		if gate.ID == id {
			return gate, true
		}
	}
	return GateConfig{}, false
}
