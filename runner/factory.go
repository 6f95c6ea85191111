package runner

import (
	"github.com/ethereum-optimism/infra/op-suite/plan"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

var _ plan.Factory = (*Factory)(nil)

// Factory creates go test leaves, command leaves and command fixtures
type Factory struct {
	GoBinary string
	Shell    string
	parser   OutputParser
}

// NewFactory creates a factory sharing one output parser across all go tests
func NewFactory(goBinary, shell string) *Factory {
	return &Factory{
		GoBinary: goBinary,
		Shell:    shell,
		parser:   NewOutputParser(),
	}
}

func (f *Factory) GoTest(pkg, name string) workitem.Test {
	return &GoTest{
		Package:  pkg,
		Name:     name,
		GoBinary: f.GoBinary,
		Parser:   f.parser,
	}
}

func (f *Factory) Command(name, run string) workitem.Test {
	return &Command{
		Name:   name,
		Script: run,
		Shell:  f.Shell,
	}
}

func (f *Factory) Fixture(setUp, tearDown *types.FixtureConfig) workitem.Fixture {
	if setUp == nil && tearDown == nil {
		return nil
	}
	return &CommandFixture{
		SetUpConfig:    setUp,
		TearDownConfig: tearDown,
		Shell:          f.Shell,
	}
}
