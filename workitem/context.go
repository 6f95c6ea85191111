package workitem

import (
	"maps"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ExecutionContext is the environment a node runs in. It is copy-on-write: every With
// method returns a new context, so a context handed to running children never changes
// underneath them.
type ExecutionContext struct {
	workDir  string
	env      map[string]string
	fixtures map[string]any
	timeout  time.Duration
	log      log.Logger
}

// NewExecutionContext creates the root context
func NewExecutionContext(workDir string, lgr log.Logger) *ExecutionContext {
	if lgr == nil {
		lgr = log.Root()
	}
	return &ExecutionContext{
		workDir:  workDir,
		env:      make(map[string]string),
		fixtures: make(map[string]any),
		log:      lgr,
	}
}

func (ec *ExecutionContext) clone() *ExecutionContext {
	out := &ExecutionContext{
		workDir:  ec.workDir,
		env:      maps.Clone(ec.env),
		fixtures: maps.Clone(ec.fixtures),
		timeout:  ec.timeout,
		log:      ec.log,
	}
	if out.env == nil {
		out.env = make(map[string]string)
	}
	if out.fixtures == nil {
		out.fixtures = make(map[string]any)
	}
	return out
}

// WithEnv returns a context with kv merged over the current environment
func (ec *ExecutionContext) WithEnv(kv map[string]string) *ExecutionContext {
	if len(kv) == 0 {
		return ec
	}
	out := ec.clone()
	maps.Copy(out.env, kv)
	return out
}

// WithFixture returns a context carrying a named fixture value
func (ec *ExecutionContext) WithFixture(name string, value any) *ExecutionContext {
	out := ec.clone()
	out.fixtures[name] = value
	return out
}

// WithTimeout returns a context with a different default test timeout
func (ec *ExecutionContext) WithTimeout(d time.Duration) *ExecutionContext {
	out := ec.clone()
	out.timeout = d
	return out
}

// WithLogger returns a context logging through lgr
func (ec *ExecutionContext) WithLogger(lgr log.Logger) *ExecutionContext {
	out := ec.clone()
	out.log = lgr
	return out
}

func (ec *ExecutionContext) WorkDir() string        { return ec.workDir }
func (ec *ExecutionContext) Timeout() time.Duration { return ec.timeout }
func (ec *ExecutionContext) Log() log.Logger        { return ec.log }

// Getenv looks up a fixture environment variable
func (ec *ExecutionContext) Getenv(key string) (string, bool) {
	v, ok := ec.env[key]
	return v, ok
}

// Env returns a copy of the fixture environment
func (ec *ExecutionContext) Env() map[string]string {
	return maps.Clone(ec.env)
}

// Environ returns the fixture environment as sorted KEY=VALUE pairs
func (ec *ExecutionContext) Environ() []string {
	out := make([]string, 0, len(ec.env))
	for k, v := range ec.env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Fixture returns a named fixture value
func (ec *ExecutionContext) Fixture(name string) (any, bool) {
	v, ok := ec.fixtures[name]
	return v, ok
}
