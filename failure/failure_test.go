package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  types.TestStatus
		message string
	}{
		{"nil", nil, KindSuccess, types.TestStatusPass, ""},
		{"assertion", Assertion("want %d got %d", 1, 2), KindAssertion, types.TestStatusFail, "want 1 got 2"},
		{"ignore", Ignore("not today"), KindIgnore, types.TestStatusIgnored, "not today"},
		{"inconclusive", Inconclusive("maybe"), KindInconclusive, types.TestStatusInconclusive, "maybe"},
		{"explicit pass", Pass("early"), KindSuccess, types.TestStatusPass, "early"},
		{"cancelled signal", Cancelled(context.Canceled), KindCancelled, types.TestStatusCancelled, "execution cancelled"},
		{"context cancellation", fmt.Errorf("run: %w", context.Canceled), KindCancelled, types.TestStatusCancelled, "execution cancelled"},
		{"plain error", errors.New("boom"), KindUnclassified, types.TestStatusError, "boom"},
		{"deadline is an error", context.DeadlineExceeded, KindUnclassified, types.TestStatusError, "context deadline exceeded"},
		{"wrapped signal", fmt.Errorf("outer: %w", Assertion("inner")), KindAssertion, types.TestStatusFail, "inner"},
		{"invocation wrapped signal", &InvocationError{Cause: Ignore("nested")}, KindIgnore, types.TestStatusIgnored, "nested"},
		{"doubly wrapped plain error", &InvocationError{Cause: &InvocationError{Cause: errors.New("deep")}}, KindUnclassified, types.TestStatusError, "deep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.status, c.Status())
			assert.Equal(t, tt.message, c.Message)
		})
	}
}

func TestUnclassifiedTraceIsSynthesized(t *testing.T) {
	t.Run("stackless error", func(t *testing.T) {
		c := Classify(fmt.Errorf("setup: %w", errors.New("database unreachable")))
		assert.Equal(t, KindUnclassified, c.Kind)
		assert.Contains(t, c.Trace, "*fmt.wrapError: setup: database unreachable")
		assert.Contains(t, c.Trace, "*errors.errorString: database unreachable")
		assert.Contains(t, c.Trace, "failure.Classify")
	})

	t.Run("recorded stack is preferred", func(t *testing.T) {
		err := WithStack(errors.New("database unreachable"))
		c := Classify(err)
		assert.NotContains(t, c.Trace, "errorString")
		assert.Contains(t, c.Trace, "TestUnclassifiedTraceIsSynthesized")
	})
}

func TestWithStack(t *testing.T) {
	assert.NoError(t, WithStack(nil))

	plain := errors.New("boom")
	wrapped := WithStack(plain)
	assert.ErrorIs(t, wrapped, plain)
	assert.Equal(t, "boom", wrapped.Error())
	assert.Same(t, wrapped, WithStack(wrapped), "a chain with a stack is left alone")

	sig := Assertion("nope")
	assert.Equal(t, KindAssertion, Classify(WithStack(sig)).Kind)
}

func TestKindStatusIsTotal(t *testing.T) {
	seen := make(map[types.TestStatus]bool)
	for k := KindUnclassified; k <= KindSuccess; k++ {
		status := k.Status()
		require.True(t, status.IsValid(), "kind %s", k)
		assert.False(t, seen[status], "kind %s maps to a status already used", k)
		seen[status] = true
	}
	assert.Equal(t, types.TestStatusError, Kind(99).Status())
}

func TestFromPanic(t *testing.T) {
	t.Run("string value", func(t *testing.T) {
		err := recoverInto(func() { panic("kaboom") })
		var inv *InvocationError
		require.ErrorAs(t, err, &inv)

		c := Classify(err)
		assert.Equal(t, KindUnclassified, c.Kind)
		assert.Equal(t, "panic: kaboom", c.Message)
		assert.Contains(t, c.Trace, "recoverInto")
	})

	t.Run("signal value", func(t *testing.T) {
		err := recoverInto(func() { panic(Assertion("bad value")) })
		c := Classify(err)
		assert.Equal(t, KindAssertion, c.Kind)
		assert.Equal(t, "bad value", c.Message)
	})

	t.Run("runtime error", func(t *testing.T) {
		err := recoverInto(func() {
			var m map[string]int
			m["x"] = 1
		})
		c := Classify(err)
		assert.Equal(t, KindUnclassified, c.Kind)
		assert.Contains(t, c.Message, "assignment to entry in nil map")
		assert.NotEmpty(t, c.Trace)
	})
}

func recoverInto(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = FromPanic(rec)
		}
	}()
	fn()
	return nil
}
