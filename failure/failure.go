// Package failure defines the closed set of failure signals a test body, setup or
// teardown can raise, and the single mapping from a signal to a result status.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Kind tags a failure signal
type Kind int

const (
	KindUnclassified Kind = iota
	KindCancelled
	KindAssertion
	KindIgnore
	KindInconclusive
	KindSuccess
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindAssertion:
		return "assertion"
	case KindIgnore:
		return "ignore"
	case KindInconclusive:
		return "inconclusive"
	case KindSuccess:
		return "success"
	default:
		return "unclassified"
	}
}

// Status maps a kind to the status it produces. The mapping is total.
func (k Kind) Status() types.TestStatus {
	switch k {
	case KindCancelled:
		return types.TestStatusCancelled
	case KindAssertion:
		return types.TestStatusFail
	case KindIgnore:
		return types.TestStatusIgnored
	case KindInconclusive:
		return types.TestStatusInconclusive
	case KindSuccess:
		return types.TestStatusPass
	default:
		return types.TestStatusError
	}
}

// Signal is an error carrying an explicit failure kind. Test bodies return one to end
// with something other than an unexpected error.
type Signal struct {
	Kind    Kind
	Message string
	Cause   error
}

func (s *Signal) Error() string {
	if s.Message == "" && s.Cause != nil {
		return fmt.Sprintf("%s: %v", s.Kind, s.Cause)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

func (s *Signal) Unwrap() error {
	return s.Cause
}

// Assertion signals an expected-but-wrong outcome
func Assertion(format string, args ...any) error {
	return &Signal{Kind: KindAssertion, Message: fmt.Sprintf(format, args...)}
}

// Ignore signals that the test decided not to run to completion
func Ignore(reason string) error {
	return &Signal{Kind: KindIgnore, Message: reason}
}

// Inconclusive signals that the test could not decide
func Inconclusive(reason string) error {
	return &Signal{Kind: KindInconclusive, Message: reason}
}

// Pass ends a test early with success
func Pass(message string) error {
	return &Signal{Kind: KindSuccess, Message: message}
}

// Cancelled signals that the node observed a cancellation request
func Cancelled(cause error) error {
	return &Signal{Kind: KindCancelled, Message: "execution cancelled", Cause: cause}
}

// InvocationError wraps a failure that escaped a call indirectly, such as a recovered
// panic. Classification always looks through it to the inner cause.
type InvocationError struct {
	Cause error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation failed: %v", e.Cause)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// FromPanic converts a recovered panic value into an InvocationError. The inner error
// records the stack at the point of recovery, which still contains the panicking frames.
func FromPanic(rec any) error {
	if err, ok := rec.(error); ok {
		return &InvocationError{Cause: pkgerrors.WithStack(err)}
	}
	return &InvocationError{Cause: pkgerrors.Errorf("panic: %v", rec)}
}

// Classified is the outcome of classifying an error
type Classified struct {
	Kind    Kind
	Message string
	Trace   string
}

// Status returns the status the classification maps to
func (c Classified) Status() types.TestStatus {
	return c.Kind.Status()
}

// Classify converts any error into exactly one failure kind. Invocation wrappers are
// removed first; an explicit Signal anywhere in the chain decides the kind; context
// cancellation maps to KindCancelled; everything else is unclassified, with message and
// trace synthesized from the unwrapped cause.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Kind: KindSuccess}
	}
	cause := Unwrap(err)

	var sig *Signal
	if errors.As(cause, &sig) {
		return Classified{Kind: sig.Kind, Message: sig.Message, Trace: traceOf(sig.Cause)}
	}
	if errors.Is(cause, context.Canceled) {
		return Classified{Kind: KindCancelled, Message: "execution cancelled"}
	}

	trace := traceOf(cause)
	if trace == "" {
		trace = synthesizeTrace(cause)
	}
	return Classified{
		Kind:    KindUnclassified,
		Message: cause.Error(),
		Trace:   trace,
	}
}

// WithStack records the caller's stack on err unless the chain already carries one
func WithStack(err error) error {
	if err == nil || traceOf(err) != "" {
		return err
	}
	return pkgerrors.WithStack(err)
}

// Unwrap strips any number of nested InvocationError wrappers
func Unwrap(err error) error {
	for {
		var inv *InvocationError
		if !errors.As(err, &inv) || inv.Cause == nil {
			return err
		}
		err = inv.Cause
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// traceOf returns the deepest stack trace recorded in the chain, if any
func traceOf(err error) string {
	var trace string
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			trace = fmt.Sprintf("%+v", st.StackTrace())
		}
		err = errors.Unwrap(err)
	}
	return trace
}

// synthesizeTrace describes a stackless error chain, one wrapped error per line,
// followed by the stack of the classifying goroutine.
func synthesizeTrace(err error) string {
	var b strings.Builder
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		fmt.Fprintf(&b, "%T: %v\n", cur, cur)
	}
	b.WriteString(strings.TrimPrefix(traceOf(pkgerrors.WithStack(err)), "\n"))
	return b.String()
}
