package workitem

// Dispatcher starts the execution of a child work item
type Dispatcher interface {
	Dispatch(fn func())
}

// GoDispatcher runs every dispatched child on its own goroutine
type GoDispatcher struct{}

func (GoDispatcher) Dispatch(fn func()) {
	go fn()
}

// InlineDispatcher runs each child to completion before the next one is dispatched.
// It is used for serial runs.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(fn func()) {
	fn()
}
