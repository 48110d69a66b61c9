package pass

import (
	"fmt"
	"strings"

	"passviz/internal/ir"
)

// Instrumentation observes pass execution. Embed BaseInstrumentation to
// implement only the hooks you need.
//
// The manager calls the hooks serially from the goroutine running the
// pipeline. Before-hooks run in registration order, after-hooks in reverse
// registration order. Finalize is called exactly once at the end of every
// Run, whether the pipeline succeeded, failed or panicked.
type Instrumentation interface {
	RunBeforePass(p Pass, op *ir.Operation)
	// RunAfterPass is called after p completed successfully on op.
	RunAfterPass(p Pass, op *ir.Operation)
	RunAfterPassFailed(p Pass, op *ir.Operation, err error)
	Finalize() error
}

// BaseInstrumentation provides no-op hooks.
type BaseInstrumentation struct{}

func (BaseInstrumentation) RunBeforePass(Pass, *ir.Operation)             {}
func (BaseInstrumentation) RunAfterPass(Pass, *ir.Operation)              {}
func (BaseInstrumentation) RunAfterPassFailed(Pass, *ir.Operation, error) {}
func (BaseInstrumentation) Finalize() error                               { return nil }

// FinalizeError collects failures reported by instrumentations while the
// session was being finalized. It never means the pipeline itself failed.
type FinalizeError struct {
	Errs []error
}

func (e *FinalizeError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "instrumentation finalize: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *FinalizeError) Unwrap() []error { return e.Errs }

// instrumentor is the ordered observer list of a Manager.
type instrumentor struct {
	list []Instrumentation
}

func (in *instrumentor) add(i Instrumentation) {
	if i != nil {
		in.list = append(in.list, i)
	}
}

func (in *instrumentor) runBeforePass(p Pass, op *ir.Operation) {
	for _, i := range in.list {
		i.RunBeforePass(p, op)
	}
}

func (in *instrumentor) runAfterPass(p Pass, op *ir.Operation) {
	for k := len(in.list) - 1; k >= 0; k-- {
		in.list[k].RunAfterPass(p, op)
	}
}

func (in *instrumentor) runAfterPassFailed(p Pass, op *ir.Operation, err error) {
	for k := len(in.list) - 1; k >= 0; k-- {
		in.list[k].RunAfterPassFailed(p, op, err)
	}
}

// finalize calls every Finalize, even when earlier ones fail or panic.
func (in *instrumentor) finalize() error {
	var errs []error
	for _, i := range in.list {
		if err := finalizeOne(i); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &FinalizeError{Errs: errs}
}

func finalizeOne(i Instrumentation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%T: finalize panicked: %v", i, r)
		}
	}()
	return i.Finalize()
}
