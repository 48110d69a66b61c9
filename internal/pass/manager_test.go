package pass_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"passviz/internal/ir"
	"passviz/internal/pass"
)

// recorder logs every hook invocation as "tag:hook:pass@op".
type recorder struct {
	tag       string
	log       *[]string
	finalized int
	finErr    error
}

func (r *recorder) RunBeforePass(p pass.Pass, op *ir.Operation) {
	*r.log = append(*r.log, fmt.Sprintf("%s:before:%s@%s", r.tag, p.Name(), op.Name()))
}

func (r *recorder) RunAfterPass(p pass.Pass, op *ir.Operation) {
	*r.log = append(*r.log, fmt.Sprintf("%s:after:%s@%s", r.tag, p.Name(), op.Name()))
}

func (r *recorder) RunAfterPassFailed(p pass.Pass, op *ir.Operation, _ error) {
	*r.log = append(*r.log, fmt.Sprintf("%s:failed:%s@%s", r.tag, p.Name(), op.Name()))
}

func (r *recorder) Finalize() error {
	r.finalized++
	*r.log = append(*r.log, r.tag+":finalize")
	return r.finErr
}

func module(ctx *ir.Context) *ir.Operation {
	m := ctx.MustOp("builtin.module", nil)
	m.Append(
		ctx.MustOp("func.func", map[string]string{"sym_name": "a"}),
		ctx.MustOp("arith.constant", nil),
		ctx.MustOp("func.func", map[string]string{"sym_name": "b"}),
	)
	return m
}

func newContext() *ir.Context {
	ctx := ir.NewContext()
	ctx.SetAllowUnregistered(true)
	return ctx
}

func noop(name string) pass.Pass {
	return pass.NewFunc(name, func(context.Context, *ir.Operation) error { return nil })
}

func TestManager_HookOrderAndNesting(t *testing.T) {
	var log []string
	first := &recorder{tag: "1", log: &log}
	second := &recorder{tag: "2", log: &log}

	pm := pass.NewManager()
	pm.AddInstrumentation(first)
	pm.AddInstrumentation(second)
	pm.Add(noop("Top"))
	pm.Nest("func.func").Add(noop("Inner"))

	if pm.Size() != 2 {
		t.Fatalf("Size = %d", pm.Size())
	}
	if err := pm.Run(context.Background(), module(newContext())); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"1:before:Top@builtin.module", "2:before:Top@builtin.module",
		"2:after:Top@builtin.module", "1:after:Top@builtin.module",
		"1:before:Inner@func.func", "2:before:Inner@func.func",
		"2:after:Inner@func.func", "1:after:Inner@func.func",
		"1:before:Inner@func.func", "2:before:Inner@func.func",
		"2:after:Inner@func.func", "1:after:Inner@func.func",
		"1:finalize", "2:finalize",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Fatalf("hook log (-want +got):\n%s", diff)
	}
}

func TestManager_FailureStopsPipelineAndFinalizes(t *testing.T) {
	var log []string
	rec := &recorder{tag: "r", log: &log}
	boom := errors.New("boom")

	pm := pass.NewManager()
	pm.AddInstrumentation(rec)
	pm.Add(noop("Ok"))
	pm.Add(pass.NewFunc("Bad", func(context.Context, *ir.Operation) error { return boom }))
	pm.Add(noop("Never"))

	err := pm.Run(context.Background(), module(newContext()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var finErr *pass.FinalizeError
	if errors.As(err, &finErr) {
		t.Fatalf("pipeline failure must not look like a finalize failure")
	}
	want := []string{
		"r:before:Ok@builtin.module", "r:after:Ok@builtin.module",
		"r:before:Bad@builtin.module", "r:failed:Bad@builtin.module",
		"r:finalize",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Fatalf("hook log (-want +got):\n%s", diff)
	}
}

func TestManager_PanicIsRecoveredAndFinalizes(t *testing.T) {
	var log []string
	rec := &recorder{tag: "r", log: &log}
	pm := pass.NewManager()
	pm.AddInstrumentation(rec)
	pm.Add(pass.NewFunc("Crash", func(context.Context, *ir.Operation) error { panic("kaboom") }))

	err := pm.Run(context.Background(), module(newContext()))
	if !errors.Is(err, pass.ErrPassPanicked) {
		t.Fatalf("expected ErrPassPanicked, got %v", err)
	}
	if rec.finalized != 1 {
		t.Fatalf("finalized %d times", rec.finalized)
	}
}

type panickyFinalizer struct{ pass.BaseInstrumentation }

func (panickyFinalizer) Finalize() error { panic("finalize exploded") }

func TestManager_FinalizeErrorsAreSeparate(t *testing.T) {
	var log []string
	sinkDown := errors.New("sink down")
	failing := &recorder{tag: "f", log: &log, finErr: sinkDown}
	after := &recorder{tag: "a", log: &log}

	pm := pass.NewManager()
	pm.AddInstrumentation(failing)
	pm.AddInstrumentation(panickyFinalizer{})
	pm.AddInstrumentation(after)
	pm.Add(noop("Ok"))

	err := pm.Run(context.Background(), module(newContext()))
	var finErr *pass.FinalizeError
	if !errors.As(err, &finErr) {
		t.Fatalf("expected *FinalizeError, got %v", err)
	}
	if len(finErr.Errs) != 2 || !errors.Is(err, sinkDown) {
		t.Fatalf("unexpected finalize errors: %v", finErr.Errs)
	}
	if after.finalized != 1 {
		t.Fatalf("later instrumentation was not finalized")
	}
}

func TestManager_CancelledContext(t *testing.T) {
	var log []string
	rec := &recorder{tag: "r", log: &log}
	pm := pass.NewManager()
	pm.AddInstrumentation(rec)
	pm.Add(noop("Ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pm.Run(ctx, module(newContext())); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff([]string{"r:finalize"}, log); diff != "" {
		t.Fatalf("hook log (-want +got):\n%s", diff)
	}
}

func TestManager_NestedAnchorsSnapshot(t *testing.T) {
	ctx := newContext()
	m := module(ctx)
	visited := 0
	pm := pass.NewManager()
	pm.Nest("func.func").Add(pass.NewFunc("EraseSelf", func(_ context.Context, op *ir.Operation) error {
		visited++
		op.Erase()
		return nil
	}))
	if err := pm.Run(context.Background(), m); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if visited != 2 || m.NumChildren() != 1 {
		t.Fatalf("visited=%d children=%d", visited, m.NumChildren())
	}
}

func TestTimingInstrumentation(t *testing.T) {
	timing := pass.NewTimingInstrumentation()
	pm := pass.NewManager()
	pm.AddInstrumentation(timing)
	pm.Add(noop("A"))
	pm.Nest("func.func").Add(noop("B"))

	if err := pm.Run(context.Background(), module(newContext())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := timing.Report()
	if len(r.Passes) != 2 || r.Passes[0].Runs != 1 || r.Passes[1].Runs != 2 {
		t.Fatalf("unexpected timing report: %+v", r.Passes)
	}
}

func TestManager_NestedInstrumentationReachesTopLevel(t *testing.T) {
	var log []string
	rec := &recorder{tag: "n", log: &log}

	pm := pass.NewManager()
	pm.Add(noop("Top"))
	nested := pm.Nest("func.func")
	nested.Add(noop("Inner"))
	nested.AddInstrumentation(rec)

	if got := len(pm.Instrumentations()); got != 1 {
		t.Fatalf("top-level manager sees %d instrumentations", got)
	}
	if err := pm.Run(context.Background(), module(newContext())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		"n:before:Top@builtin.module", "n:after:Top@builtin.module",
		"n:before:Inner@func.func", "n:after:Inner@func.func",
		"n:before:Inner@func.func", "n:after:Inner@func.func",
		"n:finalize",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Fatalf("hook log (-want +got):\n%s", diff)
	}
	if err := nested.Run(context.Background(), module(newContext())); err == nil {
		t.Fatalf("running a nested pipeline directly must fail")
	}
	if rec.finalized != 1 {
		t.Fatalf("finalized %d times", rec.finalized)
	}
}

func TestManager_SecondRunAfterFinalize(t *testing.T) {
	var log []string
	rec := &recorder{tag: "r", log: &log}
	pm := pass.NewManager()
	pm.AddInstrumentation(rec)
	pm.Add(noop("Ok"))

	if err := pm.Run(context.Background(), module(newContext())); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err := pm.Run(context.Background(), module(newContext()))
	if !errors.Is(err, pass.ErrSessionFinalized) {
		t.Fatalf("expected ErrSessionFinalized, got %v", err)
	}
	if rec.finalized != 1 || len(log) != 3 {
		t.Fatalf("second run reached the instrumentation: %v", log)
	}

	bare := pass.NewManager().Add(noop("Ok"))
	for i := range 2 {
		if err := bare.Run(context.Background(), module(newContext())); err != nil {
			t.Fatalf("run %d without instrumentations: %v", i, err)
		}
	}
}
