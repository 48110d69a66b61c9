package pass

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"passviz/internal/ir"
	"passviz/internal/trace"
)

type item struct {
	pass   Pass
	nested *Manager
}

// Manager holds an ordered pipeline of passes. Nested managers run their own
// pipeline on every direct child operation named by their anchor.
//
// A Run is one collection session: instrumentations see the events of that
// run and are finalized when it returns. Instrumentations always belong to
// the top-level manager, even when registered through a nested one.
type Manager struct {
	anchor string
	root   *Manager // nil at top level
	items  []item
	inst   instrumentor
	// finalized is set once the instrumentations have been finalized.
	finalized bool
}

// NewManager returns an empty top-level pipeline.
func NewManager() *Manager {
	return &Manager{}
}

// Anchor returns the operation name a nested manager runs on ("" at top level).
func (m *Manager) Anchor() string { return m.anchor }

// Add appends passes to the pipeline.
func (m *Manager) Add(passes ...Pass) *Manager {
	for _, p := range passes {
		if p != nil {
			m.items = append(m.items, item{pass: p})
		}
	}
	return m
}

// Nest appends a nested pipeline anchored on operations named anchor and
// returns it for population.
func (m *Manager) Nest(anchor string) *Manager {
	nested := &Manager{anchor: anchor, root: m.top()}
	m.items = append(m.items, item{nested: nested})
	return nested
}

// Size returns the number of passes in the pipeline, nested ones included.
func (m *Manager) Size() int {
	n := 0
	for _, it := range m.items {
		if it.pass != nil {
			n++
		} else {
			n += it.nested.Size()
		}
	}
	return n
}

func (m *Manager) top() *Manager {
	if m.root != nil {
		return m.root
	}
	return m
}

// AddInstrumentation registers an observer with the top-level manager, so
// it sees every pass of the run. Observers are kept in registration order
// and do not interfere with each other.
func (m *Manager) AddInstrumentation(i Instrumentation) {
	m.top().inst.add(i)
}

// Instrumentations returns the observers registered with the top-level
// manager, in order.
func (m *Manager) Instrumentations() []Instrumentation {
	return append([]Instrumentation(nil), m.top().inst.list...)
}

// Run executes the pipeline on op. The first failing pass stops the
// pipeline. Instrumentations are finalized on every exit path; their
// failures are reported as *FinalizeError, joined with the pipeline error
// when both occur.
//
// Only the top-level manager can be run. Once a run has finalized its
// instrumentations, later runs fail with ErrSessionFinalized; build a new
// manager per session.
func (m *Manager) Run(ctx context.Context, op *ir.Operation) (err error) {
	if op == nil {
		return fmt.Errorf("pass manager: nil operation")
	}
	if m.root != nil {
		return fmt.Errorf("pass manager: cannot run nested pipeline %q directly", m.anchor)
	}
	if m.finalized && len(m.inst.list) > 0 {
		return fmt.Errorf("pass manager: %w", ErrSessionFinalized)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeSession, "pipeline", trace.CurrentSpan(ctx))
	span.WithExtra("passes", strconv.Itoa(m.Size()))
	ctx = trace.WithSpan(ctx, span.ID())

	defer func() {
		m.finalized = true
		if finErr := m.inst.finalize(); finErr != nil {
			if err == nil {
				err = finErr
			} else {
				err = errors.Join(err, finErr)
			}
		}
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		span.End(detail)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
		}
	}()

	return m.runPipeline(ctx, &m.inst, op)
}

func (m *Manager) runPipeline(ctx context.Context, inst *instrumentor, op *ir.Operation) error {
	for _, it := range m.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if it.pass != nil {
			if err := runPass(ctx, inst, it.pass, op); err != nil {
				return err
			}
			continue
		}
		// Snapshot the anchors first: passes may restructure op's children.
		var targets []*ir.Operation
		for _, child := range op.Children() {
			if child.Name() == it.nested.anchor {
				targets = append(targets, child)
			}
		}
		for _, target := range targets {
			if err := it.nested.runPipeline(ctx, inst, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func runPass(ctx context.Context, inst *instrumentor, p Pass, op *ir.Operation) error {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, p.Name(), trace.CurrentSpan(ctx))
	span.WithExtra("op", op.String())

	inst.runBeforePass(p, op)
	if err := safeRun(trace.WithSpan(ctx, span.ID()), p, op); err != nil {
		inst.runAfterPassFailed(p, op, err)
		span.End(err.Error())
		return fmt.Errorf("pass %q on %s: %w", p.Name(), op.Name(), err)
	}
	inst.runAfterPass(p, op)
	span.End("")
	return nil
}

func safeRun(ctx context.Context, p Pass, op *ir.Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
		}
	}()
	return p.Run(ctx, op)
}
