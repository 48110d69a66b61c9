// Package passviz records a dialect census after every pass of a pipeline.
//
// A Collector is a pass instrumentation. After each successful pass it
// counts the operations of every dialect in the whole tree the pass ran on
// and appends one entry to a JSON document:
//
//	[
//	  {
//	    "passName": "Inline",
//	    "dialectOpCounts": [
//	      { "dialectName": "arith", "opCount": 3 }
//	    ]
//	  }
//	]
//
// The document is handed to a Sink exactly once, when the session ends.
package passviz

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"passviz/internal/census"
	"passviz/internal/ir"
	"passviz/internal/jsonw"
	"passviz/internal/pass"
	"passviz/internal/trace"
)

// State is the lifecycle state of a Collector.
type State uint8

const (
	StateCreated State = iota
	StateActive
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Option configures a Collector.
type Option func(*Collector)

// WithIndent sets the indentation step of the document (0 = compact).
func WithIndent(step int) Option {
	return func(c *Collector) { c.indent = step }
}

// WithTracer emits session and census events to t.
func WithTracer(t trace.Tracer) Option {
	return func(c *Collector) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id uuid.UUID) Option {
	return func(c *Collector) { c.id = id }
}

// Collector is the data-visualization instrumentation. It is driven
// serially by one pass manager and is not safe for concurrent use.
type Collector struct {
	pass.BaseInstrumentation

	id     uuid.UUID
	sink   Sink
	w      *jsonw.Writer
	indent int
	tracer trace.Tracer
	state  State
	events int
}

// New creates a collector writing to sink and opens its document.
// A nil sink selects DebugSink.
func New(sink Sink, opts ...Option) *Collector {
	c := &Collector{
		id:     uuid.New(),
		sink:   sink,
		indent: jsonw.DefaultIndent,
		tracer: trace.Nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = DebugSink()
	}
	c.w = jsonw.NewIndent(c.indent)
	c.w.ArrayBegin()
	c.state = StateActive
	trace.Point(c.tracer, trace.ScopeSession, "passviz.open", "", 0, map[string]string{"session": c.id.String()})
	return c
}

// Enable attaches a new collector to pm and returns it. The collector
// belongs to pm's top-level pipeline even when pm is a nested manager.
// One Run of the manager is one session: the run finalizes the collector,
// and running the same manager again fails with pass.ErrSessionFinalized.
func Enable(pm *pass.Manager, sink Sink, opts ...Option) *Collector {
	c := New(sink, opts...)
	pm.AddInstrumentation(c)
	return c
}

// ID returns the session identifier.
func (c *Collector) ID() uuid.UUID { return c.id }

// State returns the lifecycle state.
func (c *Collector) State() State { return c.state }

// Events returns the number of entries written so far.
func (c *Collector) Events() int { return c.events }

// Document returns the buffered document. It is complete once the
// collector is finalized.
func (c *Collector) Document() []byte { return c.w.Bytes() }

// RunAfterPass appends the census of op's whole tree under p's name.
// Notifications after finalization are ignored.
func (c *Collector) RunAfterPass(p pass.Pass, op *ir.Operation) {
	if c.state != StateActive {
		return
	}
	entries := census.Take(op).Entries()

	c.w.Object(func() {
		c.w.Attribute("passName", p.Name())
		c.w.AttributeArray("dialectOpCounts", func() {
			for _, e := range entries {
				c.w.Object(func() {
					c.w.Attribute("dialectName", e.DialectName)
					c.w.Attribute("opCount", e.OpCount)
				})
			}
		})
	})
	c.events++

	if c.tracer.Enabled() {
		extra := make(map[string]string, len(entries)+1)
		extra["session"] = c.id.String()
		for _, e := range entries {
			extra[e.DialectName] = strconv.Itoa(e.OpCount)
		}
		trace.Point(c.tracer, trace.ScopeOp, "census", p.Name(), 0, extra)
	}
}

// Finalize closes the document and writes it to the sink. Only the first
// call has an effect. Sink failures wrap ErrSinkUnavailable.
func (c *Collector) Finalize() error {
	if c.state == StateFinalized {
		return nil
	}
	c.state = StateFinalized
	c.w.ArrayEnd()
	trace.Point(c.tracer, trace.ScopeSession, "passviz.close", strconv.Itoa(c.events)+" entries", 0,
		map[string]string{"session": c.id.String()})

	if err := c.sink.Write(c.w.Bytes()); err != nil {
		return fmt.Errorf("%w: session %s: %w", ErrSinkUnavailable, c.id, err)
	}
	return nil
}
