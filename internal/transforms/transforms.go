// Package transforms provides the passes available to textual pipelines.
package transforms

import (
	"context"
	"fmt"
	"strings"

	"passviz/internal/ir"
	"passviz/internal/pass"
)

// Attribute and operation names the passes understand.
const (
	AttrDead    = "dead"
	AttrSymName = "sym_name"
	AttrCallee  = "callee"

	OpFunc   = "func.func"
	OpCall   = "func.call"
	OpReturn = "func.return"
)

// RegisterAll installs every pass of this package into reg.
func RegisterAll(reg *pass.Registry) error {
	for _, r := range []pass.Registration{
		{
			Argument: "dce",
			Summary:  "erase operations marked with the `dead` attribute",
			New:      func(pass.Options) (pass.Pass, error) { return DCE{}, nil },
		},
		{
			Argument: "inline",
			Summary:  "inline func.call sites with the body of their callee",
			New:      func(pass.Options) (pass.Pass, error) { return Inline{}, nil },
		},
		{
			Argument: "convert-dialect",
			Summary:  "rename operations of dialect `from` into dialect `to`",
			New:      newConvertDialect,
		},
		{
			Argument: "strip-dialect",
			Summary:  "erase all operations of `dialect` with their nested operations",
			New:      newStripDialect,
		},
	} {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every pass of this package.
func NewRegistry() *pass.Registry {
	reg := pass.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		// registrations above are static
		panic(err)
	}
	return reg
}

// DCE erases operations carrying the dead attribute.
type DCE struct{}

func (DCE) Name() string { return "DeadCodeElimination" }

func (DCE) Run(ctx context.Context, op *ir.Operation) error {
	dead := ir.Collect(op, func(o *ir.Operation) bool {
		_, ok := o.Attr(AttrDead)
		return ok && o != op
	})
	for _, d := range dead {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.Erase()
	}
	return nil
}

// Inline replaces every func.call under op with a copy of the callee body.
// The callee is looked up among the func.func operations under op; the
// trailing func.return is not copied. Each call site is inlined once.
type Inline struct{}

func (Inline) Name() string { return "Inline" }

func (Inline) Run(ctx context.Context, op *ir.Operation) error {
	funcs := make(map[string]*ir.Operation)
	for _, fn := range ir.Collect(op, func(o *ir.Operation) bool { return o.Name() == OpFunc }) {
		if sym, ok := fn.Attr(AttrSymName); ok {
			funcs[sym] = fn
		}
	}
	calls := ir.Collect(op, func(o *ir.Operation) bool { return o.Name() == OpCall })
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		callee, _ := call.Attr(AttrCallee)
		fn, ok := funcs[callee]
		if !ok {
			continue
		}
		if fn == call || ir.IsAncestor(fn, call) {
			// recursive call; leave it
			continue
		}
		parent := call.Parent()
		if parent == nil {
			continue
		}
		var body []*ir.Operation
		for _, inner := range fn.Children() {
			if inner.Name() == OpReturn {
				continue
			}
			body = append(body, inner.Clone())
		}
		if err := parent.Replace(call, body...); err != nil {
			return fmt.Errorf("inline %q: %w", callee, err)
		}
	}
	return nil
}

// ConvertDialect moves operations of one dialect into another by renaming
// them, e.g. arith.addi -> llvm.addi.
type ConvertDialect struct {
	From string
	To   string
}

func newConvertDialect(opts pass.Options) (pass.Pass, error) {
	from, err := opts.Require("from")
	if err != nil {
		return nil, err
	}
	to, err := opts.Require("to")
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("convert-dialect: from and to are both %q", from)
	}
	return ConvertDialect{From: from, To: to}, nil
}

func (ConvertDialect) Name() string { return "ConvertDialect" }

func (c ConvertDialect) Run(ctx context.Context, op *ir.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ictx := op.Context(); ictx != nil && !ictx.AllowsUnregistered() {
		if _, ok := ictx.Dialect(c.To); !ok {
			return fmt.Errorf("%w %q", ir.ErrUnregisteredDialect, c.To)
		}
	}
	ir.Walk(op, func(o *ir.Operation) {
		if o.Namespace() == c.From {
			o.Rename(c.To + strings.TrimPrefix(o.Name(), c.From))
		}
	})
	return nil
}

// StripDialect erases every operation of one dialect, with its subtree.
type StripDialect struct {
	Dialect string
}

func newStripDialect(opts pass.Options) (pass.Pass, error) {
	d, err := opts.Require("dialect")
	if err != nil {
		return nil, err
	}
	return StripDialect{Dialect: d}, nil
}

func (StripDialect) Name() string { return "StripDialect" }

func (s StripDialect) Run(ctx context.Context, op *ir.Operation) error {
	victims := ir.Collect(op, func(o *ir.Operation) bool {
		return o != op && o.Namespace() == s.Dialect
	})
	for _, v := range victims {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.Erase()
	}
	return nil
}
