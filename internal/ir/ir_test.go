package ir_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"passviz/internal/ir"
)

func newContext() *ir.Context {
	ctx := ir.NewContext()
	for _, ns := range []string{"func", "arith", "scf", "llvm"} {
		ctx.RegisterDialect(ir.Dialect{Namespace: ns})
	}
	return ctx
}

func names(ops []*ir.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Name()
	}
	return out
}

func TestNamespaceOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"module", ""},
		{"builtin.module", ""},
		{"arith.addi", "arith"},
		{"scf.for.body", "scf"},
		{".weird", ""},
	}
	for _, tt := range tests {
		if got := ir.NamespaceOf(tt.name); got != tt.want {
			t.Errorf("NamespaceOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewOp_UnregisteredDialect(t *testing.T) {
	ctx := newContext()
	if _, err := ctx.NewOp("tosa.add", nil); !errors.Is(err, ir.ErrUnregisteredDialect) {
		t.Fatalf("expected ErrUnregisteredDialect, got %v", err)
	}
	ctx.SetAllowUnregistered(true)
	op, err := ctx.NewOp("tosa.add", nil)
	if err != nil {
		t.Fatalf("unexpected error with unregistered dialects allowed: %v", err)
	}
	if op.Namespace() != "tosa" {
		t.Fatalf("namespace = %q", op.Namespace())
	}
}

func TestTopLevelAndWalk(t *testing.T) {
	ctx := newContext()
	module := ctx.MustOp("builtin.module", nil)
	fn := ctx.MustOp("func.func", map[string]string{"sym_name": "main"})
	add := ctx.MustOp("arith.addi", nil)
	loop := ctx.MustOp("scf.for", nil)
	inner := ctx.MustOp("arith.muli", nil)
	loop.Append(inner)
	fn.Append(add, loop)
	module.Append(fn)

	if ir.TopLevel(inner) != module {
		t.Fatalf("TopLevel(inner) is not the module")
	}
	if ir.TopLevel(module) != module {
		t.Fatalf("a parentless operation must be its own top level")
	}

	seen := map[uint64]int{}
	ir.Walk(module, func(op *ir.Operation) { seen[op.ID()]++ })
	if len(seen) != 5 {
		t.Fatalf("walk visited %d distinct operations, want 5", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("operation %d visited %d times", id, n)
		}
	}
	if !ir.IsAncestor(module, inner) || ir.IsAncestor(inner, module) || ir.IsAncestor(add, add) {
		t.Fatalf("IsAncestor relation is wrong")
	}
}

func TestMutation(t *testing.T) {
	ctx := newContext()
	fn := ctx.MustOp("func.func", nil)
	a := ctx.MustOp("arith.constant", nil)
	b := ctx.MustOp("arith.addi", nil)
	c := ctx.MustOp("func.return", nil)
	fn.Append(a, b, c)

	x := ctx.MustOp("arith.muli", nil)
	if err := fn.InsertBefore(b, x); err != nil {
		t.Fatalf("InsertBefore: %v", err)
	}
	if diff := cmp.Diff([]string{"arith.constant", "arith.muli", "arith.addi", "func.return"}, names(fn.Children())); diff != "" {
		t.Fatalf("after InsertBefore (-want +got):\n%s", diff)
	}

	y := ctx.MustOp("llvm.add", nil)
	z := ctx.MustOp("llvm.mul", nil)
	if err := fn.Replace(x, y, z); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if x.Parent() != nil {
		t.Fatalf("replaced operation still has a parent")
	}
	if diff := cmp.Diff([]string{"arith.constant", "llvm.add", "llvm.mul", "arith.addi", "func.return"}, names(fn.Children())); diff != "" {
		t.Fatalf("after Replace (-want +got):\n%s", diff)
	}

	b.Erase()
	if b.Parent() != nil || fn.NumChildren() != 4 {
		t.Fatalf("Erase did not detach: parent=%v children=%d", b.Parent(), fn.NumChildren())
	}

	other := ctx.MustOp("func.func", nil)
	other.Append(a)
	if a.Parent() != other || fn.NumChildren() != 3 {
		t.Fatalf("Append must move an attached child")
	}
	if err := fn.Replace(a); err == nil {
		t.Fatalf("Replace of a non-child should fail")
	}
}

func TestMutation_SelfReferences(t *testing.T) {
	ctx := newContext()
	fn := ctx.MustOp("func.func", nil)
	a := ctx.MustOp("arith.constant", nil)
	b := ctx.MustOp("arith.addi", nil)
	fn.Append(a, b)

	if err := fn.InsertBefore(b, b); err != nil {
		t.Fatalf("InsertBefore(b, b): %v", err)
	}
	if diff := cmp.Diff([]string{"arith.constant", "arith.addi"}, names(fn.Children())); diff != "" {
		t.Fatalf("after InsertBefore(b, b) (-want +got):\n%s", diff)
	}

	x := ctx.MustOp("llvm.add", nil)
	if err := fn.Replace(a, x, a); err != nil {
		t.Fatalf("Replace keeping old: %v", err)
	}
	if a.Parent() != fn || x.Parent() != fn {
		t.Fatalf("kept operations lost their parent")
	}
	if diff := cmp.Diff([]string{"llvm.add", "arith.constant", "arith.addi"}, names(fn.Children())); diff != "" {
		t.Fatalf("after Replace keeping old (-want +got):\n%s", diff)
	}

	if err := fn.Replace(b, x, x); err == nil {
		t.Fatalf("Replace with a duplicate should fail")
	}
	if err := fn.Replace(b, nil); err == nil {
		t.Fatalf("Replace with nil should fail")
	}
	if diff := cmp.Diff([]string{"llvm.add", "arith.constant", "arith.addi"}, names(fn.Children())); diff != "" {
		t.Fatalf("failed Replace changed the tree (-want +got):\n%s", diff)
	}
}

func TestMutation_RejectsCycles(t *testing.T) {
	ctx := newContext()
	outer := ctx.MustOp("func.func", nil)
	loop := ctx.MustOp("scf.for", nil)
	inner := ctx.MustOp("arith.addi", nil)
	outer.Append(loop)
	loop.Append(inner)

	for name, err := range map[string]error{
		"append self":           outer.Append(outer),
		"append ancestor":       inner.Append(outer),
		"insert ancestor":       loop.InsertBefore(inner, outer),
		"replace with parent":   loop.Replace(inner, loop),
		"replace with ancestor": loop.Replace(inner, outer),
	} {
		if !errors.Is(err, ir.ErrCyclicNesting) {
			t.Errorf("%s: expected ErrCyclicNesting, got %v", name, err)
		}
	}

	if outer.Parent() != nil || loop.Parent() != outer || inner.Parent() != loop {
		t.Fatalf("rejected mutations changed the tree")
	}
	if outer.NumChildren() != 1 || loop.NumChildren() != 1 || inner.NumChildren() != 0 {
		t.Fatalf("rejected mutations changed child lists")
	}

	spare := ctx.MustOp("arith.muli", nil)
	if err := inner.Append(spare, outer); err == nil {
		t.Fatalf("Append with an enclosing operation should fail")
	}
	if spare.Parent() != nil {
		t.Fatalf("failed Append moved an earlier child")
	}
}

func TestClone(t *testing.T) {
	ctx := newContext()
	fn := ctx.MustOp("func.func", map[string]string{"sym_name": "f"})
	fn.Append(ctx.MustOp("arith.addi", nil))

	cp := fn.Clone()
	if cp.ID() == fn.ID() {
		t.Fatalf("clone shares identity with original")
	}
	if cp.Parent() != nil {
		t.Fatalf("clone must be detached")
	}
	if v, _ := cp.Attr("sym_name"); v != "f" {
		t.Fatalf("clone lost attributes")
	}
	cp.SetAttr("sym_name", "g")
	if v, _ := fn.Attr("sym_name"); v != "f" {
		t.Fatalf("clone aliases attributes of the original")
	}
	if cp.Children()[0].Parent() != cp {
		t.Fatalf("cloned child does not point at the clone")
	}
}

const sampleTOML = `
name = "builtin.module"

[[ops]]
name = "func.func"
attrs = { sym_name = "main" }

  [[ops.ops]]
  name = "arith.constant"

  [[ops.ops]]
  name = "scf.if"

    [[ops.ops.ops]]
    name = "arith.addi"
`

func TestDecodeTOML(t *testing.T) {
	ctx := newContext()
	root, err := ir.Decode(ctx, strings.NewReader(sampleTOML), ir.FormatTOML)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := names(ir.Collect(root, nil))
	want := []string{"builtin.module", "func.func", "arith.constant", "scf.if", "arith.addi"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded tree (-want +got):\n%s", diff)
	}
	fn := root.Children()[0]
	if v, _ := fn.Attr("sym_name"); v != "main" {
		t.Fatalf("sym_name = %q", v)
	}
}

func TestDecode_RejectsUnregistered(t *testing.T) {
	ctx := newContext()
	_, err := ir.Decode(ctx, strings.NewReader("name = \"tosa.add\"\n"), ir.FormatTOML)
	if !errors.Is(err, ir.ErrUnregisteredDialect) {
		t.Fatalf("expected ErrUnregisteredDialect, got %v", err)
	}
}

func TestRoundTripFormats(t *testing.T) {
	ctx := newContext()
	root, err := ir.Decode(ctx, strings.NewReader(sampleTOML), ir.FormatTOML)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := names(ir.Collect(root, nil))

	dir := t.TempDir()
	for _, file := range []string{"m.toml", "m.yaml", "m.irpack"} {
		path := filepath.Join(dir, file)
		if err := ir.Save(path, root); err != nil {
			t.Fatalf("Save(%s): %v", file, err)
		}
		back, err := ir.Load(newContext(), path)
		if err != nil {
			t.Fatalf("Load(%s): %v", file, err)
		}
		if diff := cmp.Diff(want, names(ir.Collect(back, nil))); diff != "" {
			t.Fatalf("%s round trip (-want +got):\n%s", file, diff)
		}
	}
}

func TestSnapshot_CorruptCount(t *testing.T) {
	ctx := newContext()
	root := ctx.MustOp("builtin.module", nil)
	root.Append(ctx.MustOp("arith.addi", nil))

	var buf bytes.Buffer
	if err := ir.Encode(&buf, root, ir.FormatSnapshot); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := ir.Decode(newContext(), bytes.NewReader(buf.Bytes()), ir.FormatSnapshot); err != nil {
		t.Fatalf("Decode of a valid snapshot: %v", err)
	}
	if _, err := ir.Decode(newContext(), bytes.NewReader([]byte{0xc1}), ir.FormatSnapshot); err == nil {
		t.Fatalf("expected an error for a garbage snapshot")
	}
}

func TestFormatFromPath(t *testing.T) {
	if _, err := ir.FormatFromPath("x.json"); !errors.Is(err, ir.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if f, err := ir.FormatFromPath("X.YML"); err != nil || f != ir.FormatYAML {
		t.Fatalf("FormatFromPath(X.YML) = %v, %v", f, err)
	}
	if _, err := ir.Load(newContext(), filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
