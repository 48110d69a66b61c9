package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Operation is a node of the IR tree. A parent owns its children; the
// back-reference from a child to its parent is a lookup relation only.
type Operation struct {
	id       uint64
	name     string
	attrs    map[string]string
	ctx      *Context
	parent   *Operation
	children []*Operation
}

// ID returns the identity assigned by the owning context.
func (op *Operation) ID() uint64 { return op.id }

// Name returns the fully qualified operation name, e.g. "arith.addi".
func (op *Operation) Name() string { return op.name }

// Context returns the context that created op.
func (op *Operation) Context() *Context { return op.ctx }

// Namespace returns the dialect namespace of op. Builtin operations return
// BuiltinNamespace.
func (op *Operation) Namespace() string { return NamespaceOf(op.name) }

// Parent returns the enclosing operation, or nil for a top-level operation.
func (op *Operation) Parent() *Operation { return op.parent }

// Children returns the directly nested operations. The slice must not be
// modified by the caller.
func (op *Operation) Children() []*Operation { return op.children }

// NumChildren returns the number of direct children.
func (op *Operation) NumChildren() int { return len(op.children) }

// Attr returns the attribute named key.
func (op *Operation) Attr(key string) (string, bool) {
	v, ok := op.attrs[key]
	return v, ok
}

// SetAttr sets the attribute named key.
func (op *Operation) SetAttr(key, value string) {
	if op.attrs == nil {
		op.attrs = make(map[string]string, 1)
	}
	op.attrs[key] = value
}

// RemoveAttr deletes the attribute named key.
func (op *Operation) RemoveAttr(key string) {
	delete(op.attrs, key)
}

// AttrNames returns the attribute names in sorted order.
func (op *Operation) AttrNames() []string {
	names := make([]string, 0, len(op.attrs))
	for k := range op.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Attrs returns a copy of the attributes.
func (op *Operation) Attrs() map[string]string {
	if len(op.attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(op.attrs))
	for k, v := range op.attrs {
		out[k] = v
	}
	return out
}

// Rename changes the operation name, e.g. when converting between dialects.
func (op *Operation) Rename(name string) { op.name = name }

// ErrCyclicNesting is returned when an operation would end up nested
// inside itself.
var ErrCyclicNesting = errors.New("operation would contain itself")

// adoptable reports whether child may become a child of op.
func (op *Operation) adoptable(child *Operation) error {
	if child == nil {
		return fmt.Errorf("nil child for %s", op)
	}
	if child == op || IsAncestor(child, op) {
		return fmt.Errorf("%w: %s under %s", ErrCyclicNesting, child, op)
	}
	return nil
}

// Append adds children at the end of op's child list. Children that are
// still attached elsewhere are detached first. Nil children are skipped.
// Nothing is moved when any child encloses op.
func (op *Operation) Append(children ...*Operation) error {
	for _, child := range children {
		if child == nil {
			continue
		}
		if err := op.adoptable(child); err != nil {
			return err
		}
	}
	for _, child := range children {
		if child == nil {
			continue
		}
		child.Detach()
		child.parent = op
		op.children = append(op.children, child)
	}
	return nil
}

// InsertBefore inserts child in front of anchor, which must be a child of op.
// Inserting anchor in front of itself leaves op unchanged.
func (op *Operation) InsertBefore(anchor, child *Operation) error {
	idx := op.indexOf(anchor)
	if idx < 0 {
		return fmt.Errorf("%s is not a child of %s", anchor, op)
	}
	if err := op.adoptable(child); err != nil {
		return err
	}
	if child == anchor {
		return nil
	}
	child.Detach()
	// anchor may have moved if child was an earlier sibling
	idx = op.indexOf(anchor)
	child.parent = op
	op.children = append(op.children, nil)
	copy(op.children[idx+1:], op.children[idx:])
	op.children[idx] = child
	return nil
}

// Replace substitutes old, a child of op, with the given operations in order.
// old may appear among them, in which case it stays attached at its new
// position. Each replacement may appear only once.
func (op *Operation) Replace(old *Operation, with ...*Operation) error {
	if op.indexOf(old) < 0 {
		return fmt.Errorf("%s is not a child of %s", old, op)
	}
	seen := make(map[*Operation]bool, len(with))
	keepOld := false
	for _, w := range with {
		if err := op.adoptable(w); err != nil {
			return err
		}
		if seen[w] {
			return fmt.Errorf("%s appears twice in the replacement of %s", w, old)
		}
		seen[w] = true
		if w == old {
			keepOld = true
		}
	}
	for _, w := range with {
		if w != old {
			w.Detach()
		}
	}
	idx := op.indexOf(old)
	rest := append([]*Operation(nil), op.children[idx+1:]...)
	op.children = append(op.children[:idx], with...)
	op.children = append(op.children, rest...)
	for _, w := range with {
		w.parent = op
	}
	if !keepOld {
		old.parent = nil
	}
	return nil
}

// Detach removes op from its parent. Detaching a top-level operation is a no-op.
func (op *Operation) Detach() {
	p := op.parent
	if p == nil {
		return
	}
	if idx := p.indexOf(op); idx >= 0 {
		p.children = append(p.children[:idx], p.children[idx+1:]...)
	}
	op.parent = nil
}

// Erase detaches op and drops its subtree.
func (op *Operation) Erase() {
	op.Detach()
	op.children = nil
}

// Clone returns a deep copy of op with fresh identities. The copy is detached.
func (op *Operation) Clone() *Operation {
	cp := &Operation{
		name:  op.name,
		ctx:   op.ctx,
		attrs: op.Attrs(),
	}
	if op.ctx != nil {
		cp.id = op.ctx.nextID.Add(1)
	}
	for _, child := range op.children {
		cc := child.Clone()
		cc.parent = cp
		cp.children = append(cp.children, cc)
	}
	return cp
}

func (op *Operation) indexOf(child *Operation) int {
	for i, c := range op.children {
		if c == child {
			return i
		}
	}
	return -1
}

// String renders op as name#id{attrs}.
func (op *Operation) String() string {
	if op == nil {
		return "<nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s#%d", op.name, op.id)
	if names := op.AttrNames(); len(names) > 0 {
		sb.WriteByte('{')
		for i, k := range names {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%q", k, op.attrs[k])
		}
		sb.WriteByte('}')
	}
	return sb.String()
}
