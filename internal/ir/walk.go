package ir

// TopLevel follows parent links from op until it reaches an operation
// without a parent. An operation without a parent is its own top level.
func TopLevel(op *Operation) *Operation {
	if op == nil {
		return nil
	}
	top := op
	for top.parent != nil {
		top = top.parent
	}
	return top
}

// Walk calls fn for op and every operation nested in it, each exactly once.
// Parents are visited before their children; callers should not depend on
// the order. fn must not restructure the tree while walking; collect the
// operations first (see Collect) when mutation is needed.
func Walk(op *Operation, fn func(*Operation)) {
	if op == nil {
		return
	}
	stack := []*Operation{op}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur)
		for i := len(cur.children) - 1; i >= 0; i-- {
			stack = append(stack, cur.children[i])
		}
	}
}

// Collect returns the operations under op (inclusive) accepted by keep, in
// walk order.
func Collect(op *Operation, keep func(*Operation) bool) []*Operation {
	var out []*Operation
	Walk(op, func(o *Operation) {
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	})
	return out
}

// Count returns the number of operations under op, op included.
func Count(op *Operation) int {
	n := 0
	Walk(op, func(*Operation) { n++ })
	return n
}

// IsAncestor reports whether anc encloses op (an operation is not its own ancestor).
func IsAncestor(anc, op *Operation) bool {
	if anc == nil || op == nil {
		return false
	}
	for p := op.parent; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}
