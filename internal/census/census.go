// Package census counts operations per dialect namespace.
//
// A census always covers the whole tree that contains the operation it is
// taken from: the walk starts at the top-level ancestor, not at the given
// operation. Builtin operations (empty namespace) are not counted.
package census

import (
	"github.com/emirpasic/gods/maps/treemap"

	"passviz/internal/ir"
)

// Entry is the number of operations of one dialect.
type Entry struct {
	DialectName string
	OpCount     int
}

// Census is a per-dialect operation count taken at one instant.
type Census struct {
	counts *treemap.Map // dialect name -> int, ordered by name
	total  int
}

// Take computes the census of the tree containing op.
func Take(op *ir.Operation) *Census {
	c := &Census{counts: treemap.NewWithStringComparator()}
	ir.Walk(ir.TopLevel(op), func(o *ir.Operation) {
		ns := o.Namespace()
		if ns == ir.BuiltinNamespace {
			return
		}
		c.add(ns)
	})
	return c
}

func (c *Census) add(ns string) {
	n := 0
	if v, ok := c.counts.Get(ns); ok {
		n = v.(int)
	}
	c.counts.Put(ns, n+1)
	c.total++
}

// Count returns the number of operations in dialect ns.
func (c *Census) Count(ns string) int {
	if c == nil {
		return 0
	}
	if v, ok := c.counts.Get(ns); ok {
		return v.(int)
	}
	return 0
}

// Len returns the number of dialects with at least one operation.
func (c *Census) Len() int {
	if c == nil {
		return 0
	}
	return c.counts.Size()
}

// Total returns the number of counted (non-builtin) operations.
func (c *Census) Total() int {
	if c == nil {
		return 0
	}
	return c.total
}

// Entries returns the counts ordered by dialect name.
func (c *Census) Entries() []Entry {
	if c == nil || c.counts.Empty() {
		return nil
	}
	out := make([]Entry, 0, c.counts.Size())
	it := c.counts.Iterator()
	for it.Next() {
		out = append(out, Entry{DialectName: it.Key().(string), OpCount: it.Value().(int)})
	}
	return out
}

// Map returns the counts as a plain map.
func (c *Census) Map() map[string]int {
	out := make(map[string]int, c.Len())
	for _, e := range c.Entries() {
		out[e.DialectName] = e.OpCount
	}
	return out
}
