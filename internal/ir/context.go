package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// BuiltinNamespace is the namespace of the builtin dialect. Builtin
// operations (modules, plain functions) are excluded from dialect censuses.
const BuiltinNamespace = ""

// builtinPrefix is the spelled-out prefix of builtin operation names, as in
// "builtin.module".
const builtinPrefix = "builtin"

// ErrUnregisteredDialect reports an operation whose dialect is not known to the context.
var ErrUnregisteredDialect = errors.New("unregistered dialect")

// Dialect describes a registered operation namespace.
type Dialect struct {
	Namespace   string
	Description string
}

// Context owns the dialect registry and hands out operation identities.
// It is safe for concurrent use.
type Context struct {
	mu                sync.RWMutex
	dialects          map[string]Dialect
	allowUnregistered bool
	nextID            atomic.Uint64
}

// NewContext returns a context with only the builtin dialect registered.
func NewContext() *Context {
	ctx := &Context{dialects: make(map[string]Dialect, 8)}
	ctx.dialects[BuiltinNamespace] = Dialect{Namespace: BuiltinNamespace, Description: "builtin operations"}
	return ctx
}

// RegisterDialect adds d to the registry. Registering a namespace twice keeps
// the first registration.
func (c *Context) RegisterDialect(d Dialect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dialects[d.Namespace]; ok {
		return
	}
	c.dialects[d.Namespace] = d
}

// Dialect looks up a registered dialect by namespace.
func (c *Context) Dialect(ns string) (Dialect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dialects[ns]
	return d, ok
}

// Dialects returns the registered dialects sorted by namespace.
func (c *Context) Dialects() []Dialect {
	c.mu.RLock()
	out := make([]Dialect, 0, len(c.dialects))
	for _, d := range c.dialects {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out
}

// SetAllowUnregistered controls whether NewOp accepts unknown dialects.
func (c *Context) SetAllowUnregistered(allow bool) {
	c.mu.Lock()
	c.allowUnregistered = allow
	c.mu.Unlock()
}

// AllowsUnregistered reports whether unknown dialects are accepted.
func (c *Context) AllowsUnregistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allowUnregistered
}

// NewOp creates a detached operation named name.
func (c *Context) NewOp(name string, attrs map[string]string) (*Operation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("operation name is empty")
	}
	ns := NamespaceOf(name)
	if _, ok := c.Dialect(ns); !ok && !c.AllowsUnregistered() {
		return nil, fmt.Errorf("%w %q (operation %q)", ErrUnregisteredDialect, ns, name)
	}
	op := &Operation{
		id:   c.nextID.Add(1),
		name: name,
		ctx:  c,
	}
	if len(attrs) > 0 {
		op.attrs = make(map[string]string, len(attrs))
		for k, v := range attrs {
			op.attrs[k] = v
		}
	}
	return op, nil
}

// MustOp is NewOp that panics on error. Intended for tests and fixed builders.
func (c *Context) MustOp(name string, attrs map[string]string) *Operation {
	op, err := c.NewOp(name, attrs)
	if err != nil {
		panic(err)
	}
	return op
}

// NamespaceOf returns the dialect namespace encoded in an operation name:
// the prefix before the first dot. Names without a dot and names of the
// builtin dialect map to BuiltinNamespace.
func NamespaceOf(name string) string {
	dot := strings.IndexByte(name, '.')
	if dot <= 0 {
		return BuiltinNamespace
	}
	ns := name[:dot]
	if ns == builtinPrefix {
		return BuiltinNamespace
	}
	return ns
}
