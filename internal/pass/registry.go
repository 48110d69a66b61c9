package pass

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Options are the textual options of a pass, e.g. {from=arith to=llvm}.
type Options map[string]string

// Get returns the option key, or def when it is unset or blank.
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Require returns the option key or an error naming it.
func (o Options) Require(key string) (string, error) {
	v := strings.TrimSpace(o[key])
	if v == "" {
		return "", fmt.Errorf("missing required option %q", key)
	}
	return v, nil
}

// Constructor builds a pass from its options.
type Constructor func(Options) (Pass, error)

// Registration describes a pass available to textual pipelines.
type Registration struct {
	Argument string // pipeline spelling, e.g. "inline"
	Summary  string
	New      Constructor
}

// Registry maps pipeline arguments to pass constructors. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Registration)}
}

// Register adds reg. Registering an argument twice is an error.
func (r *Registry) Register(reg Registration) error {
	if reg.Argument == "" || reg.New == nil {
		return fmt.Errorf("invalid pass registration %q", reg.Argument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[reg.Argument]; dup {
		return fmt.Errorf("pass %q registered twice", reg.Argument)
	}
	r.byName[reg.Argument] = reg
	return nil
}

// Lookup finds the registration for argument.
func (r *Registry) Lookup(argument string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[argument]
	return reg, ok
}

// List returns all registrations sorted by argument.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.byName))
	for _, reg := range r.byName {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Argument < out[j].Argument })
	return out
}

// Step is one entry of a declarative pipeline.
type Step struct {
	Name    string            `toml:"name"`
	Anchor  string            `toml:"anchor"`
	Options map[string]string `toml:"options"`
}

// Build turns steps into a Manager. Consecutive steps sharing an anchor run
// in one nested pipeline.
func (r *Registry) Build(steps []Step) (*Manager, error) {
	pm := NewManager()
	var nested *Manager
	for i, st := range steps {
		reg, ok := r.Lookup(strings.TrimSpace(st.Name))
		if !ok {
			return nil, fmt.Errorf("step %d: %w %q", i+1, ErrUnknownPass, st.Name)
		}
		p, err := reg.New(Options(st.Options))
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st.Name, err)
		}
		anchor := strings.TrimSpace(st.Anchor)
		if anchor == "" {
			nested = nil
			pm.Add(p)
			continue
		}
		if nested == nil || nested.Anchor() != anchor {
			nested = pm.Nest(anchor)
		}
		nested.Add(p)
	}
	return pm, nil
}

// ParsePipeline parses a textual pipeline such as
//
//	inline,func.func(dce,convert-dialect{from=arith to=llvm})
//
// Passes are separated by commas; options go in braces as space-separated
// key=value pairs; a name followed by parentheses anchors the enclosed
// passes on operations of that name. Anchors do not nest.
func ParsePipeline(text string) ([]Step, error) {
	p := &pipelineParser{src: text}
	steps, err := p.parseList("", false)
	if err != nil {
		return nil, err
	}
	return steps, nil
}

type pipelineParser struct {
	src string
	pos int
}

func (p *pipelineParser) errorf(format string, args ...any) error {
	return fmt.Errorf("pipeline %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *pipelineParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *pipelineParser) parseList(anchor string, nested bool) ([]Step, error) {
	var steps []Step
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			if nested {
				return nil, p.errorf("missing ')'")
			}
			return steps, nil
		}
		if nested && p.src[p.pos] == ')' {
			p.pos++
			return steps, nil
		}
		name := p.ident()
		if name == "" {
			return nil, p.errorf("expected a pass name")
		}
		p.skipSpace()
		switch {
		case p.pos < len(p.src) && p.src[p.pos] == '(':
			if nested {
				return nil, p.errorf("anchors do not nest")
			}
			p.pos++
			inner, err := p.parseList(name, true)
			if err != nil {
				return nil, err
			}
			steps = append(steps, inner...)
		default:
			st := Step{Name: name, Anchor: anchor}
			if p.pos < len(p.src) && p.src[p.pos] == '{' {
				opts, err := p.options()
				if err != nil {
					return nil, err
				}
				st.Options = opts
			}
			steps = append(steps, st)
		}
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.pos < len(p.src) && !(nested && p.src[p.pos] == ')') {
			return nil, p.errorf("unexpected %q", p.src[p.pos])
		}
	}
}

func (p *pipelineParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == '(' || c == ')' || c == '{' || c == '}' || c == ' ' || c == '\t' || c == '\n' || c == '=' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *pipelineParser) options() (map[string]string, error) {
	p.pos++ // '{'
	opts := make(map[string]string)
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("missing '}'")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return opts, nil
		}
		key := p.ident()
		if key == "" || p.pos >= len(p.src) || p.src[p.pos] != '=' {
			return nil, p.errorf("expected key=value")
		}
		p.pos++
		value := p.ident()
		opts[key] = value
	}
}
