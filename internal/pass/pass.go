// Package pass runs pipelines of transformation passes over an IR tree and
// notifies registered instrumentations around every pass execution.
package pass

import (
	"context"
	"errors"

	"passviz/internal/ir"
)

var (
	// ErrPassPanicked wraps a panic raised by a pass.
	ErrPassPanicked = errors.New("pass panicked")
	// ErrUnknownPass is returned when a pipeline names an unregistered pass.
	ErrUnknownPass = errors.New("unknown pass")
	// ErrSessionFinalized is returned when a manager whose instrumentations
	// were already finalized is run again.
	ErrSessionFinalized = errors.New("session already finalized")
)

// Pass is one transformation or analysis step.
type Pass interface {
	// Name identifies the pass in reports, e.g. "Inline".
	Name() string
	// Run applies the pass to op and the operations nested in it.
	Run(ctx context.Context, op *ir.Operation) error
}

type funcPass struct {
	name string
	fn   func(context.Context, *ir.Operation) error
}

// NewFunc adapts fn into a Pass named name.
func NewFunc(name string, fn func(context.Context, *ir.Operation) error) Pass {
	return &funcPass{name: name, fn: fn}
}

func (p *funcPass) Name() string { return p.name }

func (p *funcPass) Run(ctx context.Context, op *ir.Operation) error {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, op)
}
