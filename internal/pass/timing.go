package pass

import (
	"passviz/internal/ir"
	"passviz/internal/observ"
)

// TimingInstrumentation measures every pass execution.
type TimingInstrumentation struct {
	BaseInstrumentation
	timer *observ.Timer
	open  []int
}

// NewTimingInstrumentation returns an instrumentation with an empty timer.
func NewTimingInstrumentation() *TimingInstrumentation {
	return &TimingInstrumentation{timer: observ.NewTimer()}
}

func (t *TimingInstrumentation) RunBeforePass(p Pass, op *ir.Operation) {
	t.open = append(t.open, t.timer.Begin(p.Name(), op.Name()))
}

func (t *TimingInstrumentation) RunAfterPass(Pass, *ir.Operation) {
	t.close(false)
}

func (t *TimingInstrumentation) RunAfterPassFailed(Pass, *ir.Operation, error) {
	t.close(true)
}

func (t *TimingInstrumentation) close(failed bool) {
	n := len(t.open)
	if n == 0 {
		return
	}
	t.timer.End(t.open[n-1], failed)
	t.open = t.open[:n-1]
}

// Report returns the aggregated timings recorded so far.
func (t *TimingInstrumentation) Report() observ.Report {
	return t.timer.Report()
}
