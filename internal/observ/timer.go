package observ

import (
	"fmt"
	"strings"
	"time"
)

// Sample records one execution of a pass on one operation.
type Sample struct {
	Pass   string
	Op     string
	Start  time.Time
	Dur    time.Duration
	Failed bool
}

// Timer tracks pass executions of one pipeline run.
type Timer struct {
	samples []Sample
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{samples: make([]Sample, 0, 16)} }

// Begin starts timing pass on op and returns the sample index.
func (t *Timer) Begin(pass, op string) int {
	t.samples = append(t.samples, Sample{Pass: pass, Op: op, Start: time.Now()})
	return len(t.samples) - 1
}

// End finishes the sample at idx.
func (t *Timer) End(idx int, failed bool) {
	if idx < 0 || idx >= len(t.samples) {
		return
	}
	s := &t.samples[idx]
	s.Dur = time.Since(s.Start)
	s.Failed = failed
}

// Samples returns the recorded samples in execution order.
func (t *Timer) Samples() []Sample {
	return append([]Sample(nil), t.samples...)
}

// PassReport aggregates all executions of one pass.
type PassReport struct {
	Name       string  `json:"name"`
	Runs       int     `json:"runs"`
	Failures   int     `json:"failures,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report is the aggregated timing of a pipeline run.
type Report struct {
	TotalMS float64      `json:"total_ms"`
	Passes  []PassReport `json:"passes"`
}

// Report aggregates samples per pass name, in order of first execution.
func (t *Timer) Report() Report {
	if len(t.samples) == 0 {
		return Report{}
	}
	var report Report
	index := make(map[string]int, len(t.samples))
	var total time.Duration
	for _, s := range t.samples {
		i, ok := index[s.Pass]
		if !ok {
			i = len(report.Passes)
			index[s.Pass] = i
			report.Passes = append(report.Passes, PassReport{Name: s.Pass})
		}
		p := &report.Passes[i]
		p.Runs++
		if s.Failed {
			p.Failures++
		}
		p.DurationMS += durationToMillis(s.Dur)
		total += s.Dur
	}
	report.TotalMS = durationToMillis(total)
	return report
}

// Summary returns a human-readable table of the report.
func (r Report) Summary() string {
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range r.Passes {
		fmt.Fprintf(&sb, "  %-24s %7.2f ms  x%d", p.Name, p.DurationMS, p.Runs)
		if p.Failures > 0 {
			fmt.Fprintf(&sb, "  // %d failed", p.Failures)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  %-24s %7.2f ms\n", "total", r.TotalMS)
	return sb.String()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
