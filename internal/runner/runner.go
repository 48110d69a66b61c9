// Package runner runs one pass pipeline over many IR files in parallel.
// Every file gets its own session: a fresh context, pass manager and
// census collector, so sessions never share mutable state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"passviz/internal/ir"
	"passviz/internal/observ"
	"passviz/internal/pass"
	"passviz/internal/passviz"
	"passviz/internal/trace"
)

// Request configures a batch of sessions.
type Request struct {
	Files    []string
	Steps    []pass.Step
	Registry *pass.Registry
	// Dialects are registered in every session context.
	Dialects          []ir.Dialect
	AllowUnregistered bool
	// Jobs bounds parallel sessions; <= 0 means GOMAXPROCS.
	Jobs   int
	Indent int
	// SinkFor picks the report destination of a file. Nil selects
	// passviz.DebugSink for every file.
	SinkFor  func(file string) passviz.Sink
	Timings  bool
	Progress ProgressSink
}

// Run executes the pipeline once per file. Per-file failures land in the
// result; the returned error covers only an unusable request or
// cancellation.
func Run(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if req == nil {
		return result, fmt.Errorf("missing run request")
	}
	if len(req.Files) == 0 {
		return result, fmt.Errorf("no input files")
	}
	if req.Registry == nil {
		return result, fmt.Errorf("missing pass registry")
	}
	// Validate the pipeline once up front; sessions rebuild their own
	// managers since instrumentations are per session.
	if _, err := req.Registry.Build(req.Steps); err != nil {
		return result, err
	}

	progress := req.Progress
	if progress == nil {
		progress = nopSink{}
	}
	for _, file := range req.Files {
		progress.OnEvent(Event{File: file, Status: StatusQueued})
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// Indices are unique per goroutine, so no lock guards the slice.
	result.Files = make([]FileResult, len(req.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Files)))

	for i, file := range req.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				result.Files[i] = FileResult{File: file, Err: err}
				progress.OnEvent(Event{File: file, Status: StatusError, Err: err})
				return err
			}
			result.Files[i] = runFile(gctx, req, file, progress)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, ctx.Err()
}

func runFile(ctx context.Context, req *Request, file string, progress ProgressSink) FileResult {
	start := time.Now()
	res := FileResult{File: file}
	fail := func(err error) FileResult {
		res.Err = err
		res.Elapsed = time.Since(start)
		progress.OnEvent(Event{File: file, Status: StatusError, Err: err, Elapsed: res.Elapsed})
		return res
	}

	progress.OnEvent(Event{File: file, Status: StatusLoading})
	ictx := ir.NewContext()
	for _, d := range req.Dialects {
		ictx.RegisterDialect(d)
	}
	ictx.SetAllowUnregistered(req.AllowUnregistered)

	root, err := ir.Load(ictx, file)
	if err != nil {
		return fail(err)
	}

	pm, err := req.Registry.Build(req.Steps)
	if err != nil {
		return fail(err)
	}

	var sink passviz.Sink
	if req.SinkFor != nil {
		sink = req.SinkFor(file)
	}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeSession, "session", trace.CurrentSpan(ctx))
	span.WithExtra("file", file)
	ctx = trace.WithSpan(ctx, span.ID())

	col := passviz.Enable(pm, sink,
		passviz.WithIndent(req.Indent),
		passviz.WithTracer(trace.FromContext(ctx)),
	)
	res.Session = col.ID()

	var timing *pass.TimingInstrumentation
	if req.Timings {
		timing = pass.NewTimingInstrumentation()
		pm.AddInstrumentation(timing)
	}
	pm.AddInstrumentation(&progressInstrumentation{file: file, total: pm.Size(), sink: progress})

	runErr, finErr := splitFinalize(pm.Run(ctx, root))
	res.Entries = col.Events()
	res.SinkErr = finErr
	if timing != nil {
		report := timing.Report()
		res.Timing = &report
	}
	span.End(fmt.Sprintf("%d entries", res.Entries))

	if runErr != nil {
		return fail(runErr)
	}
	res.Elapsed = time.Since(start)
	progress.OnEvent(Event{File: file, Status: StatusDone, Elapsed: res.Elapsed})
	return res
}

// splitFinalize separates instrumentation finalize failures from the
// pipeline error they were joined with.
func splitFinalize(err error) (runErr, finErr error) {
	if err == nil {
		return nil, nil
	}
	if fe, ok := err.(*pass.FinalizeError); ok {
		return nil, fe
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err, nil
	}
	var runs []error
	for _, e := range joined.Unwrap() {
		if f, isFin := e.(*pass.FinalizeError); isFin {
			finErr = f
			continue
		}
		runs = append(runs, e)
	}
	return errors.Join(runs...), finErr
}

// progressInstrumentation turns pass hooks into progress events.
type progressInstrumentation struct {
	pass.BaseInstrumentation
	file  string
	total int
	index int
	sink  ProgressSink
}

func (p *progressInstrumentation) RunBeforePass(ps pass.Pass, op *ir.Operation) {
	p.index++
	p.sink.OnEvent(Event{File: p.file, Pass: ps.Name(), Index: p.index, Total: p.total, Status: StatusRunning})
}

// TimingSummary merges the timing reports of all sessions, in input order.
func (r Result) TimingSummary() observ.Report {
	var merged observ.Report
	byName := make(map[string]int)
	for _, f := range r.Files {
		if f.Timing == nil {
			continue
		}
		merged.TotalMS += f.Timing.TotalMS
		for _, p := range f.Timing.Passes {
			idx, ok := byName[p.Name]
			if !ok {
				byName[p.Name] = len(merged.Passes)
				merged.Passes = append(merged.Passes, p)
				continue
			}
			merged.Passes[idx].Runs += p.Runs
			merged.Passes[idx].Failures += p.Failures
			merged.Passes[idx].DurationMS += p.DurationMS
		}
	}
	return merged
}
