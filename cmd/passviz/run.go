package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"passviz/internal/ir"
	"passviz/internal/jsonw"
	"passviz/internal/pass"
	"passviz/internal/passviz"
	"passviz/internal/runner"
	"passviz/internal/transforms"
)

type runFlags struct {
	passes  string
	output  string
	indent  int
	jobs    int
	timings bool
	ui      string
}

var runOpts runFlags

func init() {
	runCmd.Flags().StringVar(&runOpts.passes, "passes", "", "pipeline, e.g. 'inline,func.func(dce)' (overrides passviz.toml)")
	runCmd.Flags().StringVarP(&runOpts.output, "output", "o", "", "report file, or directory for several inputs (- for stderr)")
	runCmd.Flags().IntVar(&runOpts.indent, "indent", jsonw.DefaultIndent, "report indentation (0 = compact)")
	runCmd.Flags().IntVarP(&runOpts.jobs, "jobs", "j", 0, "parallel sessions (0 = GOMAXPROCS)")
	runCmd.Flags().BoolVar(&runOpts.timings, "timings", false, "print per-pass timings")
	runCmd.Flags().StringVar(&runOpts.ui, "ui", "auto", "progress UI (auto|on|off)")
}

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run a pipeline and record a dialect census after every pass",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPipeline,
}

type runSettings struct {
	steps             []pass.Step
	output            string
	indent            int
	jobs              int
	timings           bool
	dialects          []ir.Dialect
	allowUnregistered bool
}

// resolveRunSettings layers explicitly set flags over the manifest.
func resolveRunSettings(m *manifest, fl runFlags, changed func(string) bool) (runSettings, error) {
	s := runSettings{
		indent:            fl.indent,
		jobs:              fl.jobs,
		timings:           fl.timings,
		allowUnregistered: true,
	}
	if m != nil {
		cfg := m.Config
		s.steps = cfg.Passes
		s.output = m.resolveOutputPath()
		if cfg.Output.Indent != nil && !changed("indent") {
			s.indent = *cfg.Output.Indent
		}
		if cfg.Run.Jobs > 0 && !changed("jobs") {
			s.jobs = cfg.Run.Jobs
		}
		if !changed("timings") {
			s.timings = s.timings || cfg.Run.Timings
		}
		s.dialects = cfg.dialects()
		s.allowUnregistered = cfg.allowUnregistered()
	}
	if changed("output") {
		s.output = fl.output
	}
	if fl.passes != "" {
		steps, err := pass.ParsePipeline(fl.passes)
		if err != nil {
			return s, err
		}
		s.steps = steps
	}
	if len(s.steps) == 0 {
		return s, fmt.Errorf("no pipeline: pass --passes or add [[pass]] entries to %s", manifestName)
	}
	if s.indent < 0 {
		return s, fmt.Errorf("invalid --indent %d", s.indent)
	}
	return s, nil
}

// reportsToStderr reports whether output selects the debug stream.
func reportsToStderr(output string) bool {
	return output == "" || output == "-"
}

// sinkFactory maps every input to its report destination. With several
// inputs a file output names a directory holding <base>.passviz.json.
func sinkFactory(output string, files []string) (func(string) passviz.Sink, error) {
	if reportsToStderr(output) {
		shared := passviz.DebugSink()
		return func(string) passviz.Sink { return shared }, nil
	}
	if len(files) == 1 {
		return func(string) passviz.Sink { return passviz.FileSink{Path: output} }, nil
	}
	paths := make(map[string]string, len(files))
	owner := make(map[string]string, len(files))
	for _, file := range files {
		p := reportPath(output, file)
		if prev, dup := owner[p]; dup {
			return nil, fmt.Errorf("%s and %s would both write %s", prev, file, p)
		}
		owner[p] = file
		paths[file] = p
	}
	return func(file string) passviz.Sink { return passviz.FileSink{Path: paths[file]} }, nil
}

func reportPath(dir, file string) string {
	base := filepath.Base(file)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".passviz.json")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	m, found, err := loadManifest(".")
	if err != nil {
		return err
	}
	if found {
		logger.Debug("using manifest", zap.String("path", m.Path))
	}
	settings, err := resolveRunSettings(m, runOpts, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	sinkFor, err := sinkFactory(settings.output, args)
	if err != nil {
		return err
	}
	mode, err := readUIMode(runOpts.ui)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

	req := &runner.Request{
		Files:             args,
		Steps:             settings.steps,
		Registry:          transforms.NewRegistry(),
		Dialects:          settings.dialects,
		AllowUnregistered: settings.allowUnregistered,
		Jobs:              settings.jobs,
		Indent:            settings.indent,
		SinkFor:           sinkFor,
		Timings:           settings.timings,
	}

	var res runner.Result
	if shouldUseTUI(mode, quiet, reportsToStderr(settings.output)) {
		res, err = runWithUI(cmd.Context(), "passviz run", args, req)
	} else {
		res, err = runner.Run(cmd.Context(), req)
	}

	failed := reportResults(cmd.OutOrStdout(), res, settings.output, quiet)
	if settings.timings && !quiet {
		fmt.Fprint(cmd.OutOrStdout(), res.TimingSummary().Summary())
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(res.Files))
	}
	return nil
}

// reportResults logs per-session outcomes and returns how many failed.
// Undeliverable reports are warnings: the pipeline itself succeeded.
func reportResults(out io.Writer, res runner.Result, output string, quiet bool) int {
	failed := 0
	for _, f := range res.Files {
		if f.Err != nil {
			failed++
			logger.Error("session failed", zap.String("file", f.File), zap.Error(f.Err))
		}
		if f.SinkErr != nil {
			logger.Warn("report not written",
				zap.String("file", f.File),
				zap.Stringer("session", f.Session),
				zap.Error(f.SinkErr))
			continue
		}
		if quiet || f.Session == uuid.Nil || reportsToStderr(output) {
			continue
		}
		dest := output
		if len(res.Files) > 1 {
			dest = reportPath(output, f.File)
		}
		fmt.Fprintf(out, "%s: %d entries -> %s\n", f.File, f.Entries, dest)
	}
	return failed
}
