package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"passviz/internal/passviz"
	"passviz/internal/pass"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestResolveRunSettingsFromManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, sampleManifest)
	m, _, err := loadManifest(root)
	if err != nil {
		t.Fatal(err)
	}

	s, err := resolveRunSettings(m, runFlags{indent: 2}, changedSet())
	if err != nil {
		t.Fatalf("resolveRunSettings: %v", err)
	}
	if s.indent != 0 || s.jobs != 3 || len(s.steps) != 3 || s.allowUnregistered {
		t.Fatalf("settings = %+v", s)
	}

	s, err = resolveRunSettings(m, runFlags{indent: 4, passes: "inline", output: "-"}, changedSet("indent", "output", "passes"))
	if err != nil {
		t.Fatalf("resolveRunSettings: %v", err)
	}
	if diff := cmp.Diff([]pass.Step{{Name: "inline"}}, s.steps); diff != "" {
		t.Fatalf("steps (-want +got):\n%s", diff)
	}
	if s.indent != 4 || s.output != "-" {
		t.Fatalf("flags did not override: %+v", s)
	}
}

func TestResolveRunSettingsNeedsPipeline(t *testing.T) {
	if _, err := resolveRunSettings(nil, runFlags{}, changedSet()); err == nil {
		t.Fatal("expected error without a pipeline")
	}
	if _, err := resolveRunSettings(nil, runFlags{passes: "inline,("}, changedSet("passes")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := resolveRunSettings(nil, runFlags{passes: "inline", indent: -1}, changedSet("passes", "indent")); err == nil {
		t.Fatal("expected indent error")
	}
}

func TestSinkFactory(t *testing.T) {
	files := []string{"a/one.toml", "b/two.yaml"}

	for _, output := range []string{"", "-"} {
		sinkFor, err := sinkFactory(output, files)
		if err != nil {
			t.Fatal(err)
		}
		if sinkFor(files[0]) != sinkFor(files[1]) {
			t.Fatalf("output %q: stderr sessions should share one sink", output)
		}
	}

	sinkFor, err := sinkFactory("report.json", files[:1])
	if err != nil {
		t.Fatal(err)
	}
	if got := sinkFor(files[0]); got != (passviz.FileSink{Path: "report.json"}) {
		t.Fatalf("single input sink = %#v", got)
	}

	dir := t.TempDir()
	sinkFor, err = sinkFactory(dir, files)
	if err != nil {
		t.Fatal(err)
	}
	if got := sinkFor(files[1]); got != (passviz.FileSink{Path: filepath.Join(dir, "two.passviz.json")}) {
		t.Fatalf("multi input sink = %#v", got)
	}

	if _, err := sinkFactory(dir, []string{"a/x.toml", "b/x.yaml"}); err == nil {
		t.Fatal("expected collision error")
	}
}

func TestRenderReport(t *testing.T) {
	entries := []passviz.Entry{
		{PassName: "Inline", DialectOpCounts: []passviz.DialectOpCount{{DialectName: "arith", OpCount: 3}, {DialectName: "scf", OpCount: 1}}},
		{PassName: "StripDialect", DialectOpCounts: []passviz.DialectOpCount{{DialectName: "arith", OpCount: 2}}},
	}
	var buf bytes.Buffer
	renderReport(&buf, entries)
	out := buf.String()
	for _, want := range []string{"1. Inline", "2. StripDialect", "+3", "-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	renderReport(&buf, nil)
	if buf.String() != "no passes recorded\n" {
		t.Fatalf("empty report rendered %q", buf.String())
	}
}
