package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/klauspost/compress/zstd"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"passviz/internal/passviz"
)

var showCmd = &cobra.Command{
	Use:   "show <report>",
	Short: "Render a recorded report as per-pass census deltas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readReport(args[0])
		if err != nil {
			return err
		}
		entries, err := passviz.ParseReport(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		renderReport(cmd.OutOrStdout(), entries)
		return nil
	},
}

// readReport reads a report file, decompressing ".zst" files.
func readReport(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decompress: %w", path, err)
	}
	return out, nil
}

var (
	showPass = color.New(color.Bold)
	showGrow = color.New(color.FgRed)
	showDrop = color.New(color.FgGreen)
)

// renderReport prints every entry with the change of each dialect count
// relative to the previous entry.
func renderReport(out io.Writer, entries []passviz.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no passes recorded")
		return
	}
	width := 0
	for _, e := range entries {
		for _, c := range e.DialectOpCounts {
			width = max(width, runewidth.StringWidth(c.DialectName))
		}
	}
	prev := map[string]int{}
	for i, e := range entries {
		showPass.Fprintf(out, "%d. %s\n", i+1, e.PassName)
		cur := make(map[string]int, len(e.DialectOpCounts))
		for _, c := range e.DialectOpCounts {
			cur[c.DialectName] = c.OpCount
			fmt.Fprintf(out, "   %s %6d%s\n", runewidth.FillRight(c.DialectName, width), c.OpCount, delta(c.OpCount-prev[c.DialectName]))
		}
		for _, name := range slices.Sorted(maps.Keys(prev)) {
			if _, still := cur[name]; !still {
				fmt.Fprintf(out, "   %s %6d%s\n", runewidth.FillRight(name, width), 0, delta(-prev[name]))
			}
		}
		prev = cur
	}
}

func delta(d int) string {
	switch {
	case d > 0:
		return showGrow.Sprintf("  +%d", d)
	case d < 0:
		return showDrop.Sprintf("  %d", d)
	default:
		return ""
	}
}
