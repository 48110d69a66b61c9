package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"passviz/internal/census"
	"passviz/internal/ir"
	"passviz/internal/jsonw"
)

var censusFormat string

func init() {
	censusCmd.Flags().StringVar(&censusFormat, "format", "table", "output format (table|json)")
}

var censusCmd = &cobra.Command{
	Use:   "census [files...]",
	Short: "Print the dialect census of IR files without running passes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(censusFormat)
		if format != "table" && format != "json" {
			return fmt.Errorf("unsupported format %q (must be table or json)", censusFormat)
		}
		m, _, err := loadManifest(".")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, file := range args {
			root, err := loadIR(m, file)
			if err != nil {
				return err
			}
			c := census.Take(root)
			if format == "json" {
				fmt.Fprintln(out, censusJSON(file, c))
				continue
			}
			renderCensus(out, file, c)
		}
		return nil
	},
}

// loadIR reads file into a fresh context configured from the manifest.
func loadIR(m *manifest, file string) (*ir.Operation, error) {
	ctx := ir.NewContext()
	allow := true
	if m != nil {
		for _, d := range m.Config.dialects() {
			ctx.RegisterDialect(d)
		}
		allow = m.Config.allowUnregistered()
	}
	ctx.SetAllowUnregistered(allow)
	return ir.Load(ctx, file)
}

var (
	censusHeader = color.New(color.Bold)
	censusName   = color.New(color.FgCyan)
	censusTotal  = color.New(color.FgYellow, color.Bold)
)

func renderCensus(out io.Writer, file string, c *census.Census) {
	entries := c.Entries()
	width := runewidth.StringWidth("dialect")
	for _, e := range entries {
		width = max(width, runewidth.StringWidth(e.DialectName))
	}
	countWidth := len(strconv.Itoa(c.Total()))

	censusHeader.Fprintln(out, file)
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (no dialect operations)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %*d\n", censusName.Sprint(runewidth.FillRight(e.DialectName, width)), countWidth, e.OpCount)
	}
	fmt.Fprintf(out, "  %s  %s\n", runewidth.FillRight("total", width), censusTotal.Sprintf("%*d", countWidth, c.Total()))
}

func censusJSON(file string, c *census.Census) string {
	w := jsonw.New()
	w.Object(func() {
		w.Attribute("file", file)
		w.AttributeArray("dialectOpCounts", func() {
			for _, e := range c.Entries() {
				w.Object(func() {
					w.Attribute("dialectName", e.DialectName)
					w.Attribute("opCount", e.OpCount)
				})
			}
		})
	})
	return w.String()
}
