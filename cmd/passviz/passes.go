package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"passviz/internal/transforms"
)

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "List the passes a pipeline can name",
	RunE: func(cmd *cobra.Command, args []string) error {
		regs := transforms.NewRegistry().List()
		width := 0
		for _, r := range regs {
			width = max(width, runewidth.StringWidth(r.Argument))
		}
		name := color.New(color.FgCyan, color.Bold)
		out := cmd.OutOrStdout()
		for _, r := range regs {
			fmt.Fprintf(out, "  %s  %s\n", name.Sprint(runewidth.FillRight(r.Argument, width)), r.Summary)
		}
		return nil
	},
}
