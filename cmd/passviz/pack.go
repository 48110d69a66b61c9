package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"passviz/internal/ir"
)

var packCmd = &cobra.Command{
	Use:   "pack <in> <out>",
	Short: "Convert IR between .toml, .yaml and .irpack",
	Long: `pack reads an IR file and writes it in the format implied by the output
extension. .irpack snapshots are compact msgpack and load fastest.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ir.FormatFromPath(args[1]); err != nil {
			return err
		}
		m, _, err := loadManifest(".")
		if err != nil {
			return err
		}
		root, err := loadIR(m, args[0])
		if err != nil {
			return err
		}
		if err := ir.Save(args[1], root); err != nil {
			return err
		}
		quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d operations to %s\n", ir.Count(root), args[1])
		}
		return nil
	},
}
