package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/vibejockey/internal/config"
	"github.com/satindergrewal/vibejockey/internal/presets"
)

func presetsCmd() *cobra.Command {
	var fileFlag string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the preset library",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fileFlag
			if path == "" {
				path = config.Load().PresetsFile
			}
			lib, err := presets.Load(path)
			if err != nil {
				return err
			}
			printPresets(cmd.OutOrStdout(), lib.All())
			return nil
		},
	}
	cmd.Flags().StringVar(&fileFlag, "file", "", "YAML preset library (default $DECK_PRESETS_FILE)")
	return cmd
}

func printPresets(w io.Writer, all []presets.Preset) {
	for _, p := range all {
		fmt.Fprintln(w, p.Label)
		for _, pr := range p.Prompts {
			fmt.Fprintf(w, "  %-24s %.2f\n", pr.Text, pr.Weight)
		}
	}
}
