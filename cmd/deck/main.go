package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	serve := serveCmd()
	root := &cobra.Command{
		Use:   "deck",
		Short: "Live control surface for Lyria RealTime",
		Long:  "Connects to Lyria RealTime, steers generation over HTTP and streams the result to listeners.",
		Args:  cobra.NoArgs,
		RunE:  serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, presetsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
