package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// NewRootCommand returns the tileserver command with its subcommands attached.
func NewRootCommand(ctx context.Context, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "tileserver",
		Short:         "Serve map tiles from MBTiles archives and z/x/y directories.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetContext(ctx)
	root.AddCommand(newServeCommand())
	root.AddCommand(newQuadKeyCommand())
	return root
}
