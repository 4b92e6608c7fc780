package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/tileserver/internal/tile"
)

func newQuadKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quadkey z x y",
		Short: "Print the quadkey of an XYZ tile.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := tile.ParseCoord(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), c.QuadKey())
			return err
		},
	}
}
