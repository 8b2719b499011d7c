package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wrpl-inspect/internal/source"
)

func (a *app) locateCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "locate <path_wrpl|s3://bucket/key>",
		Short: "Print where the zlib stream starts",
		Args:  usage,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.cfg.Parse.Locate
			if cmd.Flags().Changed("strategy") {
				name = strategy
			}
			s, err := source.ParseStrategy(name)
			if err != nil {
				return err
			}

			path := args[0]
			data, err := a.opener(path).Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			loc, err := source.Locate(data, s)
			if errors.Is(err, source.ErrNotFound) {
				fmt.Fprintln(a.stderr, "Zlib stream not found in file")
				return errReported
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Found zlib stream at offset %d. Size: %d bytes\n", loc.Offset, len(data)-loc.Offset)
			fmt.Fprintf(a.stdout, "Header: %02X %02X (%s strategy)\n", loc.Header[0], loc.Header[1], s)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Location strategy (header, checksum)")
	return cmd
}
