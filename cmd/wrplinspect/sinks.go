package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wrpl-inspect/internal/handler"
)

func (a *app) sinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sinks",
		Short: "List the sink types usable with --sink and [[sinks]]",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range handler.ListHandlers() {
				fmt.Fprintln(a.stdout, name)
			}
		},
	}
}
