package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run daemon health checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctx.apiClient().Health(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range healthCheckLines(report.Checks, colorize) {
				fmt.Fprintln(stdout, line)
			}
			if !report.OK {
				return errors.New("one or more health checks failed")
			}
			return nil
		},
	}
}
