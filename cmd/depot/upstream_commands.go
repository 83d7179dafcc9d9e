package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpstreamCommand(ctx *commandContext) *cobra.Command {
	upstreamCmd := &cobra.Command{
		Use:   "upstream",
		Short: "Inspect and sync upstream shop indexes",
	}

	upstreamCmd.AddCommand(newUpstreamStatusCommand(ctx))
	upstreamCmd.AddCommand(newUpstreamSyncCommand(ctx))

	return upstreamCmd
}

func newUpstreamStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured upstream sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().UpstreamStatus(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(response.Sources) == 0 {
				fmt.Fprintln(stdout, "No upstream sources configured")
				return nil
			}

			colorize := shouldColorize(stdout)
			for _, source := range response.Sources {
				fmt.Fprintln(stdout, renderStatusLine(truncate(source.Source, statusLabelWidth-1), upstreamKind(source), upstreamMessage(source), colorize))
			}
			return nil
		},
	}
}

func newUpstreamSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch and merge all upstream shop indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.apiClient().SyncUpstream(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Upstream sync started")
			fmt.Fprintln(cmd.OutOrStdout(), "Check progress with: depot upstream status")
			return nil
		},
	}
}
