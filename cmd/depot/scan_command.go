package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Trigger a library scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.apiClient().Scan(cmd.Context(), force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Library scan started")
			fmt.Fprintln(cmd.OutOrStdout(), "Watch progress with: depot status")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-hash files even when size and mtime are unchanged")
	return cmd
}
