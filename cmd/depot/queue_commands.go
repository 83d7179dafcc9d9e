package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"depot/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the download queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueImportCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueActionCommand(ctx, "cancel", "Cancel a queued or active download"))
	queueCmd.AddCommand(newQueueActionCommand(ctx, "pause", "Pause an active download"))
	queueCmd.AddCommand(newQueueActionCommand(ctx, "resume", "Resume a paused or failed download"))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueCleanupCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List download queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().Downloads(cmd.Context(), listStatuses)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(response.Items) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}

			table := renderTable(
				[]string{"ID", "Name", "Status", "Progress", "Size", "Created"},
				buildDownloadRows(response.Items),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by download status (repeatable)")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Queue a direct download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().AddDownload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued download %s\n", response.Item.ID)
			return nil
		},
	}
}

func newQueueImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <provider> <ref>",
		Short: "Queue downloads resolved by an import provider",
		Long: `Queue downloads resolved by an import provider.

The url provider accepts a direct download link. The shop provider accepts
a "<titleID>" or "<titleID>:<kind>" reference and resolves package URLs
from the configured upstream shop, where kind is base, update, dlc, or all.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().ImportDownloads(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(response.Items) == 0 {
				fmt.Fprintln(stdout, "Provider resolved no downloads")
				return nil
			}
			fmt.Fprintf(stdout, "Queued %d downloads\n", len(response.Items))
			table := renderTable(
				[]string{"ID", "Name", "Status", "Progress", "Size", "Created"},
				buildDownloadRows(response.Items),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one download in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			item := response.Item
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader(downloadName(item), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("ID", statusInfo, item.ID, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Status", downloadStatusKind(item.Status), item.Status, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Source", statusInfo, item.Source, colorize))
			fmt.Fprintln(stdout, renderStatusLine("URL", statusInfo, item.URL, colorize))
			if item.TargetPath != "" {
				fmt.Fprintln(stdout, renderStatusLine("Target", statusInfo, item.TargetPath, colorize))
			}
			received := formatSize(item.BytesReceived)
			if item.TotalBytes > 0 {
				received = fmt.Sprintf("%s of %s (%s)", formatSize(item.BytesReceived), formatSize(item.TotalBytes), formatProgress(item))
			}
			fmt.Fprintln(stdout, renderStatusLine("Received", statusInfo, received, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, formatWhen(item.CreatedAt), colorize))
			if item.CompletedAt != "" {
				fmt.Fprintln(stdout, renderStatusLine("Completed", statusInfo, formatWhen(item.CompletedAt), colorize))
			}
			if item.ErrorMessage != "" {
				fmt.Fprintln(stdout, renderStatusLine("Error", statusError, item.ErrorMessage, colorize))
			}
			return nil
		},
	}
}

func downloadStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed", "cancelled":
		return statusError
	case "paused":
		return statusWarn
	default:
		return statusInfo
	}
}

func newQueueActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response *api.DownloadItemResponse
			var err error
			client := ctx.apiClient()
			switch action {
			case "cancel":
				response, err = client.CancelDownload(cmd.Context(), args[0])
			case "pause":
				response, err = client.PauseDownload(cmd.Context(), args[0])
			default:
				response, err = client.ResumeDownload(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Download %s is now %s\n", response.Item.ID, response.Item.Status)
			return nil
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show download queue totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ctx.apiClient().DownloadStats(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			rows := buildStatsRows(*stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)
			fmt.Fprintf(stdout, "%d items, %s downloaded\n", stats.Total, formatSize(stats.CompletedBytes))
			return nil
		},
	}
}

func newQueueCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove finished items from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().CleanupDownloads(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished items\n", response.Removed)
			return nil
		},
	}
}
