package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"depot/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, library, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctx.apiClient().Status(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			runningKind := statusOK
			runningMessage := "running"
			if !report.Running {
				runningKind = statusError
				runningMessage = "not running"
			}
			fmt.Fprintln(stdout, renderStatusLine("State", runningKind, runningMessage, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Address", statusInfo, ctx.daemonAddress(), colorize))
			if report.PID > 0 {
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", report.PID), colorize))
			}
			if report.StartedAt != "" {
				fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, formatWhen(report.StartedAt), colorize))
			}
			scanKind := statusInfo
			scanMessage := "idle"
			if report.Scanning {
				scanMessage = "in progress"
			}
			fmt.Fprintln(stdout, renderStatusLine("Scanner", scanKind, scanMessage, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range healthCheckLines(report.Checks, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Library", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Files", statusInfo, fmt.Sprintf("%d (%s)", report.Library.TotalFiles, formatSize(report.Library.TotalBytes)), colorize))
			identifiedKind := statusOK
			if report.Library.Unidentified > 0 {
				identifiedKind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Identified", identifiedKind, fmt.Sprintf("%d of %d", report.Library.Identified, report.Library.TotalFiles), colorize))
			if report.LastScan != nil {
				fmt.Fprintln(stdout, renderStatusLine("Last scan", lastScanKind(report.LastScan), lastScanMessage(report.LastScan), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Catalog", colorize) {
				fmt.Fprintln(stdout, line)
			}
			catalogKind := statusOK
			if report.Catalog.Titles == 0 {
				catalogKind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Titles", catalogKind, fmt.Sprintf("%d across %d locales", report.Catalog.Titles, len(report.Catalog.Locales)), colorize))
			for _, locale := range report.Catalog.Locales {
				fmt.Fprintln(stdout, renderStatusLine(locale.Locale, statusInfo, fmt.Sprintf("%d titles, imported %s", locale.Titles, formatWhen(locale.ImportedAt)), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Upstream", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(report.Upstream) == 0 {
				fmt.Fprintln(stdout, renderStatusLine("Sources", statusInfo, "none configured", colorize))
			}
			for _, source := range report.Upstream {
				fmt.Fprintln(stdout, renderStatusLine(truncate(source.Source, statusLabelWidth-1), upstreamKind(source), upstreamMessage(source), colorize))
			}
			fmt.Fprintln(stdout)

			renderDownloadSection(stdout, report.Downloads, colorize)
			return nil
		},
	}
}

func healthCheckLines(checks []api.HealthCheck, colorize bool) []string {
	if len(checks) == 0 {
		return []string{renderStatusLine("Checks", statusWarn, "no checks reported", colorize)}
	}
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		detail := check.Detail
		if detail == "" && check.OK {
			detail = "ok"
		}
		lines = append(lines, renderStatusLine(check.Name, checkKind(check), detail, colorize))
	}
	return lines
}

func lastScanKind(summary *api.ScanSummary) statusKind {
	if summary.Failed > 0 {
		return statusWarn
	}
	return statusOK
}

func lastScanMessage(summary *api.ScanSummary) string {
	return fmt.Sprintf("%s, %d scanned, %d added, %d updated, %d removed, %d failed",
		formatWhen(summary.StartedAt), summary.Scanned, summary.Added, summary.Updated, summary.Removed, summary.Failed)
}

func upstreamKind(source api.UpstreamSource) statusKind {
	if source.LastError != "" {
		return statusWarn
	}
	if source.FetchedAt == "" {
		return statusInfo
	}
	return statusOK
}

func upstreamMessage(source api.UpstreamSource) string {
	if source.LastError != "" {
		return source.LastError
	}
	if source.FetchedAt == "" {
		return "not fetched yet"
	}
	return fmt.Sprintf("%d entries, fetched %s", source.Entries, formatWhen(source.FetchedAt))
}

func renderDownloadSection(stdout io.Writer, stats api.DownloadStats, colorize bool) {
	for _, line := range renderSectionHeader("Downloads", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildStatsRows(stats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return
	}
	table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(stdout, table)
}
