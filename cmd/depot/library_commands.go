package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"depot/internal/api"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect the scanned package library",
	}

	libraryCmd.AddCommand(newLibraryListCommand(ctx))
	libraryCmd.AddCommand(newLibraryShowCommand(ctx))

	return libraryCmd
}

func newLibraryListCommand(ctx *commandContext) *cobra.Command {
	var listLocale string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List library files with catalog metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := ctx.apiClient().Library(cmd.Context(), listLocale)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(response.Entries) == 0 {
				fmt.Fprintln(stdout, "Library is empty")
				fmt.Fprintln(stdout, "Run 'depot scan' after placing packages in the configured rom directory")
				return nil
			}

			table := renderTable(
				[]string{"ID", "Name", "Title ID", "Kind", "Version", "Size"},
				buildLibraryRows(response.Entries),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&listLocale, "locale", "l", "", "Catalog locale for metadata, for example en-US")
	return cmd
}

func newLibraryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <titleID>",
		Short: "Show catalog metadata and files for one title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := ctx.apiClient().Title(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader(detail.Title.Name, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Title ID", statusInfo, detail.Title.TitleID, colorize))
			if detail.Title.Publisher != "" {
				fmt.Fprintln(stdout, renderStatusLine("Publisher", statusInfo, detail.Title.Publisher, colorize))
			}
			if detail.Title.ReleaseDate > 0 {
				fmt.Fprintln(stdout, renderStatusLine("Released", statusInfo, formatReleaseDate(detail.Title.ReleaseDate), colorize))
			}
			if detail.Title.Size > 0 {
				fmt.Fprintln(stdout, renderStatusLine("Size", statusInfo, formatSize(detail.Title.Size), colorize))
			}
			if len(detail.Title.Categories) > 0 {
				fmt.Fprintln(stdout, renderStatusLine("Categories", statusInfo, strings.Join(detail.Title.Categories, ", "), colorize))
			}
			inLibraryKind := statusWarn
			inLibraryMessage := "no files on disk"
			if detail.InLibrary {
				inLibraryKind = statusOK
				inLibraryMessage = fmt.Sprintf("%d files", len(detail.Files))
			}
			fmt.Fprintln(stdout, renderStatusLine("In library", inLibraryKind, inLibraryMessage, colorize))

			if intro := strings.TrimSpace(detail.Title.Intro); intro != "" {
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, intro)
			}

			if len(detail.Files) > 0 {
				fmt.Fprintln(stdout)
				table := renderTable(
					[]string{"ID", "File", "Kind", "Version", "Size"},
					buildTitleFileRows(detail.Files),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				)
				fmt.Fprintln(stdout, table)
			}
			return nil
		},
	}
}

func buildTitleFileRows(entries []api.LibraryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			truncate(entry.Path, 52),
			entry.Kind,
			strconv.Itoa(entry.Version),
			formatSize(entry.Size),
		})
	}
	return rows
}

// formatReleaseDate renders the catalog's YYYYMMDD release integer.
func formatReleaseDate(value int64) string {
	raw := strconv.FormatInt(value, 10)
	if len(raw) != 8 {
		return raw
	}
	return fmt.Sprintf("%s-%s-%s", raw[:4], raw[4:6], raw[6:])
}
