package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and refresh the title catalog",
	}

	catalogCmd.AddCommand(newCatalogStatusCommand(ctx))
	catalogCmd.AddCommand(newCatalogRefreshCommand(ctx))

	return catalogCmd
}

func newCatalogStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show imported catalog locales",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.apiClient().CatalogStatus(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(status.Locales) == 0 {
				fmt.Fprintln(stdout, "No catalog locales imported")
				fmt.Fprintln(stdout, "Run 'depot catalog refresh' to fetch the configured locales")
				return nil
			}

			rows := make([][]string, 0, len(status.Locales))
			for _, locale := range status.Locales {
				rows = append(rows, []string{
					locale.Locale,
					strconv.Itoa(locale.Titles),
					formatWhen(locale.ImportedAt),
					truncate(locale.SourceURL, 56),
				})
			}
			table := renderTable(
				[]string{"Locale", "Titles", "Imported", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			fmt.Fprintf(stdout, "%d titles total\n", status.Titles)
			return nil
		},
	}
}

func newCatalogRefreshCommand(ctx *commandContext) *cobra.Command {
	var refreshLocale string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch fresh catalog data from the titledb mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.apiClient().RefreshCatalog(cmd.Context(), refreshLocale); err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if refreshLocale != "" {
				fmt.Fprintf(stdout, "Catalog refresh started for %s\n", refreshLocale)
			} else {
				fmt.Fprintln(stdout, "Catalog refresh started for all configured locales")
			}
			fmt.Fprintln(stdout, "Check progress with: depot catalog status")
			return nil
		},
	}

	cmd.Flags().StringVarP(&refreshLocale, "locale", "l", "", "Refresh a single locale, for example en-US")
	return cmd
}
