package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var searchLocale string
	var catalogOnly bool
	var libraryOnly bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library and title catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalogOnly && libraryOnly {
				return fmt.Errorf("specify only one of --catalog or --library")
			}
			scope := ""
			switch {
			case catalogOnly:
				scope = "catalog"
			case libraryOnly:
				scope = "library"
			}

			queryText := strings.Join(args, " ")
			response, err := ctx.apiClient().Search(cmd.Context(), queryText, scope, searchLocale, limit)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(response.Results) == 0 {
				fmt.Fprintf(stdout, "No matches for %q\n", response.Query)
				return nil
			}

			table := renderTable(
				[]string{"Title ID", "Name", "Publisher", "Size", "In Library"},
				buildSearchRows(response.Results),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			fmt.Fprintf(stdout, "%d results\n", len(response.Results))
			return nil
		},
	}

	cmd.Flags().StringVarP(&searchLocale, "locale", "l", "", "Catalog locale to search, for example en-US")
	cmd.Flags().BoolVar(&catalogOnly, "catalog", false, "Search the full catalog instead of library and catalog")
	cmd.Flags().BoolVar(&libraryOnly, "library", false, "Search only files already in the library")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (0 uses the server default)")
	return cmd
}
