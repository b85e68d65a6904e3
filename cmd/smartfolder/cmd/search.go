package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/internal/search"
)

func newSearchCmd() *cobra.Command {
	var mode string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed files",
		Long: `Search the indexed files.

Keyword mode returns files containing every query term exactly.
Semantic mode ranks files by embedding similarity to the query and
drops matches below the relevance floor.

Examples:
  smartfolder search "tax return 2024"
  smartfolder search --mode semantic "that letter about the lease"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, mode, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", search.ModeKeyword, "Search mode: keyword or semantic")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query, mode string, jsonOutput bool) error {
	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.search.Search(ctx, query, mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%2d. %s  (%s, score %.2f)\n", i+1, r.Path, r.FileType, r.Score)
		if r.Snippet != "" {
			fmt.Fprintf(out, "    %s\n", r.Snippet)
		}
	}
	return nil
}
