package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/internal/store"
)

func newScanCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan [path...]",
		Short: "Scan and index the configured folders",
		Long: `Run one incremental scan over the configured scan roots, or over
the given paths instead.

Unchanged files are skipped, moved files are re-keyed without
re-extraction, and vanished files are removed from the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, args, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the scan report as JSON")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, roots []string, jsonOutput bool) error {
	a, err := buildApp(ctx, roots)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Paths.ScanRoots) == 0 {
		return fmt.Errorf("no scan roots configured; pass paths or set paths.scan_roots in the config")
	}

	report, err := a.scanner.Scan(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Scan %s in %s\n", report.Status,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "  Files found:    %d\n", report.TotalFiles)
	fmt.Fprintf(out, "  Keyword index:  %d files\n", report.IndexedFiles)
	fmt.Fprintf(out, "  Vector index:   %d files\n", report.VectorIndexedFiles)
	for _, ft := range []store.FileType{
		store.FileTypeText, store.FileTypeDocument, store.FileTypeImage,
		store.FileTypeVideo, store.FileTypeAudio, store.FileTypeUnknown,
	} {
		if n := report.FileTypeCounts[ft]; n > 0 {
			fmt.Fprintf(out, "  %-15s %d\n", string(ft)+":", n)
		}
	}
	if len(report.Errors) > 0 {
		fmt.Fprintf(out, "  Errors:         %d\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(out, "    %s: %s\n", e.Path, e.Reason)
		}
	}
	return nil
}
