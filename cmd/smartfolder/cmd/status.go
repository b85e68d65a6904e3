package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusInfo is the machine-readable shape of the status command.
type statusInfo struct {
	DataDir            string         `json:"data_dir"`
	ScanRoots          []string       `json:"scan_roots"`
	TotalFiles         int            `json:"total_files"`
	IndexedFiles       int            `json:"indexed_files"`
	VectorIndexedFiles int            `json:"vector_indexed_files"`
	FileTypeCounts     map[string]int `json:"file_type_counts"`
	FaceClusters       int            `json:"face_clusters"`
	EmbeddingModel     string         `json:"embedding_model"`
	LastScanStatus     string         `json:"last_scan_status,omitempty"`
	LastScanFinished   *time.Time     `json:"last_scan_finished,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including file counts
per type, the keyword and vector index sizes, face cluster count,
the active embedding model and the last scan outcome.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return err
	}

	info := statusInfo{
		DataDir:            a.cfg.Paths.DataDir,
		ScanRoots:          a.cfg.Paths.ScanRoots,
		TotalFiles:         stats.TotalFiles,
		IndexedFiles:       a.keyword.FileCount(),
		VectorIndexedFiles: a.vector.Count(),
		FileTypeCounts:     make(map[string]int, len(stats.FileTypeCounts)),
		FaceClusters:       len(a.faces.Clusters()),
		EmbeddingModel:     a.embedder.ModelName(),
	}
	for ft, n := range stats.FileTypeCounts {
		info.FileTypeCounts[string(ft)] = n
	}
	if report, err := a.store.LatestReport(ctx); err == nil && report != nil {
		info.LastScanStatus = string(report.Status)
		if !report.FinishedAt.IsZero() {
			t := report.FinishedAt
			info.LastScanFinished = &t
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Data directory:  %s\n", info.DataDir)
	fmt.Fprintf(out, "Scan roots:      %v\n", info.ScanRoots)
	fmt.Fprintf(out, "Files tracked:   %d\n", info.TotalFiles)
	fmt.Fprintf(out, "Keyword index:   %d files\n", info.IndexedFiles)
	fmt.Fprintf(out, "Vector index:    %d files\n", info.VectorIndexedFiles)
	fmt.Fprintf(out, "Face clusters:   %d\n", info.FaceClusters)
	fmt.Fprintf(out, "Embedding model: %s\n", info.EmbeddingModel)
	if info.LastScanStatus != "" {
		fmt.Fprintf(out, "Last scan:       %s", info.LastScanStatus)
		if info.LastScanFinished != nil {
			fmt.Fprintf(out, " (%s)", info.LastScanFinished.Format(time.RFC3339))
		}
		fmt.Fprintln(out)
	}
	return nil
}
