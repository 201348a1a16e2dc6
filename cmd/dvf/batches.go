package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carrefour/dvf-engine/internal/cli"
)

func batchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List import batches",
		Long: `Show every import batch with its status and row counts, most
recent first. Rolled-back and failed batches stay listed as an audit
trail.`,
		RunE: runBatches,
	}
}

func runBatches(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	batches, err := store.ListBatches(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println(cli.SubtleStyle.Render("No imports yet."))
		return nil
	}

	headers := []string{"BATCH", "FILE", "YEAR", "STATUS", "TOTAL", "ACCEPTED", "DUP", "REJECTED", "STARTED", "FINISHED"}
	rows := make([][]string, 0, len(batches))
	for i := range batches {
		b := &batches[i]
		rows = append(rows, []string{
			b.BatchID[:8],
			b.SourceFile,
			fmt.Sprintf("%d", b.DataYear),
			string(b.Status),
			fmt.Sprintf("%d", b.TotalRecords),
			fmt.Sprintf("%d", b.AcceptedRecords),
			fmt.Sprintf("%d", b.DuplicateRecords),
			fmt.Sprintf("%d", b.RejectedRecords),
			b.StartedAt.Format("2006-01-02 15:04"),
			formatDate(b.CompletedAt),
		})
	}

	fmt.Println(cli.FormatTitle("Import batches"))
	fmt.Println(cli.RenderTable(headers, rows))
	return nil
}
