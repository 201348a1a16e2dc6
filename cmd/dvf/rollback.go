package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carrefour/dvf-engine/internal/cli"
	"github.com/carrefour/dvf-engine/internal/ingest"
	"github.com/carrefour/dvf-engine/internal/materialize"
)

func rollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <batch-id>",
		Short: "Remove every record imported by a batch",
		Long: `Delete all transaction records tagged with the given batch and mark
the batch rolled back. Records from other batches are untouched; the
grouped transactions are rebuilt afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: runRollback,
	}

	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	batchID := args[0]
	yes, _ := cmd.Flags().GetBool("yes")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	batch, err := store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	count, err := store.CountRecordsByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if !yes {
		fmt.Println(cli.FormatWarning(fmt.Sprintf(
			"About to delete %d records imported from %s (status %s)",
			count, batch.SourceFile, batch.Status)))
		fmt.Print("Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println(cli.SubtleStyle.Render("Aborted."))
			return nil
		}
	}

	materializer := materialize.NewMaterializer(store)
	ingestor := ingest.NewIngestor(store, materializer)

	deleted, err := ingestor.Rollback(ctx, batchID)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rolled back batch %s, deleted %d records", batchID, deleted)))
	return nil
}
