package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carrefour/dvf-engine/internal/cli"
	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/ingest"
	"github.com/carrefour/dvf-engine/internal/materialize"
	"github.com/carrefour/dvf-engine/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a DVF source file",
		Long: `Import one "Demandes de valeurs foncières" source file.

Rows are normalized, deduplicated against already-imported data, and
persisted in chunks under a batch id. A file whose hash matches an
already-completed import is refused unless --force is given. After a
successful import the grouped transactions are rebuilt automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().IntP("year", "y", 0, "data vintage of the file (e.g. 2024)")
	cmd.Flags().Int("chunk-size", 0, "rows per chunk (default 30000)")
	cmd.Flags().Bool("force", false, "import even if this file was already imported")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	_ = viper.BindPFlag("import.chunk_size", cmd.Flags().Lookup("chunk-size"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	year, _ := cmd.Flags().GetInt("year")
	force, _ := cmd.Flags().GetBool("force")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	materializer := materialize.NewMaterializer(store)
	if err := materializer.Load(ctx); err != nil {
		return err
	}
	ingestor := ingest.NewIngestor(store, materializer)

	slog.Info(cli.FormatTitle("Importing DVF data"))
	slog.Info("Source", "file", path, "year", year)

	imp, err := ingestor.ImportFile(ctx, path, ingest.FileOptions{
		DataYear:  year,
		ChunkSize: viper.GetInt("import.chunk_size"),
		Force:     force,
		Progress:  !noProgress,
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyImported) {
			slog.Warn(cli.FormatWarning("This file was already imported; use --force to repeat"))
		}
		return err
	}

	batch := imp.Batch()
	slog.Info(cli.FormatSuccess(fmt.Sprintf("Imported %s", batch.SourceFile)))
	slog.Info("Batch", "id", batch.BatchID)
	slog.Info("Rows",
		"total", batch.TotalRecords,
		"accepted", batch.AcceptedRecords,
		"duplicates", batch.DuplicateRecords,
		"rejected", batch.RejectedRecords)
	for _, reason := range model.RejectReasons {
		if n := batch.RejectBreakdown[reason]; n > 0 {
			slog.Info("Rejected", "reason", string(reason), "rows", n)
		}
	}

	return nil
}
