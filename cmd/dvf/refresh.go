package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carrefour/dvf-engine/internal/cli"
	"github.com/carrefour/dvf-engine/internal/materialize"
)

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the grouped transactions",
		Long: `Rebuild the grouped-transaction set from scratch and swap it in.
Imports and rollbacks do this automatically; run it manually after
poking at the database directly.`,
		RunE: runRefresh,
	}
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	materializer := materialize.NewMaterializer(store)
	info, err := materializer.Refresh(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Rebuilt %d groups from %d records (version %d)",
		info.GroupCount, info.RecordCount, info.Version)))
	return nil
}
