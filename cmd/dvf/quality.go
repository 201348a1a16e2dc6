package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carrefour/dvf-engine/internal/cli"
)

func qualityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quality",
		Short: "Report on imported data quality",
		Long: `Summarize the imported data: missing fields, price-per-m²
distribution, and how the transaction grouping heuristic behaved.`,
		RunE: runQuality,
	}
}

func runQuality(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	report, err := store.DataQualityReport(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatTitle("Data quality"))
	if report.TotalRecords == 0 {
		fmt.Println(cli.SubtleStyle.Render("No records imported yet."))
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Records:             %d\n", report.TotalRecords)
	fmt.Fprintf(&b, "Missing surface:     %d (%.1f%%)\n",
		report.MissingSurface, pct(report.MissingSurface, report.TotalRecords))
	fmt.Fprintf(&b, "Missing rooms:       %d (%.1f%%)\n",
		report.MissingRooms, pct(report.MissingRooms, report.TotalRecords))
	fmt.Fprintf(&b, "Missing price/m²:    %d (%.1f%%)\n",
		report.MissingPricePerSqm, pct(report.MissingPricePerSqm, report.TotalRecords))
	sortedCounts(report.RecordsByPropertyType)(func(propType string, n int64) bool {
		fmt.Fprintf(&b, "%-20s %d\n", propType+":", n)
		return true
	})
	fmt.Println(cli.RenderBox("Records", strings.TrimRight(b.String(), "\n")))

	b.Reset()
	percentiles := make([]int, 0, len(report.PricePerSqmPercentiles))
	for p := range report.PricePerSqmPercentiles {
		percentiles = append(percentiles, p)
	}
	sort.Ints(percentiles)
	for _, p := range percentiles {
		fmt.Fprintf(&b, "p%-3d %s/m²\n", p, formatMoney(report.PricePerSqmPercentiles[p]))
	}
	fmt.Println(cli.RenderBox("Price per m²", strings.TrimRight(b.String(), "\n")))

	b.Reset()
	fmt.Fprintf(&b, "Groups:              %d\n", report.GroupCount)
	fmt.Fprintf(&b, "Multi-lot groups:    %d\n", report.MultiLotGroups)
	fmt.Fprintf(&b, "Implausible groups:  %d", report.ImplausibleGroups)
	fmt.Println(cli.RenderBox("Grouping", b.String()))

	if report.ImplausibleGroups > 0 {
		fmt.Println(cli.FormatWarning("Some groups have implausibly many lots; the grouping tuple likely collided"))
	}

	return nil
}

func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// sortedCounts yields map entries in deterministic key order.
func sortedCounts(m map[string]int64) func(func(string, int64) bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return func(yield func(string, int64) bool) {
		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
