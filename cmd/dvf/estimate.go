package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/carrefour/dvf-engine/internal/analytics"
	"github.com/carrefour/dvf-engine/internal/cli"
	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
)

func estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Run a price analytics query",
		Long: `Answer a price query over the grouped transactions.

Query types:
  simple      sale history of one exact address
  trend       price-per-m² trend for a postal code
  market      market summary, optionally assessing an asking price
  projection  trend-based price projection to a future date

Thin samples are widened to the department automatically and flagged
low-confidence.`,
		RunE: runEstimate,
	}

	cmd.Flags().StringP("type", "t", "market", "query type (simple, trend, market, projection)")
	cmd.Flags().StringP("postal", "p", "", "five-digit postal code (required)")
	cmd.Flags().StringP("address", "a", "", "exact address, for simple queries")
	cmd.Flags().String("property-type", "", `property type filter ("Appartement" or "Maison")`)
	cmd.Flags().Float64P("surface", "s", 0, "surface in m², for market and projection queries")
	cmd.Flags().Float64("asking-price", 0, "asking price in euros, for market queries")
	cmd.Flags().String("from", "", "window start (2006-01-02)")
	cmd.Flags().String("to", "", "window end (2006-01-02)")
	cmd.Flags().String("target-date", "", "projection target date (default: one year out)")

	_ = cmd.MarkFlagRequired("postal")

	return cmd
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	query, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	engine := analytics.NewEngine(store, analyticsConfig())
	result, err := engine.Query(ctx, query)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInsufficientData):
			fmt.Println(cli.FormatWarning("Not enough comparable sales to answer this query"))
		case errors.Is(err, common.ErrInvalidQuery):
			fmt.Println(cli.FormatError(err.Error()))
		}
		return err
	}

	printResult(query, result)
	return nil
}

func queryFromFlags(cmd *cobra.Command) (analytics.Query, error) {
	var q analytics.Query

	queryType, _ := cmd.Flags().GetString("type")
	q.Type = analytics.QueryType(queryType)
	q.PostalCode, _ = cmd.Flags().GetString("postal")
	q.Address, _ = cmd.Flags().GetString("address")
	q.SurfaceArea, _ = cmd.Flags().GetFloat64("surface")
	q.AskingPrice, _ = cmd.Flags().GetFloat64("asking-price")

	if propType, _ := cmd.Flags().GetString("property-type"); propType != "" {
		q.PropertyType = model.PropertyType(propType)
	}

	for _, f := range []struct {
		dst  *time.Time
		name string
	}{
		{&q.From, "from"},
		{&q.To, "to"},
		{&q.TargetDate, "target-date"},
	} {
		raw, _ := cmd.Flags().GetString(f.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return q, fmt.Errorf("invalid --%s: %w", f.name, err)
		}
		*f.dst = t
	}

	return q, nil
}

func printResult(q analytics.Query, result *analytics.Result) {
	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s query for %s", result.Type, q.PostalCode)))
	if result.Confidence == analytics.ConfidenceLow {
		fmt.Println(cli.FormatWarning("Low confidence: small sample, outlier filtering skipped"))
	}

	if result.Stats != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Sales:     %d (outliers removed: %d)\n", result.Stats.Count, result.Stats.OutliersRemoved)
		fmt.Fprintf(&b, "Mean:      %s/m²\n", formatMoney(result.Stats.Mean))
		fmt.Fprintf(&b, "Median:    %s/m²\n", formatMoney(result.Stats.Median))
		fmt.Fprintf(&b, "Range:     %s - %s/m²\n", formatMoney(result.Stats.Min), formatMoney(result.Stats.Max))
		fmt.Fprintf(&b, "p10/p90:   %s - %s/m²",
			formatMoney(result.Stats.Percentiles[10]), formatMoney(result.Stats.Percentiles[90]))
		fmt.Println(cli.RenderBox("Market summary", b.String()))
	}

	if len(result.Sales) > 0 {
		headers := []string{"DATE", "PRICE", "LOTS", "SURFACE", "€/M²", "TYPE"}
		rows := make([][]string, 0, len(result.Sales))
		for i := range result.Sales {
			s := &result.Sales[i]
			surface, pps := "-", "-"
			if s.TotalSurfaceArea != nil {
				surface = fmt.Sprintf("%.0f m²", *s.TotalSurfaceArea)
			}
			if s.GroupedPricePerSqm != nil {
				pps = formatMoney(*s.GroupedPricePerSqm)
			}
			rows = append(rows, []string{
				s.SaleDate.Format("2006-01-02"),
				formatMoney(s.SalePrice),
				fmt.Sprintf("%d", s.UnitCount),
				surface,
				pps,
				string(s.PropertyType),
			})
		}
		fmt.Println(cli.RenderTable(headers, rows))
	}

	if result.Trend != nil {
		var b strings.Builder
		for _, p := range result.Trend.Points {
			fmt.Fprintf(&b, "%-8s %s/m²  (%d sales)\n", p.Label, formatMoney(p.MeanPricePerSqm), p.Count)
		}
		fmt.Fprintf(&b, "Slope: %s/m² per year (%.1f%% annual)",
			formatMoney(result.Trend.SlopePerYear), result.Trend.AnnualGrowthPct)
		fmt.Println(cli.RenderBox("Trend", b.String()))
	}

	if result.Market != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Comparables:     %d (confidence %.0f/100)\n",
			result.Market.ComparableCount, result.Market.ConfidenceScore)
		if result.Market.EstimatedValue > 0 {
			fmt.Fprintf(&b, "Estimated value: %s\n", formatMoney(result.Market.EstimatedValue))
		}
		if result.Market.AskingPricePerSqm > 0 {
			fmt.Fprintf(&b, "Asking:          %s/m² (%+.1f%% vs market)\n",
				formatMoney(result.Market.AskingPricePerSqm), result.Market.DeviationPct)
		}
		fmt.Fprintf(&b, "%s", result.Market.Recommendation)
		fmt.Println(cli.RenderBox("Assessment", b.String()))
	}

	if result.Projection != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Target date:  %s\n", result.Projection.TargetDate.Format("2006-01-02"))
		fmt.Fprintf(&b, "Base:         %s/m²\n", formatMoney(result.Projection.BasePricePerSqm))
		fmt.Fprintf(&b, "Projected:    %s/m²", formatMoney(result.Projection.EstimatedPricePerSqm))
		fmt.Println(cli.RenderBox("Projection", b.String()))
	}
}
