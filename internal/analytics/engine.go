package analytics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/carrefour/dvf-engine/internal/common"
	"github.com/carrefour/dvf-engine/internal/model"
	"github.com/carrefour/dvf-engine/internal/service"
)

var postalRe = regexp.MustCompile(`^\d{5}$`)

// Config tunes the analytics engine. The outlier threshold and minimum
// sample size are deliberately configuration, not constants: the source
// data never pinned them down rigorously.
type Config struct {
	QueryTimeout   time.Duration
	CacheTTL       time.Duration
	MinSampleSize  int
	MaxComparables int
	MonthsBack     int
	IQRMultiplier  float64
	SurfaceBandPct float64
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:   10 * time.Second,
		CacheTTL:       15 * time.Minute,
		MinSampleSize:  4,
		MaxComparables: 200,
		MonthsBack:     24,
		IQRMultiplier:  1.5,
		SurfaceBandPct: 0.30,
	}
}

// Engine answers price-estimation queries. Queries are read-only and safe
// to run concurrently; results are cached per query key with a bounded
// TTL, and at most one recomputation per key is ever in flight.
type Engine struct {
	store  service.Storage
	cache  *gocache.Cache
	flight singleflight.Group
	cfg    Config
}

// NewEngine creates an analytics engine over the store.
func NewEngine(store service.Storage, cfg Config) *Engine {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = DefaultConfig().MinSampleSize
	}
	if cfg.IQRMultiplier <= 0 {
		cfg.IQRMultiplier = DefaultConfig().IQRMultiplier
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Query validates and answers one analytics request.
func (e *Engine) Query(ctx context.Context, q Query) (*Result, error) {
	if err := e.validate(&q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(q)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*Result), nil
	}

	// Concurrent requests for the same key join the in-flight
	// computation. The computation runs detached from the first caller
	// with its own timeout, so a cancelled caller doesn't poison the
	// waiters; errors and partial work are never memoized.
	ch := e.flight.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.QueryTimeout)
		defer cancel()

		result, err := e.compute(qctx, q)
		if err != nil {
			return nil, err
		}
		e.cache.Set(key, result, gocache.DefaultExpiration)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, mapQueryError(res.Err)
		}
		return res.Val.(*Result), nil
	}
}

func (e *Engine) validate(q *Query) error {
	switch q.Type {
	case QuerySimple, QueryTrend, QueryMarket, QueryProjection:
	default:
		return fmt.Errorf("%w: unknown query type %q", common.ErrInvalidQuery, q.Type)
	}
	if !postalRe.MatchString(q.PostalCode) {
		return fmt.Errorf("%w: postal code %q is not five digits", common.ErrInvalidQuery, q.PostalCode)
	}
	if q.Type == QuerySimple && q.Address == "" {
		return fmt.Errorf("%w: simple queries need an exact address", common.ErrInvalidQuery)
	}
	if q.PropertyType != "" {
		if _, ok := model.ParsePropertyType(string(q.PropertyType)); !ok {
			return fmt.Errorf("%w: unsupported property type %q", common.ErrInvalidQuery, q.PropertyType)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return fmt.Errorf("%w: date window ends before it starts", common.ErrInvalidQuery)
	}
	if q.Type == QueryProjection && q.TargetDate.IsZero() {
		q.TargetDate = time.Now().UTC().AddDate(1, 0, 0)
	}
	return nil
}

func (e *Engine) compute(ctx context.Context, q Query) (*Result, error) {
	candidates, err := e.retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	samples := toSamples(candidates)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no priced sales match the filter", common.ErrInsufficientData)
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}

	filtered, removed, skipped := filterOutliers(values, e.cfg.IQRMultiplier, e.cfg.MinSampleSize)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: every candidate was an outlier", common.ErrInsufficientData)
	}
	if !skipped {
		lower, upper := iqrBounds(values, e.cfg.IQRMultiplier)
		samples = filterSamples(samples, lower, upper)
	}

	result := &Result{
		Type:       q.Type,
		Stats:      summarize(filtered, removed),
		Confidence: ConfidenceNormal,
	}
	if skipped {
		result.Confidence = ConfidenceLow
	}

	switch q.Type {
	case QuerySimple:
		result.Sales = candidates
	case QueryTrend:
		result.Trend = buildTrend(samples)
	case QueryMarket:
		result.Market = e.assessMarket(q, result.Stats)
	case QueryProjection:
		result.Trend = buildTrend(samples)
		result.Market = e.assessMarket(q, result.Stats)
		projection, projErr := e.project(q, result)
		if projErr != nil {
			return nil, projErr
		}
		result.Projection = projection
	}

	return result, nil
}

// retrieve gathers the candidate grouped transactions for a query.
// Exact-address queries hit the address indexes; area queries start at
// the postal code and widen to the department when the sample is too
// thin for stable statistics.
func (e *Engine) retrieve(ctx context.Context, q Query) ([]model.GroupedTransaction, error) {
	since := q.From
	if since.IsZero() && q.Type != QuerySimple && q.Type != QueryTrend && e.cfg.MonthsBack > 0 {
		since = time.Now().UTC().AddDate(0, -e.cfg.MonthsBack, 0)
	}

	if q.Type == QuerySimple {
		grouped, err := e.store.GetGroupedByAddress(ctx, q.Address, q.PostalCode, q.PropertyType, since, e.cfg.MaxComparables)
		if err != nil {
			return nil, err
		}
		if len(grouped) > 0 {
			return clipWindow(grouped, q.To), nil
		}
		// The grouped set may not be materialized yet; exact-address
		// history is still answerable straight from the records.
		records, err := e.store.GetRecordsByAddress(ctx, q.Address, q.PostalCode, q.PropertyType, since, e.cfg.MaxComparables)
		if err != nil {
			return nil, err
		}
		return clipWindow(recordsAsGroups(records), q.To), nil
	}

	var minSurface, maxSurface float64
	if q.SurfaceArea > 0 && q.Type != QueryTrend {
		minSurface = q.SurfaceArea * (1 - e.cfg.SurfaceBandPct)
		maxSurface = q.SurfaceArea * (1 + e.cfg.SurfaceBandPct)
	}

	limit := e.cfg.MaxComparables
	if q.Type == QueryTrend || q.Type == QueryProjection {
		limit = 0 // trends need the full series, not the freshest slice
	}

	grouped, err := e.store.GetGroupedByArea(ctx, q.PostalCode, "", q.PropertyType, minSurface, maxSurface, since, limit)
	if err != nil {
		return nil, err
	}
	if len(grouped) < e.cfg.MinSampleSize {
		wider, widerErr := e.store.GetGroupedByArea(ctx, q.PostalCode, q.PostalCode[:2], q.PropertyType, minSurface, maxSurface, since, limit)
		if widerErr != nil {
			return nil, widerErr
		}
		if len(wider) > len(grouped) {
			grouped = wider
		}
	}
	return clipWindow(grouped, q.To), nil
}

func (e *Engine) assessMarket(q Query, stats *SummaryStats) *MarketAssessment {
	assessment := &MarketAssessment{
		ComparableCount:         stats.Count,
		MarketMeanPricePerSqm:   stats.Mean,
		MarketMedianPricePerSqm: stats.Median,
	}

	if q.SurfaceArea > 0 {
		assessment.EstimatedValue = stats.Median * q.SurfaceArea
		if q.AskingPrice > 0 {
			assessment.AskingPricePerSqm = q.AskingPrice / q.SurfaceArea
			if stats.Mean > 0 {
				assessment.DeviationPct = (assessment.AskingPricePerSqm - stats.Mean) / stats.Mean * 100
			}
		}
	}

	assessment.Recommendation = recommend(assessment.DeviationPct, q.AskingPrice > 0 && q.SurfaceArea > 0)
	if e.cfg.MaxComparables > 0 {
		score := float64(stats.Count) / float64(e.cfg.MaxComparables) * 100
		if score > 100 {
			score = 100
		}
		assessment.ConfidenceScore = score
	}
	return assessment
}

// recommend buckets the asking-price deviation into operator guidance.
func recommend(deviationPct float64, priced bool) string {
	if !priced {
		return "No asking price to assess"
	}
	switch {
	case deviationPct < -10:
		return "Excellent deal - Below market price"
	case deviationPct < -5:
		return "Good deal - Slightly below market"
	case deviationPct < 5:
		return "Fair price - At market value"
	case deviationPct < 10:
		return "Slightly overpriced - Room for negotiation"
	case deviationPct < 20:
		return "Overpriced - Significant negotiation needed"
	default:
		return "Heavily overpriced - Reconsider or negotiate heavily"
	}
}

// project combines the trend slope with the latest area mean into a
// forward estimate for the target date.
func (e *Engine) project(q Query, result *Result) (*Projection, error) {
	if result.Trend == nil || len(result.Trend.Points) < 2 {
		return nil, fmt.Errorf("%w: not enough history to fit a trend", common.ErrInsufficientData)
	}

	last := result.Trend.Points[len(result.Trend.Points)-1]
	years := yearsBetween(last.Bucket, q.TargetDate)
	estimate := last.MeanPricePerSqm + result.Trend.SlopePerYear*years
	if estimate < 0 {
		estimate = 0
	}

	return &Projection{
		TargetDate:           q.TargetDate,
		BasePricePerSqm:      last.MeanPricePerSqm,
		SlopePerYear:         result.Trend.SlopePerYear,
		EstimatedPricePerSqm: estimate,
	}, nil
}

func toSamples(grouped []model.GroupedTransaction) []sample {
	samples := make([]sample, 0, len(grouped))
	for i := range grouped {
		if grouped[i].GroupedPricePerSqm == nil {
			continue
		}
		samples = append(samples, sample{
			date:  grouped[i].SaleDate,
			value: *grouped[i].GroupedPricePerSqm,
		})
	}
	return samples
}

func filterSamples(samples []sample, lower, upper float64) []sample {
	kept := make([]sample, 0, len(samples))
	for _, s := range samples {
		if s.value < lower || s.value > upper {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// clipWindow drops sales after the end of the requested window. The
// store handles the lower bound; the upper bound is rare enough to
// apply here.
func clipWindow(grouped []model.GroupedTransaction, to time.Time) []model.GroupedTransaction {
	if to.IsZero() {
		return grouped
	}
	kept := make([]model.GroupedTransaction, 0, len(grouped))
	for _, g := range grouped {
		if g.SaleDate.After(to) {
			continue
		}
		kept = append(kept, g)
	}
	return kept
}

// recordsAsGroups lifts raw per-lot records into single-lot groups so
// exact-address queries work before the first materialization.
func recordsAsGroups(records []model.TransactionRecord) []model.GroupedTransaction {
	grouped := make([]model.GroupedTransaction, 0, len(records))
	for i := range records {
		r := &records[i]
		g := model.GroupedTransaction{
			GroupID:            r.GroupID,
			RepresentativeID:   r.ID,
			SaleDate:           r.SaleDate,
			SalePrice:          r.SalePrice,
			PropertyType:       r.PropertyType,
			Address:            r.Address,
			PostalCode:         r.PostalCode,
			City:               r.City,
			Department:         r.Department,
			UnitCount:          1,
			TotalSurfaceArea:   r.SurfaceArea,
			TotalLandSurface:   r.LandSurface,
			GroupedPricePerSqm: r.PricePerSqm,
			Lots: []model.LotDetail{{
				ID:          r.ID,
				SurfaceArea: r.SurfaceArea,
				Rooms:       r.Rooms,
				PricePerSqm: r.PricePerSqm,
			}},
		}
		if r.Rooms != nil {
			g.TotalRooms = *r.Rooms
		}
		grouped = append(grouped, g)
	}
	return grouped
}

func cacheKey(q Query) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%.2f|%.2f",
		q.Type, q.Address, q.PostalCode, q.PropertyType,
		q.From.Format("2006-01-02"), q.To.Format("2006-01-02"),
		q.TargetDate.Format("2006-01-02"), q.SurfaceArea, q.AskingPrice)
}

func mapQueryError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrQueryTimeout, err)
	}
	return err
}
