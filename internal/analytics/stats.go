package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// summaryPercentiles is the percentile set reported on every result.
var summaryPercentiles = []int{10, 25, 50, 75, 90}

// percentile computes the p'th percentile of sorted values using linear
// interpolation between ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the sample standard deviation; it needs at least two points
// to mean anything.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// iqrBounds computes the acceptance interval [Q1 - k*IQR, Q3 + k*IQR].
func iqrBounds(values []float64, k float64) (lower, upper float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

// filterOutliers drops values outside [Q1 - k*IQR, Q3 + k*IQR]. Sets
// smaller than minSample are returned untouched with skipped=true:
// quartiles over a handful of points are unstable either way, so the
// caller flags the result low-confidence instead.
func filterOutliers(values []float64, k float64, minSample int) (filtered []float64, removed int, skipped bool) {
	if len(values) < minSample {
		return values, 0, true
	}

	lower, upper := iqrBounds(values, k)

	filtered = make([]float64, 0, len(values))
	for _, v := range values {
		if v < lower || v > upper {
			removed++
			continue
		}
		filtered = append(filtered, v)
	}
	return filtered, removed, false
}

// summarize computes the shared summary statistics over a filtered set.
func summarize(values []float64, removed int) *SummaryStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := &SummaryStats{
		Count:           len(values),
		OutliersRemoved: removed,
		Mean:            mean(values),
		Median:          percentile(sorted, 50),
		StdDev:          stdDev(values),
		Percentiles:     make(map[int]float64, len(summaryPercentiles)),
	}
	if len(sorted) > 0 {
		stats.Min = sorted[0]
		stats.Max = sorted[len(sorted)-1]
	}
	for _, p := range summaryPercentiles {
		stats.Percentiles[p] = percentile(sorted, float64(p))
	}
	return stats
}

// sample pairs one observation with its sale date for trend bucketing.
type sample struct {
	date  time.Time
	value float64
}

// bucketSpan decides the trend granularity: quarters for short windows,
// calendar years otherwise.
func bucketSpan(samples []sample) string {
	if len(samples) == 0 {
		return "year"
	}
	first, last := samples[0].date, samples[0].date
	for _, s := range samples[1:] {
		if s.date.Before(first) {
			first = s.date
		}
		if s.date.After(last) {
			last = s.date
		}
	}
	if last.Sub(first) < 3*365*24*time.Hour {
		return "quarter"
	}
	return "year"
}

// bucketStart truncates a date to its bucket boundary.
func bucketStart(t time.Time, span string) time.Time {
	if span == "quarter" {
		q := (int(t.Month()) - 1) / 3
		return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

func bucketLabel(t time.Time, span string) string {
	if span == "quarter" {
		q := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%dQ%d", t.Year(), q)
	}
	return t.Format("2006")
}

// buildTrend partitions samples into time buckets, averages each bucket,
// and fits an ordinary least-squares line through the bucket means.
// Needs at least two buckets; returns nil otherwise.
func buildTrend(samples []sample) *Trend {
	if len(samples) == 0 {
		return nil
	}

	span := bucketSpan(samples)
	byBucket := make(map[time.Time][]float64)
	for _, s := range samples {
		b := bucketStart(s.date, span)
		byBucket[b] = append(byBucket[b], s.value)
	}

	points := make([]TrendPoint, 0, len(byBucket))
	for b, values := range byBucket {
		points = append(points, TrendPoint{
			Bucket:          b,
			Label:           bucketLabel(b, span),
			MeanPricePerSqm: mean(values),
			Count:           len(values),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket.Before(points[j].Bucket) })

	if len(points) < 2 {
		return nil
	}

	// Least squares over (fractional years since first bucket, mean).
	origin := points[0].Bucket
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := yearsBetween(origin, p.Bucket)
		y := p.MeanPricePerSqm
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(len(points))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom

	trend := &Trend{Points: points, SlopePerYear: slope}
	if avg := sumY / n; avg > 0 {
		trend.AnnualGrowthPct = slope / avg * 100
	}
	return trend
}

func yearsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / (24 * 365.25)
}
