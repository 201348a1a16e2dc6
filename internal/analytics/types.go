// Package analytics answers price-estimation queries over the imported
// DVF data: outlier-resistant summary statistics, market comparison, and
// trend projection.
package analytics

import (
	"time"

	"github.com/carrefour/dvf-engine/internal/model"
)

// QueryType selects one of the four result shapes.
type QueryType string

// Supported query types. All four share retrieval, outlier filtering and
// summary statistics; Trend, Market and Projection add the time-series
// steps on top.
const (
	QuerySimple     QueryType = "simple"
	QueryTrend      QueryType = "trend"
	QueryMarket     QueryType = "market"
	QueryProjection QueryType = "projection"
)

// Confidence annotates a result with how trustworthy its statistics are.
type Confidence string

// Confidence levels. Low means the candidate set was below the minimum
// sample threshold, so outlier removal was skipped.
const (
	ConfidenceNormal Confidence = "normal"
	ConfidenceLow    Confidence = "low"
)

// Query is the analytics request consumed by the REST layer.
type Query struct {
	From         time.Time
	To           time.Time
	TargetDate   time.Time
	Address      string
	PostalCode   string
	PropertyType model.PropertyType
	Type         QueryType
	SurfaceArea  float64
	AskingPrice  float64
}

// SummaryStats are the outlier-filtered price-per-sqm statistics shared
// by every query type.
type SummaryStats struct {
	Percentiles     map[int]float64
	Count           int
	OutliersRemoved int
	Mean            float64
	Median          float64
	StdDev          float64
	Min             float64
	Max             float64
}

// TrendPoint is one time bucket of the market trend.
type TrendPoint struct {
	Bucket          time.Time
	Label           string
	MeanPricePerSqm float64
	Count           int
}

// Trend is a fitted time series of area averages.
type Trend struct {
	Points          []TrendPoint
	SlopePerYear    float64
	AnnualGrowthPct float64
}

// MarketAssessment compares an asking price against the filtered
// comparable set.
type MarketAssessment struct {
	Recommendation          string
	ComparableCount         int
	EstimatedValue          float64
	AskingPricePerSqm       float64
	MarketMeanPricePerSqm   float64
	MarketMedianPricePerSqm float64
	DeviationPct            float64
	ConfidenceScore         float64
}

// Projection is a forward price estimate for a target date.
type Projection struct {
	TargetDate           time.Time
	EstimatedPricePerSqm float64
	BasePricePerSqm      float64
	SlopePerYear         float64
}

// Result is the answer to one analytics query. Stats is always set; the
// remaining sections depend on the query type.
type Result struct {
	Stats      *SummaryStats
	Trend      *Trend
	Market     *MarketAssessment
	Projection *Projection
	Sales      []model.GroupedTransaction
	Type       QueryType
	Confidence Confidence
}
