package forecast

import (
	"math"
	"time"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const (
	week              = 7 * day
	trendBand         = 0.10
	seasonalAmplitude = 0.2
	DefaultWeeksAhead = 4
)

// Demand trend labels.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// DemandPattern summarises weekly outbound demand for one item.
type DemandPattern struct {
	WeeklyDemand  []float64 `json:"weekly_demand"` // oldest week first
	AverageWeekly float64   `json:"average_weekly"`
	Trend         string    `json:"trend"`
	TrendRate     float64   `json:"trend_rate"`
	Seasonality   float64   `json:"seasonality"` // coefficient of variation, capped at 1
	Volatility    float64   `json:"volatility"`  // std deviation of weekly quantities
	Forecast      []float64 `json:"forecast"`
}

// WeeklyBuckets groups outbound quantity into seven-day buckets ending at now,
// oldest first.
func WeeklyBuckets(movements []models.StockMovement, now time.Time) []float64 {
	start, _ := span(movements, now)
	n := int(now.Sub(start)/week) + 1
	buckets := make([]float64, n)
	for _, m := range movements {
		q, ok := outbound(m)
		if !ok {
			continue
		}
		back := int(now.Sub(m.CreatedAt) / week)
		if back < 0 {
			back = 0
		}
		if back >= n {
			back = n - 1
		}
		buckets[n-1-back] += q
	}
	return buckets
}

// AnalyzeDemand classifies the weekly demand pattern and forecasts the next
// weeksAhead weeks.
func AnalyzeDemand(movements []models.StockMovement, now time.Time, weeksAhead int) DemandPattern {
	if weeksAhead <= 0 {
		weeksAhead = DefaultWeeksAhead
	}
	weekly := WeeklyBuckets(movements, now)
	mean, stddev := meanStdDev(weekly)

	p := DemandPattern{
		WeeklyDemand:  weekly,
		AverageWeekly: round2(mean),
		Trend:         TrendStable,
		Volatility:    round2(stddev),
	}
	if mean > 0 {
		p.Seasonality = math.Min(stddev/mean, 1)
	}

	half := len(weekly) / 2
	secondAvg := mean
	if half > 0 {
		firstAvg, _ := meanStdDev(weekly[:half])
		secondAvg, _ = meanStdDev(weekly[half:])
		if firstAvg > 0 {
			p.TrendRate = (secondAvg - firstAvg) / firstAvg
		}
	}
	switch {
	case p.TrendRate > trendBand:
		p.Trend = TrendIncreasing
	case p.TrendRate < -trendBand:
		p.Trend = TrendDecreasing
	}

	perWeek := p.TrendRate / float64(len(weekly))
	_, isoWeek := now.ISOWeek()
	p.Forecast = make([]float64, weeksAhead)
	for i := range p.Forecast {
		growth := math.Pow(1+perWeek, float64(i+1))
		seasonal := 1 + seasonalAmplitude*p.Seasonality*math.Sin(2*math.Pi*float64(isoWeek+i+1)/52)
		p.Forecast[i] = round2(math.Max(secondAvg*growth*seasonal, 0))
	}
	return p
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
