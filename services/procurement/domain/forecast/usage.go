// Package forecast turns stock-movement history into consumption rates,
// stockout predictions, urgency tiers and reorder policies. Everything here is
// pure: callers pass "now" explicitly.
package forecast

import (
	"math"
	"time"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const day = 24 * time.Hour

func outbound(m models.StockMovement) (float64, bool) {
	if m.Type != models.MovementOut {
		return 0, false
	}
	return math.Abs(float64(m.Quantity)), true
}

// span returns the earliest outbound movement and the observed window in
// days, never less than one.
func span(movements []models.StockMovement, now time.Time) (time.Time, float64) {
	start := now
	for _, m := range movements {
		if _, ok := outbound(m); ok && m.CreatedAt.Before(start) {
			start = m.CreatedAt
		}
	}
	days := now.Sub(start).Hours() / 24
	if days < 1 {
		days = 1
	}
	return start, days
}

// DailyUsageRate is total outbound quantity divided by the observed span.
func DailyUsageRate(movements []models.StockMovement, now time.Time) float64 {
	total := 0.0
	for _, m := range movements {
		if q, ok := outbound(m); ok {
			total += q
		}
	}
	if total == 0 {
		return 0
	}
	_, days := span(movements, now)
	return total / days
}

// Trend is the relative change in outbound quantity between the first and
// second half of the observed window. An empty first half yields 0.
func Trend(movements []models.StockMovement, now time.Time) float64 {
	start, _ := span(movements, now)
	mid := start.Add(now.Sub(start) / 2)

	var first, second float64
	for _, m := range movements {
		q, ok := outbound(m)
		if !ok {
			continue
		}
		if m.CreatedAt.Before(mid) {
			first += q
		} else {
			second += q
		}
	}
	if first == 0 {
		return 0
	}
	return (second - first) / first
}

// DailyDemandStats returns the mean and population standard deviation of
// outbound quantity per calendar day over the observed window, counting days
// without movements as zero.
func DailyDemandStats(movements []models.StockMovement, now time.Time) (mean, stddev float64) {
	_, days := span(movements, now)
	n := int(math.Ceil(days))
	buckets := make([]float64, n)
	for _, m := range movements {
		q, ok := outbound(m)
		if !ok {
			continue
		}
		idx := int(now.Sub(m.CreatedAt) / day)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		buckets[idx] += q
	}
	return meanStdDev(buckets)
}

func meanStdDev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		stddev += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(stddev / float64(len(xs)))
}
