// Package forecast projects per-product cumulative consumption.
package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/pantrylens/backend/internal/domain"
)

// degenerateValue replaces the last point of a series that never moves
// from zero so the estimator has something to fit
const degenerateValue = 0.0001

// Series is a daily cumulative consumption curve. Values[i] is the total
// consumed by the end of day Start+i.
type Series struct {
	Start  time.Time
	Values []float64
}

// BuildSeries resamples the consumption events of productID into a daily
// cumulative series spanning firstSeen to now. Undone and spoiled events
// and stock increases are ignored.
func BuildSeries(events []domain.ConsumptionEvent, productID int, firstSeen, now time.Time) Series {
	var own []domain.ConsumptionEvent
	for _, e := range events {
		if e.ProductID != productID || e.Undone || e.Spoiled || e.Amount >= 0 {
			continue
		}
		own = append(own, e)
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].Timestamp.Before(own[j].Timestamp) })

	start := day(firstSeen)
	if firstSeen.IsZero() || firstSeen.After(now) {
		start = day(now)
	}
	if len(own) > 0 && day(own[0].Timestamp).Before(start) {
		start = day(own[0].Timestamp)
	}

	daily := make([]float64, dayIndex(start, now)+1)
	for _, e := range own {
		i := dayIndex(start, e.Timestamp)
		if i >= len(daily) {
			continue
		}
		daily[i] += -e.Amount
	}

	values := make([]float64, len(daily))
	var total, peak float64
	for i, v := range daily {
		total += v
		values[i] = total
		peak = math.Max(peak, total)
	}
	if peak == 0 {
		values[len(values)-1] = degenerateValue
	}
	return Series{Start: start, Values: values}
}

// day truncates t to midnight in its own location
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayIndex counts calendar days from start to t
func dayIndex(start, t time.Time) int {
	return int(math.Round(day(t).Sub(start).Hours() / 24))
}
