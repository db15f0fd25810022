// Package baseline computes per-vendor rolling statistical baselines.
//
// All standard deviations produced here are Bessel-corrected sample standard
// deviations (divide by n-1). This is the single place that choice is made;
// everything downstream inherits it.
package baseline

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/apaudit/internal/model"
)

// Options bounds the baseline window.
type Options struct {
	WindowDays int    // trailing window length, default 90
	MinSamples int    // minimum paid bills for a usable baseline, default 3
	Currency   string // tenant base currency; off-currency bills are excluded
}

const (
	defaultWindowDays = 90
	defaultMinSamples = 3
)

// Compute derives a vendor's Baseline from its paid bills as of a fixed
// point in time. It is a pure function: the same bill set always yields the
// same Baseline, which makes re-runs trivially idempotent.
//
// The second return value is false when the vendor has fewer paid in-window
// bills than MinSamples. That is a recognized state, not an error: such
// vendors are exempt from statistical outlier detection for the run but
// remain eligible for duplicate and round-number checks.
func Compute(vendorID string, bills []model.Bill, opts Options, asOf time.Time) (model.Baseline, bool) {
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	minSamples := opts.MinSamples
	if minSamples <= 0 {
		minSamples = defaultMinSamples
	}

	end := asOf.UTC()
	start := end.AddDate(0, 0, -windowDays)

	var amounts []float64
	var unitPrices []float64
	var dates []time.Time
	var lastSeen time.Time

	for _, b := range bills {
		if b.VendorID != vendorID || !b.Paid {
			continue
		}
		if opts.Currency != "" && b.Currency != "" && b.Currency != opts.Currency {
			// No baseline mixes currencies; off-currency bills are a
			// data-quality signal handled at ingest time.
			continue
		}
		if b.BillDate.Before(start) || b.BillDate.After(end) {
			continue
		}
		amounts = append(amounts, b.Total)
		dates = append(dates, b.BillDate)
		if b.BillDate.After(lastSeen) {
			lastSeen = b.BillDate
		}
		for _, li := range b.LineItems {
			if li.UnitPrice > 0 {
				unitPrices = append(unitPrices, li.UnitPrice)
			}
		}
	}

	if len(amounts) < minSamples {
		return model.Baseline{}, false
	}

	mean, stddev := meanStddev(amounts)
	upMean, upStddev := meanStddev(unitPrices)

	return model.Baseline{
		VendorID:        vendorID,
		WindowStart:     start,
		WindowEnd:       end,
		MeanAmount:      mean,
		StddevAmount:    stddev,
		SampleCount:     len(amounts),
		MeanUnitPrice:   upMean,
		StddevUnitPrice: upStddev,
		UnitPriceCount:  len(unitPrices),
		MeanIntervalDay: meanIntervalDays(dates),
		LastSeen:        lastSeen,
	}, true
}

// meanStddev returns the mean and sample standard deviation. A single sample
// (or none) has stddev 0; callers must treat zero variance as "any deviation
// is an outlier" rather than dividing by it.
func meanStddev(vals []float64) (float64, float64) {
	n := len(vals)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	variance := ss / float64(n-1)
	return mean, math.Sqrt(variance)
}

// meanIntervalDays is the average gap between consecutive bill dates.
func meanIntervalDays(dates []time.Time) float64 {
	if len(dates) < 2 {
		return 0
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	total := sorted[len(sorted)-1].Sub(sorted[0])
	return total.Hours() / 24 / float64(len(sorted)-1)
}
