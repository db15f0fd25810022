// Package detect houses the anomaly detectors and the per-tenant engine
// that orchestrates them. The detector set is a closed set of variants
// dispatched through one interface; new detectors plug into the same gate
// without touching it.
package detect

import (
	"context"

	"github.com/sells-group/apaudit/internal/model"
)

// Config carries the tenant-resolved detection tunables.
type Config struct {
	BaselineDays        int       // trailing baseline window, default 90
	MinSamples          int       // paid bills required for a usable baseline, default 3
	DuplicateWindowDays int       // duplicate lookback, default 7
	DuplicateTolerance  float64   // amount equality tolerance in dollars, default 0.01
	ZThreshold          float64   // outlier z-score threshold, default 2.0
	RoundUnits          []float64 // round-number units, default 100/500/1000
	ScopeHistoryBills   int       // historical bills sent to the scope delegate, default 5
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		BaselineDays:        90,
		MinSamples:          3,
		DuplicateWindowDays: 7,
		DuplicateTolerance:  0.01,
		ZThreshold:          2.0,
		RoundUnits:          []float64{100, 500, 1000},
		ScopeHistoryBills:   5,
	}
}

// Input is everything a detector may read for one bill. Detectors only read;
// each writes exclusively its own findings, which is what lets them run
// concurrently within a run.
type Input struct {
	Bill         model.Bill
	Baseline     *model.Baseline // nil when the vendor has no usable baseline
	VendorBills  []model.Bill    // all paid bills for the same vendor this run
	BaseCurrency string          // tenant base currency; empty disables the currency guard
	Config       Config
}

// offCurrency reports whether the bill is outside the tenant's base
// currency. Such bills are excluded from amount comparisons the same way
// baselines exclude them; they surface only as data-quality signals.
func (in Input) offCurrency() bool {
	return in.BaseCurrency != "" && in.Bill.Currency != in.BaseCurrency
}

// Detector evaluates one bill and returns zero or one raw finding.
type Detector interface {
	Type() model.AnomalyType
	Detect(ctx context.Context, in Input) (*model.Finding, error)
}
