package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
)

// zeroVarianceSignal is the surrogate z-score reported when a vendor's
// history has zero variance. With stddev 0 any deviation is an outlier;
// dividing would be undefined, so the signal is pinned instead.
const zeroVarianceSignal = 99

// OutlierDetector flags paid bills statistically above the vendor baseline.
// Vendors without a usable baseline (cold start) are silently exempt. Only
// positive deviations are business-relevant; unexpectedly low bills are
// logged at debug and never surfaced.
type OutlierDetector struct{}

func (OutlierDetector) Type() model.AnomalyType { return model.AnomalyPriceCreep }

func (OutlierDetector) Detect(_ context.Context, in Input) (*model.Finding, error) {
	b := in.Bill
	bl := in.Baseline
	if !b.Paid || bl == nil || bl.SampleCount < in.Config.MinSamples {
		return nil, nil
	}
	if in.offCurrency() {
		// The baseline is built from base-currency bills only; z-scoring a
		// foreign amount against it would be meaningless.
		zap.L().Debug("off-currency bill excluded from outlier check",
			zap.String("bill_id", b.ID),
			zap.String("currency", b.Currency),
		)
		return nil, nil
	}

	z, flagged := zScore(b.Total, bl.MeanAmount, bl.StddevAmount, in.Config)
	if flagged {
		impact := b.Total - bl.MeanAmount
		if impact < 0 {
			impact = 0
		}
		return &model.Finding{
			BillID: b.ID,
			Type:   model.AnomalyPriceCreep,
			Signal: z,
			Impact: impact,
			Detail: fmt.Sprintf("amount $%.2f is %.1fσ above vendor baseline ($%.2f over %d bills)",
				b.Total, z, bl.MeanAmount, bl.SampleCount),
		}, nil
	}

	if z < 0 {
		zap.L().Debug("negative price deviation suppressed",
			zap.String("bill_id", b.ID),
			zap.Float64("z", z),
		)
	}

	// Amount is unremarkable; check line-item unit prices when the baseline
	// carries enough unit-price history.
	if !b.HasLineItems || bl.UnitPriceCount < in.Config.MinSamples {
		return nil, nil
	}
	for _, li := range b.LineItems {
		if li.UnitPrice <= 0 {
			continue
		}
		uz, uflagged := zScore(li.UnitPrice, bl.MeanUnitPrice, bl.StddevUnitPrice, in.Config)
		if !uflagged {
			continue
		}
		impact := (li.UnitPrice - bl.MeanUnitPrice) * max(li.Quantity, 1)
		if impact < 0 {
			impact = 0
		}
		return &model.Finding{
			BillID: b.ID,
			Type:   model.AnomalyPriceCreep,
			Signal: uz,
			Impact: impact,
			Detail: fmt.Sprintf("unit price $%.2f for %q is %.1fσ above vendor baseline ($%.2f)",
				li.UnitPrice, li.Description, uz, bl.MeanUnitPrice),
		}, nil
	}
	return nil, nil
}

// zScore computes the z-score and whether it crosses the positive threshold.
// Zero-variance baselines treat any amount above mean (beyond the duplicate
// cent tolerance) as an outlier with the pinned surrogate signal.
func zScore(value, mean, stddev float64, cfg Config) (float64, bool) {
	if stddev <= 0 {
		if value > mean+cfg.DuplicateTolerance {
			return zeroVarianceSignal, true
		}
		return 0, false
	}
	z := (value - mean) / stddev
	return z, z > cfg.ZThreshold
}
