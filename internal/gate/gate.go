// Package gate is the single chokepoint between raw detector findings and
// anything user-visible. Each finding moves raw → scored → dashboard_only or
// alert_queued; nothing external is notified except through this gate.
package gate

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/apaudit/internal/model"
)

// Thresholds are the tenant-resolved gating values.
type Thresholds struct {
	AlertMinAmount float64 // dollar impact above which a finding is alert-worthy
	ZThreshold     float64 // z-score above which a statistical finding is alert-worthy
}

// DefaultThresholds match the documented configuration defaults.
var DefaultThresholds = Thresholds{
	AlertMinAmount: 500,
	ZThreshold:     2.0,
}

const (
	highImpactAmount    = 1000 // dollar impact that promotes a finding to high
	highZScore          = 3.0  // z-score that promotes price creep to high
	lowImpactScopeFloor = 0    // scope verdicts without impact stay low
)

// Gate scores findings and decides alert routing.
type Gate struct {
	thresholds Thresholds
	now        func() time.Time
}

// New creates a Gate. Zero threshold fields fall back to defaults.
func New(th Thresholds) *Gate {
	if th.AlertMinAmount <= 0 {
		th.AlertMinAmount = DefaultThresholds.AlertMinAmount
	}
	if th.ZThreshold <= 0 {
		th.ZThreshold = DefaultThresholds.ZThreshold
	}
	return &Gate{thresholds: th, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Score converts a raw finding into a persisted-shape Anomaly: assigns the
// confidence tier, then routes to alert_queued when the dollar impact exceeds
// AlertMinAmount OR the statistical signal exceeds ZThreshold. The OR is the
// anti-fatigue policy: either a big number or a strong signal is enough,
// neither is required to confirm the other.
func (g *Gate) Score(tenantID, runID string, f model.Finding) model.Anomaly {
	a := model.Anomaly{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		BillID:        f.BillID,
		RelatedBillID: f.RelatedBillID,
		Type:          f.Type,
		Signal:        f.Signal,
		Impact:        f.Impact,
		Detail:        f.Detail,
		RunID:         runID,
		DetectedAt:    g.now().UTC(),
	}

	a.Tier = g.tier(f)
	a.Status = model.StatusDashboardOnly
	if g.alertWorthy(f) {
		a.Status = model.StatusAlertQueued
	}
	return a
}

// tier combines dollar impact and statistical strength into low/medium/high.
func (g *Gate) tier(f model.Finding) model.ConfidenceTier {
	switch f.Type {
	case model.AnomalyRoundNumber:
		// A round total with no itemization is a weak signal on its own;
		// capped below the statistically grounded detectors.
		return model.TierLow
	case model.AnomalyPriceCreep:
		if f.Signal >= highZScore || f.Impact >= highImpactAmount {
			return model.TierHigh
		}
		return model.TierMedium
	case model.AnomalyDuplicate:
		if f.Impact >= highImpactAmount {
			return model.TierHigh
		}
		return model.TierMedium
	case model.AnomalyScopeDrift:
		if f.Impact > lowImpactScopeFloor {
			return model.TierMedium
		}
		return model.TierLow
	default:
		return model.TierLow
	}
}

// alertWorthy applies the OR rule. Both bounds are strict: a finding must
// exceed the dollar or z threshold, not merely reach it. Only price creep
// carries a z-score in its signal; for every other type the dollar threshold
// is the sole trigger.
func (g *Gate) alertWorthy(f model.Finding) bool {
	if f.Impact > g.thresholds.AlertMinAmount {
		return true
	}
	return f.Type == model.AnomalyPriceCreep && f.Signal > g.thresholds.ZThreshold
}
