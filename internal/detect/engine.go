package detect

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/apaudit/internal/baseline"
	"github.com/sells-group/apaudit/internal/gate"
	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/retry"
	"github.com/sells-group/apaudit/internal/store"
)

const detectorConcurrency = 8

// Engine runs one tenant's detection pass end to end: baselines first, then
// all detectors, then the gate, then the anomaly upserts. Tenants are
// independent; callers may run engines for different tenants in parallel.
type Engine struct {
	store store.Store
	gate  *gate.Gate
	cfg   Config
	scope *ScopeDetector
	now   func() time.Time
}

// NewEngine creates an Engine with the closed set of synchronous detectors.
func NewEngine(st store.Store, g *gate.Gate, cfg Config) *Engine {
	return &Engine{store: st, gate: g, cfg: cfg, now: time.Now}
}

// WithScope enables the external scope-drift delegate.
func (e *Engine) WithScope(d *ScopeDetector) *Engine {
	e.scope = d
	return e
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run executes a detection run for the tenant. The only run-fatal condition
// is failing to load the tenant's data at all; that error is marked
// transient so the scheduling caller can retry. Everything else — a detector
// fault on one bill, a scope timeout, a single failed upsert — is isolated
// and logged, and the run completes.
func (e *Engine) Run(ctx context.Context, tenant model.Tenant) (*model.DetectionRun, error) {
	log := zap.L().With(zap.String("tenant_id", tenant.ID), zap.String("tenant", tenant.Name))
	started := e.now().UTC()

	vendors, bills, err := e.loadTenantData(ctx, tenant)
	if err != nil {
		return nil, retry.MarkTransient(eris.Wrapf(err, "detect: load data for tenant %s", tenant.ID))
	}

	run, err := e.store.CreateRun(ctx, tenant.ID)
	if err != nil {
		return nil, retry.MarkTransient(eris.Wrap(err, "detect: create run"))
	}

	// Baselines for every vendor complete before any detector reads them.
	baselines := e.computeBaselines(ctx, run.ID, tenant, vendors, bills)

	findings := e.runDetectors(ctx, tenant, vendors, bills, baselines, log)

	stats := e.gateAndPersist(ctx, tenant, run.ID, bills, vendors, baselines, findings, started, log)

	if err := e.store.CompleteRun(ctx, run.ID, model.RunStatusComplete, stats); err != nil {
		log.Error("failed to finalize detection run", zap.Error(err))
	}
	run.Status = model.RunStatusComplete
	run.Stats = stats

	log.Info("detection run complete",
		zap.String("run_id", run.ID),
		zap.Int("bills_checked", stats.BillsChecked),
		zap.Int("alert_queued", stats.AlertQueued),
		zap.Float64("total_impact", stats.TotalImpact),
		zap.Int64("duration_ms", stats.DurationMS),
	)
	return run, nil
}

// loadTenantData loads vendors, bills and payments, folding payment links
// into the bills' paid flags. Bills are loaded a duplicate-window earlier
// than the baseline window so lookback pairs at the window edge resolve.
func (e *Engine) loadTenantData(ctx context.Context, tenant model.Tenant) ([]model.Vendor, []model.Bill, error) {
	since := e.now().UTC().AddDate(0, 0, -(e.cfg.BaselineDays + e.cfg.DuplicateWindowDays))

	vendors, err := e.store.ListVendors(ctx, tenant.ID)
	if err != nil {
		return nil, nil, err
	}
	bills, err := e.store.ListBills(ctx, tenant.ID, since)
	if err != nil {
		return nil, nil, err
	}
	payments, err := e.store.ListPayments(ctx, tenant.ID)
	if err != nil {
		return nil, nil, err
	}

	paid := make(map[string]bool, len(payments))
	for _, p := range payments {
		paid[p.BillID] = true
	}
	for i := range bills {
		if paid[bills[i].ID] {
			bills[i].Paid = true
		}
	}
	return vendors, bills, nil
}

// computeBaselines snapshots a Baseline per vendor with enough history.
func (e *Engine) computeBaselines(ctx context.Context, runID string, tenant model.Tenant, vendors []model.Vendor, bills []model.Bill) map[string]*model.Baseline {
	opts := baseline.Options{
		WindowDays: e.cfg.BaselineDays,
		MinSamples: e.cfg.MinSamples,
		Currency:   tenant.BaseCurrency,
	}
	asOf := e.now().UTC()

	var snapshot []model.Baseline
	for _, v := range vendors {
		bl, ok := baseline.Compute(v.ID, bills, opts, asOf)
		if !ok {
			continue // cold start: exempt from outlier checks, nothing to save
		}
		bl.RunID = runID
		snapshot = append(snapshot, bl)
	}

	out := make(map[string]*model.Baseline, len(snapshot))
	for i := range snapshot {
		out[snapshot[i].VendorID] = &snapshot[i]
	}

	if len(snapshot) > 0 {
		if err := e.store.SaveBaselines(ctx, runID, snapshot); err != nil {
			zap.L().Error("failed to save baseline snapshot", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return out
}

// runDetectors evaluates every bill against the detector set. The three
// synchronous detectors run concurrently; the scope delegate runs
// out-of-band with its own timeout so a slow external call never stalls the
// rest, and its verdict (or absence) is merged before gating.
func (e *Engine) runDetectors(ctx context.Context, tenant model.Tenant, vendors []model.Vendor, bills []model.Bill, baselines map[string]*model.Baseline, log *zap.Logger) []model.Finding {
	byVendor := make(map[string][]model.Bill)
	for _, b := range bills {
		byVendor[b.VendorID] = append(byVendor[b.VendorID], b)
	}
	vendorNames := make(map[string]string, len(vendors))
	for _, v := range vendors {
		vendorNames[v.ID] = v.DisplayName
	}

	detectors := []Detector{DuplicateDetector{}, OutlierDetector{}, RoundNumberDetector{}}

	var mu sync.Mutex
	var findings []model.Finding

	scopeResults := make(chan ScopeResult, len(bills))
	var scopeGroup errgroup.Group
	scopeGroup.SetLimit(detectorConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detectorConcurrency)

	for _, b := range bills {
		in := Input{
			Bill:         b,
			Baseline:     baselines[b.VendorID],
			VendorBills:  byVendor[b.VendorID],
			BaseCurrency: tenant.BaseCurrency,
			Config:       e.cfg,
		}

		if e.scope != nil && len(b.LineItems) > 0 {
			scopeGroup.Go(func() error {
				scopeResults <- e.scope.Evaluate(ctx, in, vendorNames[b.VendorID])
				return nil
			})
		}

		for _, d := range detectors {
			g.Go(func() error {
				f, err := d.Detect(gctx, in)
				if err != nil {
					// Per-bill, per-detector faults never abort the run.
					log.Warn("detector failed on bill",
						zap.String("detector", string(d.Type())),
						zap.String("bill_id", b.ID),
						zap.Error(err),
					)
					return nil
				}
				if f != nil {
					mu.Lock()
					findings = append(findings, *f)
					mu.Unlock()
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	_ = scopeGroup.Wait()
	close(scopeResults)

	for res := range scopeResults {
		switch res.State {
		case ScopeFailed:
			log.Warn("scope delegate failed; proceeding without verdict",
				zap.String("bill_id", res.BillID),
				zap.Error(res.Err),
			)
		case ScopeVerdict:
			if res.Finding != nil {
				findings = append(findings, *res.Finding)
			}
		}
	}
	return findings
}

// gateAndPersist funnels findings through the confidence gate and upserts
// the resulting anomalies keyed by (tenant, bill, type).
func (e *Engine) gateAndPersist(ctx context.Context, tenant model.Tenant, runID string, bills []model.Bill, vendors []model.Vendor, baselines map[string]*model.Baseline, findings []model.Finding, started time.Time, log *zap.Logger) *model.RunStats {
	stats := &model.RunStats{
		BillsChecked:     len(bills),
		VendorsTotal:     len(vendors),
		VendorsBaselined: len(baselines),
		CountByType:      make(map[model.AnomalyType]int),
	}

	for _, f := range findings {
		a := e.gate.Score(tenant.ID, runID, f)
		if err := e.store.UpsertAnomaly(ctx, a); err != nil {
			log.Error("failed to persist anomaly",
				zap.String("bill_id", a.BillID),
				zap.String("type", string(a.Type)),
				zap.Error(err),
			)
			continue
		}
		stats.CountByType[a.Type]++
		stats.TotalImpact += a.Impact
		if a.AlertWorthy() {
			stats.AlertQueued++
		}
	}

	stats.DurationMS = e.now().UTC().Sub(started).Milliseconds()
	return stats
}
