package detect

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/gate"
	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/store"
	"github.com/sells-group/apaudit/pkg/scopereview"
)

// resurfacingClient flags only bills whose current lines mention resurfacing.
// Stateless, so concurrent engine calls are safe.
type resurfacingClient struct{}

func (resurfacingClient) Compare(_ context.Context, p scopereview.Payload) (*scopereview.Verdict, error) {
	for _, line := range p.Current {
		if strings.Contains(line.Description, "resurfacing") {
			impact := 800.0
			return &scopereview.Verdict{
				Flagged:         true,
				Rationale:       "resurfacing is outside historical scope",
				SuggestedImpact: &impact,
			}, nil
		}
	}
	return &scopereview.Verdict{}, nil
}

var engineNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngineFixture(t *testing.T) (*store.SQLiteStore, model.Tenant) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	tenant := model.Tenant{
		ID:           uuid.New().String(),
		Name:         "acme",
		BaseCurrency: "USD",
		CreatedAt:    engineNow,
	}
	require.NoError(t, st.CreateTenant(ctx, tenant))
	return st, tenant
}

func insertVendor(t *testing.T, st *store.SQLiteStore, tenantID, ext, name string) model.Vendor {
	t.Helper()
	v := model.Vendor{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ExternalID:    ext,
		DisplayName:   name,
		CanonicalName: name,
		CreatedAt:     engineNow,
	}
	require.NoError(t, st.InsertVendor(context.Background(), v))
	return v
}

func insertBill(t *testing.T, st *store.SQLiteStore, tenantID, vendorID string, total float64, daysAgo int) model.Bill {
	t.Helper()
	b := model.Bill{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		VendorID:   vendorID,
		ExternalID: fmt.Sprintf("%s-%d", vendorID[:8], daysAgo),
		Total:      total,
		Currency:   "USD",
		BillDate:   engineNow.AddDate(0, 0, -daysAgo),
		Paid:       true,
		Version:    1,
		IngestedAt: engineNow,
	}
	require.NoError(t, st.InsertBill(context.Background(), b))
	return b
}

func seedDetectionScenario(t *testing.T, st *store.SQLiteStore, tenant model.Tenant) (creepBill, dupBill, roundBill model.Bill) {
	t.Helper()

	// Stable weekly vendor, then one bill far above its band.
	lawn := insertVendor(t, st, tenant.ID, "qb-lawn", "GREENSCAPE")
	for week := 1; week <= 12; week++ {
		insertBill(t, st, tenant.ID, lawn.ID, 440+float64(week), week*7)
	}
	creepBill = insertBill(t, st, tenant.ID, lawn.ID, 980, 2)

	// Identical amount three days apart.
	clean := insertVendor(t, st, tenant.ID, "qb-clean", "SPARKLE CLEANING")
	insertBill(t, st, tenant.ID, clean.ID, 1200, 30)
	dupBill = insertBill(t, st, tenant.ID, clean.ID, 1200, 27)

	// Single round bill, no itemization, no history.
	consult := insertVendor(t, st, tenant.ID, "qb-consult", "MERIDIAN")
	roundBill = insertBill(t, st, tenant.ID, consult.ID, 5000, 1)

	return creepBill, dupBill, roundBill
}

func newTestEngine(st store.Store) *Engine {
	g := gate.New(gate.Thresholds{}).WithNow(func() time.Time { return engineNow })
	return NewEngine(st, g, Defaults()).WithNow(func() time.Time { return engineNow })
}

func TestEngine_Run_EndToEnd(t *testing.T) {
	st, tenant := newEngineFixture(t)
	creepBill, dupBill, roundBill := seedDetectionScenario(t, st, tenant)

	run, err := newTestEngine(st).Run(context.Background(), tenant)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	require.NotNil(t, run.Stats)
	assert.Equal(t, 16, run.Stats.BillsChecked)
	assert.Equal(t, 3, run.Stats.VendorsTotal)
	assert.Equal(t, 1, run.Stats.VendorsBaselined) // only the weekly vendor has 3+ bills
	assert.Equal(t, 1, run.Stats.CountByType[model.AnomalyPriceCreep])
	assert.Equal(t, 1, run.Stats.CountByType[model.AnomalyDuplicate])
	assert.Equal(t, 1, run.Stats.CountByType[model.AnomalyRoundNumber])
	assert.Equal(t, 3, run.Stats.AlertQueued)

	anomalies, err := st.ListAnomalies(context.Background(), store.AnomalyFilter{TenantID: tenant.ID})
	require.NoError(t, err)
	require.Len(t, anomalies, 3)

	byBill := make(map[string]model.Anomaly)
	for _, a := range anomalies {
		byBill[a.BillID] = a
	}

	creep := byBill[creepBill.ID]
	assert.Equal(t, model.AnomalyPriceCreep, creep.Type)
	assert.Equal(t, model.StatusAlertQueued, creep.Status)
	assert.Greater(t, creep.Signal, 3.0)

	dup := byBill[dupBill.ID]
	assert.Equal(t, model.AnomalyDuplicate, dup.Type)
	assert.Equal(t, model.TierHigh, dup.Tier)
	assert.InDelta(t, 1200.0, dup.Impact, 0.001)

	rn := byBill[roundBill.ID]
	assert.Equal(t, model.AnomalyRoundNumber, rn.Type)
	assert.Equal(t, model.TierLow, rn.Tier)

	// Baseline snapshot persisted for the run.
	baselines, err := st.ListBaselines(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, run.ID, baselines[0].RunID)
}

func TestEngine_Run_IdempotentRerun(t *testing.T) {
	st, tenant := newEngineFixture(t)
	seedDetectionScenario(t, st, tenant)
	eng := newTestEngine(st)

	first, err := eng.Run(context.Background(), tenant)
	require.NoError(t, err)
	second, err := eng.Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Same bills, same findings: the upsert keeps one row per (bill, type).
	anomalies, err := st.ListAnomalies(context.Background(), store.AnomalyFilter{TenantID: tenant.ID})
	require.NoError(t, err)
	assert.Len(t, anomalies, 3)
	for _, a := range anomalies {
		assert.Equal(t, second.ID, a.RunID)
	}
}

func TestEngine_Run_EmptyTenant(t *testing.T) {
	st, tenant := newEngineFixture(t)

	run, err := newTestEngine(st).Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Zero(t, run.Stats.BillsChecked)
	assert.Zero(t, run.Stats.AlertQueued)
}

func TestEngine_Run_ScopeDelegateMergesFindings(t *testing.T) {
	st, tenant := newEngineFixture(t)

	plumb := insertVendor(t, st, tenant.ID, "qb-plumb", "APEX PLUMBING")
	history := func(daysAgo int, total float64, extra ...model.LineItem) model.Bill {
		b := model.Bill{
			ID:           uuid.New().String(),
			TenantID:     tenant.ID,
			VendorID:     plumb.ID,
			ExternalID:   fmt.Sprintf("plumb-%d", daysAgo),
			Total:        total,
			Currency:     "USD",
			BillDate:     engineNow.AddDate(0, 0, -daysAgo),
			Paid:         true,
			HasLineItems: true,
			Version:      1,
			IngestedAt:   engineNow,
			LineItems: append([]model.LineItem{
				{ID: uuid.New().String(), Description: "backflow inspection", Quantity: 1, UnitPrice: 150, Amount: 150},
			}, extra...),
		}
		require.NoError(t, st.InsertBill(context.Background(), b))
		return b
	}
	history(60, 150)
	history(30, 150)
	flagged := history(2, 950, model.LineItem{
		ID: uuid.New().String(), Description: "parking lot resurfacing", Quantity: 1, UnitPrice: 800, Amount: 800,
	})

	eng := newTestEngine(st).WithScope(NewScopeDetector(resurfacingClient{}, time.Second))

	run, err := eng.Run(context.Background(), tenant)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, run.Stats.CountByType[model.AnomalyScopeDrift], 1)

	anomalies, err := st.ListAnomalies(context.Background(), store.AnomalyFilter{
		TenantID: tenant.ID,
		Type:     model.AnomalyScopeDrift,
	})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, flagged.ID, anomalies[0].BillID)
	assert.InDelta(t, 800.0, anomalies[0].Impact, 0.001)
	assert.Equal(t, model.StatusAlertQueued, anomalies[0].Status)
}
