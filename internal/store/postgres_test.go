package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetTenantByName_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, base_currency`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTenantByName(context.Background(), "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTenantByAPIKey(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, name, base_currency, COALESCE\(api_key`).
		WithArgs("key-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "base_currency", "api_key", "webhook_url", "created_at"}).
			AddRow("t1", "acme", "USD", "key-1", "", now))

	tenant, err := s.GetTenantByAPIKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.Name)
	assert.Equal(t, "key-1", tenant.APIKey)

	mock.ExpectQuery(`SELECT id, name, base_currency, COALESCE\(api_key`).
		WithArgs("bogus").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetTenantByAPIKey(context.Background(), "bogus")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatestBill_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM bills`).
		WithArgs("t1", "v1", "bill-x").
		WillReturnError(pgx.ErrNoRows)

	bill, err := s.GetLatestBill(context.Background(), "t1", "v1", "bill-x")
	require.NoError(t, err)
	assert.Nil(t, bill)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAnomaly_ConflictUpdates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO anomalies .+ ON CONFLICT \(tenant_id, bill_id, type\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "t1", "b1", pgxmock.AnyArg(), "price_creep", 3.1, 250.0,
			"high", "alert_queued", false, pgxmock.AnyArg(), "run1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := model.Anomaly{
		ID:         "a1",
		TenantID:   "t1",
		BillID:     "b1",
		Type:       model.AnomalyPriceCreep,
		Signal:     3.1,
		Impact:     250.0,
		Tier:       model.TierHigh,
		Status:     model.StatusAlertQueued,
		RunID:      "run1",
		DetectedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertAnomaly(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkAlertSent_Unknown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE anomalies SET alert_sent = TRUE`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkAlertSent(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anomaly not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_MarshalsStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE detection_runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "run1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	stats := &model.RunStats{BillsChecked: 10, AlertQueued: 1}
	require.NoError(t, s.CompleteRun(context.Background(), "run1", model.RunStatusComplete, stats))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnomalies_AppliesFilters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "bill_id", "related_bill_id", "type", "signal", "impact",
		"tier", "status", "alert_sent", "detail", "run_id", "detected_at",
	}).AddRow("a1", "t1", "b1", "", "duplicate", 0.0, 1200.0, "high", "alert_queued", false, "", "run1", now)

	mock.ExpectQuery(`SELECT .+ FROM anomalies WHERE tenant_id = \$1 AND type = \$2`).
		WithArgs("t1", "duplicate", 100).
		WillReturnRows(rows)

	got, err := s.ListAnomalies(context.Background(), AnomalyFilter{TenantID: "t1", Type: model.AnomalyDuplicate})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.AnomalyDuplicate, got[0].Type)
	assert.InDelta(t, 1200.0, got[0].Impact, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBaselines_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"baselines"}, baselineColumns).WillReturnResult(1)
	mock.ExpectCommit()

	bl := model.Baseline{
		VendorID:     "v1",
		RunID:        "run1",
		WindowStart:  time.Now().UTC().AddDate(0, 0, -90),
		WindowEnd:    time.Now().UTC(),
		MeanAmount:   450.0,
		StddevAmount: 12.5,
		SampleCount:  6,
		LastSeen:     time.Now().UTC(),
	}
	require.NoError(t, s.SaveBaselines(context.Background(), "run1", []model.Baseline{bl}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
