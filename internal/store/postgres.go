package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/apaudit/internal/db"
	"github.com/sells-group/apaudit/internal/model"
)

// PgxIface abstracts the pgx pool so tests can substitute a mock.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store against PostgreSQL via pgx.
type PostgresStore struct {
	pool  PgxIface
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to the given DSN and pings the server.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool or mock. Used in tests.
func NewPostgresWithPool(pool PgxIface) *PostgresStore {
	return &PostgresStore{pool: pool, close: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	base_currency TEXT NOT NULL DEFAULT 'USD',
	api_key       TEXT,
	webhook_url   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key) WHERE api_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS vendors (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	external_id    TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	needs_review   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, external_id)
);

CREATE TABLE IF NOT EXISTS bills (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	vendor_id      TEXT NOT NULL REFERENCES vendors(id),
	external_id    TEXT NOT NULL,
	total          DOUBLE PRECISION NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'USD',
	bill_date      TIMESTAMPTZ NOT NULL,
	paid           BOOLEAN NOT NULL DEFAULT FALSE,
	has_line_items BOOLEAN NOT NULL DEFAULT FALSE,
	version        INTEGER NOT NULL DEFAULT 1,
	quality_note   TEXT,
	ingested_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, vendor_id, external_id, version)
);

CREATE TABLE IF NOT EXISTS line_items (
	id          TEXT PRIMARY KEY,
	bill_id     TEXT NOT NULL REFERENCES bills(id),
	description TEXT,
	quantity    DOUBLE PRECISION NOT NULL DEFAULT 1,
	unit_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	amount      DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	bill_id     TEXT NOT NULL REFERENCES bills(id),
	external_id TEXT NOT NULL UNIQUE,
	amount      DOUBLE PRECISION NOT NULL,
	paid_date   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS detection_runs (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL REFERENCES tenants(id),
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS baselines (
	run_id             TEXT NOT NULL REFERENCES detection_runs(id),
	vendor_id          TEXT NOT NULL REFERENCES vendors(id),
	window_start       TIMESTAMPTZ NOT NULL,
	window_end         TIMESTAMPTZ NOT NULL,
	mean_amount        DOUBLE PRECISION NOT NULL,
	stddev_amount      DOUBLE PRECISION NOT NULL,
	sample_count       INTEGER NOT NULL,
	mean_unit_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
	stddev_unit_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit_price_count   INTEGER NOT NULL DEFAULT 0,
	mean_interval_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_seen          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, vendor_id)
);

CREATE TABLE IF NOT EXISTS anomalies (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL REFERENCES tenants(id),
	bill_id         TEXT NOT NULL REFERENCES bills(id),
	related_bill_id TEXT,
	type            TEXT NOT NULL,
	signal          DOUBLE PRECISION NOT NULL DEFAULT 0,
	impact          DOUBLE PRECISION NOT NULL DEFAULT 0,
	tier            TEXT NOT NULL,
	status          TEXT NOT NULL,
	alert_sent      BOOLEAN NOT NULL DEFAULT FALSE,
	detail          TEXT,
	run_id          TEXT NOT NULL REFERENCES detection_runs(id),
	detected_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, bill_id, type)
);

CREATE INDEX IF NOT EXISTS idx_vendors_tenant ON vendors(tenant_id);
CREATE INDEX IF NOT EXISTS idx_bills_tenant_date ON bills(tenant_id, bill_date);
CREATE INDEX IF NOT EXISTS idx_bills_vendor ON bills(vendor_id);
CREATE INDEX IF NOT EXISTS idx_line_items_bill ON line_items(bill_id);
CREATE INDEX IF NOT EXISTS idx_payments_bill ON payments(bill_id);
CREATE INDEX IF NOT EXISTS idx_anomalies_tenant ON anomalies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.close()
	return nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, base_currency, api_key, webhook_url, created_at) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		t.ID, t.Name, t.BaseCurrency, t.APIKey, t.WebhookURL, t.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert tenant %s", t.Name)
}

func (s *PostgresStore) GetTenantByName(ctx context.Context, name string) (*model.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants WHERE name = $1`,
		name,
	)
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("tenant not found: %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get tenant")
	}
	return &t, nil
}

func (s *PostgresStore) GetTenantByAPIKey(ctx context.Context, key string) (*model.Tenant, error) {
	if key == "" {
		return nil, eris.New("postgres: empty api key")
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants WHERE api_key = $1`,
		key,
	)
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.New("tenant not found for api key")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get tenant by api key")
	}
	return &t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenants")
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tenant")
		}
		tenants = append(tenants, t)
	}
	return tenants, eris.Wrap(rows.Err(), "postgres: list tenants iterate")
}

func (s *PostgresStore) InsertVendor(ctx context.Context, v model.Vendor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vendors (id, tenant_id, external_id, display_name, canonical_name, needs_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.TenantID, v.ExternalID, v.DisplayName, v.CanonicalName, v.NeedsReview, v.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert vendor %s", v.ExternalID)
}

func (s *PostgresStore) ListVendors(ctx context.Context, tenantID string) ([]model.Vendor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, external_id, display_name, canonical_name, needs_review, created_at
		 FROM vendors WHERE tenant_id = $1 ORDER BY display_name`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.TenantID, &v.ExternalID, &v.DisplayName, &v.CanonicalName, &v.NeedsReview, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: list vendors iterate")
}

func (s *PostgresStore) InsertBill(ctx context.Context, b model.Bill) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert bill")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO bills (id, tenant_id, vendor_id, external_id, total, currency, bill_date, paid, has_line_items, version, quality_note, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		b.ID, b.TenantID, b.VendorID, b.ExternalID, b.Total, b.Currency, b.BillDate.UTC(),
		b.Paid, b.HasLineItems, b.Version, b.QualityNote, b.IngestedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert bill %s", b.ExternalID)
	}

	for _, li := range b.LineItems {
		if li.ID == "" {
			li.ID = uuid.New().String()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO line_items (id, bill_id, description, quantity, unit_price, amount) VALUES ($1, $2, $3, $4, $5, $6)`,
			li.ID, b.ID, li.Description, li.Quantity, li.UnitPrice, li.Amount,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert line item for bill %s", b.ExternalID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert bill")
}

const pgBillColumns = `id, tenant_id, vendor_id, external_id, total, currency, bill_date, paid, has_line_items, version, COALESCE(quality_note, ''), ingested_at`

func (s *PostgresStore) GetLatestBill(ctx context.Context, tenantID, vendorID, externalID string) (*model.Bill, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBillColumns+` FROM bills
		 WHERE tenant_id = $1 AND vendor_id = $2 AND external_id = $3
		 ORDER BY version DESC LIMIT 1`,
		tenantID, vendorID, externalID,
	)
	b, err := scanBill(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest bill")
	}
	if err := s.attachLineItems(ctx, []*model.Bill{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) ListBills(ctx context.Context, tenantID string, since time.Time) ([]model.Bill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (vendor_id, external_id) `+pgBillColumns+` FROM bills
		 WHERE tenant_id = $1 AND bill_date >= $2
		 ORDER BY vendor_id, external_id, version DESC`,
		tenantID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bills")
	}
	defer rows.Close()

	var bills []model.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan bill")
		}
		bills = append(bills, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list bills iterate")
	}

	refs := make([]*model.Bill, 0, len(bills))
	for i := range bills {
		refs = append(refs, &bills[i])
	}
	if err := s.attachLineItems(ctx, refs); err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *PostgresStore) attachLineItems(ctx context.Context, bills []*model.Bill) error {
	byID := make(map[string]*model.Bill, len(bills))
	var ids []string
	for _, b := range bills {
		if !b.HasLineItems {
			continue
		}
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, bill_id, COALESCE(description, ''), quantity, unit_price, amount
		 FROM line_items WHERE bill_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: list line items")
	}
	defer rows.Close()

	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.BillID, &li.Description, &li.Quantity, &li.UnitPrice, &li.Amount); err != nil {
			return eris.Wrap(err, "postgres: scan line item")
		}
		if b, ok := byID[li.BillID]; ok {
			b.LineItems = append(b.LineItems, li)
		}
	}
	return eris.Wrap(rows.Err(), "postgres: line items iterate")
}

func (s *PostgresStore) UpsertPayment(ctx context.Context, p model.Payment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payments (id, bill_id, external_id, amount, paid_date) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id) DO UPDATE SET amount = EXCLUDED.amount, paid_date = EXCLUDED.paid_date`,
		p.ID, p.BillID, p.ExternalID, p.Amount, p.PaidDate.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert payment %s", p.ExternalID)
}

func (s *PostgresStore) ListPayments(ctx context.Context, tenantID string) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.bill_id, p.external_id, p.amount, p.paid_date
		 FROM payments p JOIN bills b ON b.id = p.bill_id
		 WHERE b.tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list payments")
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.ExternalID, &p.Amount, &p.PaidDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan payment")
		}
		payments = append(payments, p)
	}
	return payments, eris.Wrap(rows.Err(), "postgres: list payments iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, tenantID string) (*model.DetectionRun, error) {
	run := &model.DetectionRun{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO detection_runs (id, tenant_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.TenantID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE detection_runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(status), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.DetectionRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, status, COALESCE(stats, 'null'::jsonb), started_at, COALESCE(finished_at, started_at)
		 FROM detection_runs WHERE id = $1`,
		runID,
	)
	var r model.DetectionRun
	var statsJSON []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.Status, &statsJSON, &r.StartedAt, &r.FinishedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	if len(statsJSON) > 0 && string(statsJSON) != "null" {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run stats")
		}
	}
	return &r, nil
}

var baselineColumns = []string{
	"run_id", "vendor_id", "window_start", "window_end", "mean_amount", "stddev_amount", "sample_count",
	"mean_unit_price", "stddev_unit_price", "unit_price_count", "mean_interval_days", "last_seen",
}

func (s *PostgresStore) SaveBaselines(ctx context.Context, runID string, baselines []model.Baseline) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save baselines")
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(baselines))
	for _, bl := range baselines {
		rows = append(rows, []any{
			runID, bl.VendorID, bl.WindowStart.UTC(), bl.WindowEnd.UTC(), bl.MeanAmount, bl.StddevAmount, bl.SampleCount,
			bl.MeanUnitPrice, bl.StddevUnitPrice, bl.UnitPriceCount, bl.MeanIntervalDay, bl.LastSeen.UTC(),
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "baselines", baselineColumns, rows); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit baselines")
}

func (s *PostgresStore) ListBaselines(ctx context.Context, runID string) ([]model.Baseline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, vendor_id, window_start, window_end, mean_amount, stddev_amount, sample_count,
		        mean_unit_price, stddev_unit_price, unit_price_count, mean_interval_days, last_seen
		 FROM baselines WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list baselines")
	}
	defer rows.Close()

	var baselines []model.Baseline
	for rows.Next() {
		var bl model.Baseline
		err := rows.Scan(&bl.RunID, &bl.VendorID, &bl.WindowStart, &bl.WindowEnd, &bl.MeanAmount, &bl.StddevAmount,
			&bl.SampleCount, &bl.MeanUnitPrice, &bl.StddevUnitPrice, &bl.UnitPriceCount, &bl.MeanIntervalDay, &bl.LastSeen)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan baseline")
		}
		baselines = append(baselines, bl)
	}
	return baselines, eris.Wrap(rows.Err(), "postgres: list baselines iterate")
}

func (s *PostgresStore) UpsertAnomaly(ctx context.Context, a model.Anomaly) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO anomalies (id, tenant_id, bill_id, related_bill_id, type, signal, impact, tier, status, alert_sent, detail, run_id, detected_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
		 ON CONFLICT (tenant_id, bill_id, type) DO UPDATE SET
			related_bill_id = EXCLUDED.related_bill_id,
			signal = EXCLUDED.signal,
			impact = EXCLUDED.impact,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			run_id = EXCLUDED.run_id,
			detected_at = EXCLUDED.detected_at`,
		a.ID, a.TenantID, a.BillID, a.RelatedBillID, string(a.Type), a.Signal, a.Impact,
		string(a.Tier), string(a.Status), a.AlertSent, a.Detail, a.RunID, a.DetectedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert anomaly for bill %s", a.BillID)
}

const pgAnomalyColumns = `id, tenant_id, bill_id, COALESCE(related_bill_id, ''), type, signal, impact, tier, status, alert_sent, COALESCE(detail, ''), run_id, detected_at`

func (s *PostgresStore) ListAnomalies(ctx context.Context, f AnomalyFilter) ([]model.Anomaly, error) {
	query := `SELECT ` + pgAnomalyColumns + ` FROM anomalies WHERE tenant_id = $1`
	args := []any{f.TenantID}

	add := func(column string, v any) {
		args = append(args, v)
		query += " AND " + column + " = $" + strconv.Itoa(len(args))
	}
	if f.Type != "" {
		add("type", string(f.Type))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.RunID != "" {
		add("run_id", f.RunID)
	}
	query += ` ORDER BY detected_at DESC, bill_id`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list anomalies")
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		err := rows.Scan(&a.ID, &a.TenantID, &a.BillID, &a.RelatedBillID, &a.Type, &a.Signal, &a.Impact,
			&a.Tier, &a.Status, &a.AlertSent, &a.Detail, &a.RunID, &a.DetectedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan anomaly")
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, eris.Wrap(rows.Err(), "postgres: list anomalies iterate")
}

func (s *PostgresStore) MarkAlertSent(ctx context.Context, anomalyID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE anomalies SET alert_sent = TRUE WHERE id = $1`,
		anomalyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark alert sent %s", anomalyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("anomaly not found: %s", anomalyID)
	}
	return nil
}
