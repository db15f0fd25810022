package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/apaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	base_currency TEXT NOT NULL DEFAULT 'USD',
	api_key       TEXT,
	webhook_url   TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key) WHERE api_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS vendors (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	external_id    TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	needs_review   INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, external_id)
);

CREATE TABLE IF NOT EXISTS bills (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL REFERENCES tenants(id),
	vendor_id      TEXT NOT NULL REFERENCES vendors(id),
	external_id    TEXT NOT NULL,
	total          REAL NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'USD',
	bill_date      DATETIME NOT NULL,
	paid           INTEGER NOT NULL DEFAULT 0,
	has_line_items INTEGER NOT NULL DEFAULT 0,
	version        INTEGER NOT NULL DEFAULT 1,
	quality_note   TEXT,
	ingested_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, vendor_id, external_id, version)
);

CREATE TABLE IF NOT EXISTS line_items (
	id          TEXT PRIMARY KEY,
	bill_id     TEXT NOT NULL REFERENCES bills(id),
	description TEXT,
	quantity    REAL NOT NULL DEFAULT 1,
	unit_price  REAL NOT NULL DEFAULT 0,
	amount      REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	bill_id     TEXT NOT NULL REFERENCES bills(id),
	external_id TEXT NOT NULL UNIQUE,
	amount      REAL NOT NULL,
	paid_date   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS detection_runs (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL REFERENCES tenants(id),
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS baselines (
	run_id             TEXT NOT NULL REFERENCES detection_runs(id),
	vendor_id          TEXT NOT NULL REFERENCES vendors(id),
	window_start       DATETIME NOT NULL,
	window_end         DATETIME NOT NULL,
	mean_amount        REAL NOT NULL,
	stddev_amount      REAL NOT NULL,
	sample_count       INTEGER NOT NULL,
	mean_unit_price    REAL NOT NULL DEFAULT 0,
	stddev_unit_price  REAL NOT NULL DEFAULT 0,
	unit_price_count   INTEGER NOT NULL DEFAULT 0,
	mean_interval_days REAL NOT NULL DEFAULT 0,
	last_seen          DATETIME NOT NULL,
	PRIMARY KEY (run_id, vendor_id)
);

CREATE TABLE IF NOT EXISTS anomalies (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL REFERENCES tenants(id),
	bill_id         TEXT NOT NULL REFERENCES bills(id),
	related_bill_id TEXT,
	type            TEXT NOT NULL,
	signal          REAL NOT NULL DEFAULT 0,
	impact          REAL NOT NULL DEFAULT 0,
	tier            TEXT NOT NULL,
	status          TEXT NOT NULL,
	alert_sent      INTEGER NOT NULL DEFAULT 0,
	detail          TEXT,
	run_id          TEXT NOT NULL REFERENCES detection_runs(id),
	detected_at     DATETIME NOT NULL,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, base_currency, api_key, webhook_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.BaseCurrency, nullable(t.APIKey), t.WebhookURL, t.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert tenant %s", t.Name)
}

func (s *SQLiteStore) GetTenantByName(ctx context.Context, name string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants WHERE name = ?`,
		name,
	)
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("tenant not found: %s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get tenant")
	}
	return &t, nil
}

func (s *SQLiteStore) GetTenantByAPIKey(ctx context.Context, key string) (*model.Tenant, error) {
	if key == "" {
		return nil, eris.New("sqlite: empty api key")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants WHERE api_key = ?`,
		key,
	)
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("tenant not found for api key")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get tenant by api key")
	}
	return &t, nil
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, base_currency, COALESCE(api_key, ''), COALESCE(webhook_url, ''), created_at FROM tenants ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenants")
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.BaseCurrency, &t.APIKey, &t.WebhookURL, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tenant")
		}
		tenants = append(tenants, t)
	}
	return tenants, eris.Wrap(rows.Err(), "sqlite: list tenants iterate")
}

func (s *SQLiteStore) InsertVendor(ctx context.Context, v model.Vendor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendors (id, tenant_id, external_id, display_name, canonical_name, needs_review, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TenantID, v.ExternalID, v.DisplayName, v.CanonicalName, v.NeedsReview, v.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert vendor %s", v.ExternalID)
}

func (s *SQLiteStore) ListVendors(ctx context.Context, tenantID string) ([]model.Vendor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, external_id, display_name, canonical_name, needs_review, created_at
		 FROM vendors WHERE tenant_id = ? ORDER BY display_name`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendors")
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.TenantID, &v.ExternalID, &v.DisplayName, &v.CanonicalName, &v.NeedsReview, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: list vendors iterate")
}

func (s *SQLiteStore) InsertBill(ctx context.Context, b model.Bill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert bill")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bills (id, tenant_id, vendor_id, external_id, total, currency, bill_date, paid, has_line_items, version, quality_note, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.VendorID, b.ExternalID, b.Total, b.Currency, b.BillDate.UTC(),
		b.Paid, b.HasLineItems, b.Version, nullable(b.QualityNote), b.IngestedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert bill %s", b.ExternalID)
	}

	for _, li := range b.LineItems {
		if li.ID == "" {
			li.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO line_items (id, bill_id, description, quantity, unit_price, amount) VALUES (?, ?, ?, ?, ?, ?)`,
			li.ID, b.ID, li.Description, li.Quantity, li.UnitPrice, li.Amount,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert line item for bill %s", b.ExternalID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert bill")
}

const billColumns = `id, tenant_id, vendor_id, external_id, total, currency, bill_date, paid, has_line_items, version, COALESCE(quality_note, ''), ingested_at`

func (s *SQLiteStore) GetLatestBill(ctx context.Context, tenantID, vendorID, externalID string) (*model.Bill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills
		 WHERE tenant_id = ? AND vendor_id = ? AND external_id = ?
		 ORDER BY version DESC LIMIT 1`,
		tenantID, vendorID, externalID,
	)
	b, err := scanBill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest bill")
	}
	if err := s.attachLineItems(ctx, []*model.Bill{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteStore) ListBills(ctx context.Context, tenantID string, since time.Time) ([]model.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills b
		 WHERE tenant_id = ? AND bill_date >= ?
		   AND version = (
			SELECT MAX(version) FROM bills b2
			WHERE b2.tenant_id = b.tenant_id AND b2.vendor_id = b.vendor_id AND b2.external_id = b.external_id
		   )
		 ORDER BY bill_date`,
		tenantID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bills")
	}
	defer rows.Close()

	var bills []model.Bill
	var refs []*model.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bill")
		}
		bills = append(bills, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list bills iterate")
	}
	for i := range bills {
		refs = append(refs, &bills[i])
	}
	if err := s.attachLineItems(ctx, refs); err != nil {
		return nil, err
	}
	return bills, nil
}

// attachLineItems loads line items for the given bills in one query.
func (s *SQLiteStore) attachLineItems(ctx context.Context, bills []*model.Bill) error {
	byID := make(map[string]*model.Bill, len(bills))
	ids := make([]any, 0, len(bills))
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
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bill_id, COALESCE(description, ''), quantity, unit_price, amount
		 FROM line_items WHERE bill_id IN (`+placeholders+`)`,
		ids...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: list line items")
	}
	defer rows.Close()

	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.BillID, &li.Description, &li.Quantity, &li.UnitPrice, &li.Amount); err != nil {
			return eris.Wrap(err, "sqlite: scan line item")
		}
		if b, ok := byID[li.BillID]; ok {
			b.LineItems = append(b.LineItems, li)
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: line items iterate")
}

func (s *SQLiteStore) UpsertPayment(ctx context.Context, p model.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, bill_id, external_id, amount, paid_date) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET amount = excluded.amount, paid_date = excluded.paid_date`,
		p.ID, p.BillID, p.ExternalID, p.Amount, p.PaidDate.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert payment %s", p.ExternalID)
}

func (s *SQLiteStore) ListPayments(ctx context.Context, tenantID string) ([]model.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.bill_id, p.external_id, p.amount, p.paid_date
		 FROM payments p JOIN bills b ON b.id = p.bill_id
		 WHERE b.tenant_id = ?`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list payments")
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.ExternalID, &p.Amount, &p.PaidDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan payment")
		}
		payments = append(payments, p)
	}
	return payments, eris.Wrap(rows.Err(), "sqlite: list payments iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, tenantID string) (*model.DetectionRun, error) {
	run := &model.DetectionRun{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detection_runs (id, tenant_id, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.TenantID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE detection_runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(status), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.DetectionRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, status, stats, started_at, finished_at FROM detection_runs WHERE id = ?`,
		runID,
	)
	var r model.DetectionRun
	var statsJSON sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(&r.ID, &r.TenantID, &r.Status, &statsJSON, &r.StartedAt, &finishedAt)
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.Time
	} else {
		r.FinishedAt = r.StartedAt
	}
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	if statsJSON.Valid && statsJSON.String != "" && statsJSON.String != "null" {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal([]byte(statsJSON.String), r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
		}
	}
	return &r, nil
}

func (s *SQLiteStore) SaveBaselines(ctx context.Context, runID string, baselines []model.Baseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save baselines")
	}
	defer tx.Rollback()

	for _, bl := range baselines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO baselines (run_id, vendor_id, window_start, window_end, mean_amount, stddev_amount, sample_count,
			                        mean_unit_price, stddev_unit_price, unit_price_count, mean_interval_days, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, bl.VendorID, bl.WindowStart.UTC(), bl.WindowEnd.UTC(), bl.MeanAmount, bl.StddevAmount, bl.SampleCount,
			bl.MeanUnitPrice, bl.StddevUnitPrice, bl.UnitPriceCount, bl.MeanIntervalDay, bl.LastSeen.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert baseline for vendor %s", bl.VendorID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit baselines")
}

func (s *SQLiteStore) ListBaselines(ctx context.Context, runID string) ([]model.Baseline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, vendor_id, window_start, window_end, mean_amount, stddev_amount, sample_count,
		        mean_unit_price, stddev_unit_price, unit_price_count, mean_interval_days, last_seen
		 FROM baselines WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list baselines")
	}
	defer rows.Close()

	var baselines []model.Baseline
	for rows.Next() {
		var bl model.Baseline
		err := rows.Scan(&bl.RunID, &bl.VendorID, &bl.WindowStart, &bl.WindowEnd, &bl.MeanAmount, &bl.StddevAmount,
			&bl.SampleCount, &bl.MeanUnitPrice, &bl.StddevUnitPrice, &bl.UnitPriceCount, &bl.MeanIntervalDay, &bl.LastSeen)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan baseline")
		}
		baselines = append(baselines, bl)
	}
	return baselines, eris.Wrap(rows.Err(), "sqlite: list baselines iterate")
}

func (s *SQLiteStore) UpsertAnomaly(ctx context.Context, a model.Anomaly) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (id, tenant_id, bill_id, related_bill_id, type, signal, impact, tier, status, alert_sent, detail, run_id, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, bill_id, type) DO UPDATE SET
			related_bill_id = excluded.related_bill_id,
			signal = excluded.signal,
			impact = excluded.impact,
			tier = excluded.tier,
			status = excluded.status,
			detail = excluded.detail,
			run_id = excluded.run_id,
			detected_at = excluded.detected_at`,
		a.ID, a.TenantID, a.BillID, nullable(a.RelatedBillID), string(a.Type), a.Signal, a.Impact,
		string(a.Tier), string(a.Status), a.AlertSent, nullable(a.Detail), a.RunID, a.DetectedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert anomaly for bill %s", a.BillID)
}

const anomalyColumns = `id, tenant_id, bill_id, COALESCE(related_bill_id, ''), type, signal, impact, tier, status, alert_sent, COALESCE(detail, ''), run_id, detected_at`

func (s *SQLiteStore) ListAnomalies(ctx context.Context, f AnomalyFilter) ([]model.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE tenant_id = ?`
	args := []any{f.TenantID}

	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	query += ` ORDER BY detected_at DESC, bill_id`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list anomalies")
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		err := rows.Scan(&a.ID, &a.TenantID, &a.BillID, &a.RelatedBillID, &a.Type, &a.Signal, &a.Impact,
			&a.Tier, &a.Status, &a.AlertSent, &a.Detail, &a.RunID, &a.DetectedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anomaly")
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, eris.Wrap(rows.Err(), "sqlite: list anomalies iterate")
}

func (s *SQLiteStore) MarkAlertSent(ctx context.Context, anomalyID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE anomalies SET alert_sent = 1 WHERE id = ?`,
		anomalyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark alert sent %s", anomalyID)
	}
	return checkRowsAffected(res, "anomaly", anomalyID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBill(row scannable) (*model.Bill, error) {
	var b model.Bill
	err := row.Scan(&b.ID, &b.TenantID, &b.VendorID, &b.ExternalID, &b.Total, &b.Currency,
		&b.BillDate, &b.Paid, &b.HasLineItems, &b.Version, &b.QualityNote, &b.IngestedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
