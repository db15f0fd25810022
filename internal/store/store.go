package store

import (
	"context"
	"time"

	"github.com/sells-group/apaudit/internal/model"
)

// AnomalyFilter specifies criteria for listing anomalies.
type AnomalyFilter struct {
	TenantID string              `json:"tenant_id"`
	Type     model.AnomalyType   `json:"type,omitempty"`
	Status   model.AnomalyStatus `json:"status,omitempty"`
	RunID    string              `json:"run_id,omitempty"`
	Limit    int                 `json:"limit,omitempty"`
	Offset   int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the detection engine.
//
// Anomaly rows are append-only per (tenant, bill, type): UpsertAnomaly
// updates the open finding in place on re-runs and never inserts a second
// one, which is what keeps detection runs idempotent under concurrent
// detector writes.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t model.Tenant) error
	GetTenantByName(ctx context.Context, name string) (*model.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, key string) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]model.Tenant, error)

	// Vendors
	InsertVendor(ctx context.Context, v model.Vendor) error
	ListVendors(ctx context.Context, tenantID string) ([]model.Vendor, error)

	// Bills. GetLatestBill returns nil (no error) when absent; InsertBill
	// writes a new immutable version. ListBills returns only the latest
	// version of each bill, line items attached, dated on or after since.
	InsertBill(ctx context.Context, b model.Bill) error
	GetLatestBill(ctx context.Context, tenantID, vendorID, externalID string) (*model.Bill, error)
	ListBills(ctx context.Context, tenantID string, since time.Time) ([]model.Bill, error)

	// Payments
	UpsertPayment(ctx context.Context, p model.Payment) error
	ListPayments(ctx context.Context, tenantID string) ([]model.Payment, error)

	// Detection runs and baseline snapshots
	CreateRun(ctx context.Context, tenantID string) (*model.DetectionRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.DetectionRun, error)
	SaveBaselines(ctx context.Context, runID string, baselines []model.Baseline) error
	ListBaselines(ctx context.Context, runID string) ([]model.Baseline, error)

	// Anomalies
	UpsertAnomaly(ctx context.Context, a model.Anomaly) error
	ListAnomalies(ctx context.Context, f AnomalyFilter) ([]model.Anomaly, error)
	MarkAlertSent(ctx context.Context, anomalyID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
