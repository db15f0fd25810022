// Package ingest is the boundary where connector output enters the engine.
// It is deliberately tolerant: records may be re-fed at any time, and only
// genuinely new or changed data produces writes.
package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/normalize"
	"github.com/sells-group/apaudit/internal/store"
)

// DefaultLineItemTolerance is the allowed gap between a bill total and its
// line-item sum before the mismatch is recorded as a data-quality signal.
const DefaultLineItemTolerance = 0.05

// BillRecord is a raw bill from the connector boundary.
type BillRecord struct {
	VendorExternalID string           `json:"vendor_external_id"`
	VendorName       string           `json:"vendor_name"`
	ExternalID       string           `json:"external_id"`
	Total            float64          `json:"total"`
	Currency         string           `json:"currency,omitempty"`
	BillDate         time.Time        `json:"bill_date"`
	Paid             bool             `json:"paid"`
	LineItems        []LineItemRecord `json:"line_items,omitempty"`
}

// LineItemRecord is raw line-level detail.
type LineItemRecord struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// PaymentRecord links a disbursement to a bill.
type PaymentRecord struct {
	VendorExternalID string    `json:"vendor_external_id"`
	BillExternalID   string    `json:"bill_external_id"`
	ExternalID       string    `json:"external_id"`
	Amount           float64   `json:"amount"`
	PaidDate         time.Time `json:"paid_date"`
}

// Batch is one incremental sync payload.
type Batch struct {
	Bills    []BillRecord    `json:"bills"`
	Payments []PaymentRecord `json:"payments,omitempty"`
}

// Counts summarizes what a sync actually wrote.
type Counts struct {
	VendorsCreated int `json:"vendors_created"`
	BillsCreated   int `json:"bills_created"`
	BillVersions   int `json:"bill_versions"`
	Payments       int `json:"payments"`
	Unchanged      int `json:"unchanged"`
	QualityFlags   int `json:"quality_flags"`
}

// Ingestor writes connector batches into the store.
type Ingestor struct {
	store             store.Store
	resolver          *normalize.Resolver
	lineItemTolerance float64
	now               func() time.Time
}

// New creates an Ingestor.
func New(st store.Store, resolver *normalize.Resolver, lineItemTolerance float64) *Ingestor {
	if lineItemTolerance <= 0 {
		lineItemTolerance = DefaultLineItemTolerance
	}
	return &Ingestor{store: st, resolver: resolver, lineItemTolerance: lineItemTolerance, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (ig *Ingestor) WithNow(now func() time.Time) *Ingestor {
	ig.now = now
	return ig
}

// Sync ingests one incremental batch for a tenant. Previously seen,
// unchanged bills are no-ops; changed bills get a new immutable version.
// Per-record failures are logged and skipped — a bad record never aborts
// the batch.
func (ig *Ingestor) Sync(ctx context.Context, tenant model.Tenant, batch Batch) (Counts, error) {
	log := zap.L().With(zap.String("tenant_id", tenant.ID))
	var counts Counts

	vendors, err := ig.store.ListVendors(ctx, tenant.ID)
	if err != nil {
		return counts, eris.Wrap(err, "ingest: list vendors")
	}
	vendorByExt := make(map[string]model.Vendor, len(vendors))
	for _, v := range vendors {
		vendorByExt[v.ExternalID] = v
	}

	for _, rec := range batch.Bills {
		vendor, created, err := ig.resolveVendor(ctx, tenant, rec, vendors)
		if err != nil {
			log.Error("skipping bill: vendor resolution failed",
				zap.String("bill_external_id", rec.ExternalID),
				zap.Error(err),
			)
			continue
		}
		if created {
			vendors = append(vendors, vendor)
			vendorByExt[vendor.ExternalID] = vendor
			counts.VendorsCreated++
		}

		wrote, version, quality, err := ig.upsertBill(ctx, tenant, vendor, rec)
		if err != nil {
			log.Error("skipping bill: write failed",
				zap.String("bill_external_id", rec.ExternalID),
				zap.Error(err),
			)
			continue
		}
		if quality {
			counts.QualityFlags++
		}
		switch {
		case !wrote:
			counts.Unchanged++
		case version == 1:
			counts.BillsCreated++
		default:
			counts.BillVersions++
		}
	}

	for _, rec := range batch.Payments {
		vendor, ok := vendorByExt[rec.VendorExternalID]
		if !ok {
			log.Warn("skipping payment: unknown vendor",
				zap.String("vendor_external_id", rec.VendorExternalID),
				zap.String("payment_external_id", rec.ExternalID),
			)
			continue
		}
		bill, err := ig.store.GetLatestBill(ctx, tenant.ID, vendor.ID, rec.BillExternalID)
		if err != nil || bill == nil {
			log.Warn("skipping payment: bill not found",
				zap.String("bill_external_id", rec.BillExternalID),
				zap.Error(err),
			)
			continue
		}
		p := model.Payment{
			ID:         uuid.New().String(),
			BillID:     bill.ID,
			ExternalID: rec.ExternalID,
			Amount:     rec.Amount,
			PaidDate:   rec.PaidDate,
		}
		if err := ig.store.UpsertPayment(ctx, p); err != nil {
			log.Error("skipping payment: write failed",
				zap.String("payment_external_id", rec.ExternalID),
				zap.Error(err),
			)
			continue
		}
		counts.Payments++
	}

	log.Info("sync complete",
		zap.Int("vendors_created", counts.VendorsCreated),
		zap.Int("bills_created", counts.BillsCreated),
		zap.Int("bill_versions", counts.BillVersions),
		zap.Int("payments", counts.Payments),
		zap.Int("unchanged", counts.Unchanged),
	)
	return counts, nil
}

func (ig *Ingestor) resolveVendor(ctx context.Context, tenant model.Tenant, rec BillRecord, existing []model.Vendor) (model.Vendor, bool, error) {
	res := ig.resolver.Resolve(tenant.ID, rec.VendorExternalID, rec.VendorName, existing)
	if !res.Created {
		return res.Vendor, false, nil
	}
	if err := ig.store.InsertVendor(ctx, res.Vendor); err != nil {
		return model.Vendor{}, false, eris.Wrap(err, "ingest: insert vendor")
	}
	return res.Vendor, true, nil
}

// upsertBill writes a bill record if it is new or changed. Returns whether a
// row was written, the version written, and whether a data-quality flag was
// recorded.
func (ig *Ingestor) upsertBill(ctx context.Context, tenant model.Tenant, vendor model.Vendor, rec BillRecord) (bool, int, bool, error) {
	existing, err := ig.store.GetLatestBill(ctx, tenant.ID, vendor.ID, rec.ExternalID)
	if err != nil {
		return false, 0, false, eris.Wrap(err, "ingest: get latest bill")
	}

	currency := rec.Currency
	if currency == "" {
		currency = tenant.BaseCurrency
	}

	b := model.Bill{
		ID:           uuid.New().String(),
		TenantID:     tenant.ID,
		VendorID:     vendor.ID,
		ExternalID:   rec.ExternalID,
		Total:        rec.Total,
		Currency:     currency,
		BillDate:     rec.BillDate.UTC(),
		Paid:         rec.Paid,
		HasLineItems: len(rec.LineItems) > 0,
		Version:      1,
		IngestedAt:   ig.now().UTC(),
	}
	for _, li := range rec.LineItems {
		b.LineItems = append(b.LineItems, model.LineItem{
			ID:          uuid.New().String(),
			BillID:      b.ID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount,
		})
	}

	quality := false
	if !b.LineItemsReconcile(ig.lineItemTolerance) {
		// A mismatched sum is a signal worth keeping, never a reason to drop
		// the bill.
		quality = true
		b.QualityNote = fmt.Sprintf("line items sum to $%.2f but bill total is $%.2f", b.LineItemSum(), b.Total)
		zap.L().Warn("line items disagree with bill total",
			zap.String("tenant_id", tenant.ID),
			zap.String("bill_external_id", rec.ExternalID),
			zap.Float64("total", b.Total),
			zap.Float64("line_item_sum", b.LineItemSum()),
		)
	}

	if existing != nil {
		if billUnchanged(*existing, b) {
			return false, existing.Version, quality, nil
		}
		b.Version = existing.Version + 1
	}

	if err := ig.store.InsertBill(ctx, b); err != nil {
		return false, 0, quality, eris.Wrap(err, "ingest: insert bill")
	}
	return true, b.Version, quality, nil
}

// billUnchanged compares the fields a connector can legitimately change.
// Matching records are re-feeds, not corrections.
func billUnchanged(old, cur model.Bill) bool {
	return math.Abs(old.Total-cur.Total) < 0.005 &&
		old.BillDate.Equal(cur.BillDate) &&
		old.Paid == cur.Paid &&
		old.Currency == cur.Currency &&
		lineItemsEqual(old.LineItems, cur.LineItems)
}

// lineItemsEqual compares line items by content, not just count: a corrected
// description or unit price at the same total is still a new version.
func lineItemsEqual(old, cur []model.LineItem) bool {
	if len(old) != len(cur) {
		return false
	}
	for i := range old {
		if old[i].Description != cur[i].Description ||
			old[i].Quantity != cur[i].Quantity ||
			old[i].UnitPrice != cur[i].UnitPrice ||
			math.Abs(old[i].Amount-cur[i].Amount) >= 0.005 {
			return false
		}
	}
	return true
}
