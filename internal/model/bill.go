package model

import (
	"math"
	"time"
)

// Tenant is a business account whose payables are monitored. Tenants are
// fully independent: no detection state is shared across them.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	APIKey       string    `json:"-"`
	WebhookURL   string    `json:"webhook_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Vendor is the normalized vendor master. One canonical Vendor exists per
// distinct external vendor ID per tenant; display-name variants resolve to
// the same row via CanonicalName.
type Vendor struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ExternalID    string    `json:"external_id"`
	DisplayName   string    `json:"display_name"`
	CanonicalName string    `json:"canonical_name"`
	NeedsReview   bool      `json:"needs_review,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Bill is an ingested vendor bill. Bills are immutable once ingested:
// corrections arrive as a new Version, never as a silent overwrite.
type Bill struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	VendorID     string     `json:"vendor_id"`
	ExternalID   string     `json:"external_id"`
	Total        float64    `json:"total"`
	Currency     string     `json:"currency"`
	BillDate     time.Time  `json:"bill_date"`
	Paid         bool       `json:"paid"`
	HasLineItems bool       `json:"has_line_items"`
	Version      int        `json:"version"`
	QualityNote  string     `json:"quality_note,omitempty"`
	LineItems    []LineItem `json:"line_items,omitempty"`
	IngestedAt   time.Time  `json:"ingested_at"`
}

// LineItem is line-level detail owned by exactly one Bill.
type LineItem struct {
	ID          string  `json:"id"`
	BillID      string  `json:"bill_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// Payment confirms a bill was actually disbursed. Unpaid drafts are excluded
// from duplicate and outlier checks.
type Payment struct {
	ID         string    `json:"id"`
	BillID     string    `json:"bill_id"`
	ExternalID string    `json:"external_id"`
	Amount     float64   `json:"amount"`
	PaidDate   time.Time `json:"paid_date"`
}

// LineItemSum returns the sum of line-item amounts.
func (b Bill) LineItemSum() float64 {
	var sum float64
	for _, li := range b.LineItems {
		sum += li.Amount
	}
	return sum
}

// LineItemsReconcile reports whether the line-item sum agrees with the bill
// total within tolerance. A mismatch is a data-quality signal, not a reason
// to discard the bill.
func (b Bill) LineItemsReconcile(tolerance float64) bool {
	if len(b.LineItems) == 0 {
		return true
	}
	return math.Abs(b.LineItemSum()-b.Total) <= tolerance
}
