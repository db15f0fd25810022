package model

import "time"

// AnomalyType identifies which detector produced a finding.
type AnomalyType string

const (
	AnomalyDuplicate   AnomalyType = "duplicate"
	AnomalyPriceCreep  AnomalyType = "price_creep"
	AnomalyRoundNumber AnomalyType = "round_number"
	AnomalyScopeDrift  AnomalyType = "scope_drift"
)

// AnomalyTypes lists all detector types in dispatch order.
var AnomalyTypes = []AnomalyType{
	AnomalyDuplicate,
	AnomalyPriceCreep,
	AnomalyRoundNumber,
	AnomalyScopeDrift,
}

// ConfidenceTier buckets a finding's combined statistical and dollar strength.
type ConfidenceTier string

const (
	TierLow    ConfidenceTier = "low"
	TierMedium ConfidenceTier = "medium"
	TierHigh   ConfidenceTier = "high"
)

// AnomalyStatus is the gate outcome for a scored finding.
type AnomalyStatus string

const (
	StatusDashboardOnly AnomalyStatus = "dashboard_only"
	StatusAlertQueued   AnomalyStatus = "alert_queued"
)

// Anomaly is the durable record of a single finding. Rows are append-only:
// re-running detection upserts by (tenant, bill, type), never inserts a
// second open finding for the same pair and never deletes.
type Anomaly struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	BillID        string         `json:"bill_id"`
	RelatedBillID string         `json:"related_bill_id,omitempty"`
	Type          AnomalyType    `json:"type"`
	Signal        float64        `json:"signal"`
	Impact        float64        `json:"impact"`
	Tier          ConfidenceTier `json:"tier"`
	Status        AnomalyStatus  `json:"status"`
	AlertSent     bool           `json:"alert_sent"`
	Detail        string         `json:"detail,omitempty"`
	RunID         string         `json:"run_id"`
	DetectedAt    time.Time      `json:"detected_at"`
}

// AlertWorthy reports whether the gate queued this finding for notification.
func (a Anomaly) AlertWorthy() bool {
	return a.Status == StatusAlertQueued
}
