package model

import "time"

// Baseline is a per-vendor rolling statistical summary, recomputed as a
// versioned snapshot on every detection run. It is derived state, never a
// source of truth and never hand-edited. SampleCount is >= 1 whenever a
// Baseline exists; standard deviation is the Bessel-corrected sample stddev
// (see internal/baseline for the single place that semantic is documented).
type Baseline struct {
	VendorID        string    `json:"vendor_id"`
	RunID           string    `json:"run_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	MeanAmount      float64   `json:"mean_amount"`
	StddevAmount    float64   `json:"stddev_amount"`
	SampleCount     int       `json:"sample_count"`
	MeanUnitPrice   float64   `json:"mean_unit_price,omitempty"`
	StddevUnitPrice float64   `json:"stddev_unit_price,omitempty"`
	UnitPriceCount  int       `json:"unit_price_count,omitempty"`
	MeanIntervalDay float64   `json:"mean_interval_days"`
	LastSeen        time.Time `json:"last_seen"`
}

// RunStatus tracks the lifecycle of a detection run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// DetectionRun is the audit record for one tenant detection pass.
type DetectionRun struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Status     RunStatus `json:"status"`
	Stats      *RunStats `json:"stats,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// RunStats aggregates a run's output for dashboard and export consumption.
type RunStats struct {
	BillsChecked     int                 `json:"bills_checked"`
	VendorsTotal     int                 `json:"vendors_total"`
	VendorsBaselined int                 `json:"vendors_baselined"`
	CountByType      map[AnomalyType]int `json:"count_by_type"`
	AlertQueued      int                 `json:"alert_queued"`
	TotalImpact      float64             `json:"total_impact"`
	DurationMS       int64               `json:"duration_ms"`
}
