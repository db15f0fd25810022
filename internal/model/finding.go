package model

// Finding is the raw output of a single detector for a single bill, before
// confidence scoring. Every detector emits zero or one Finding per bill and
// funnels it through the gate; detectors never notify anything themselves.
type Finding struct {
	BillID        string      `json:"bill_id"`
	RelatedBillID string      `json:"related_bill_id,omitempty"`
	Type          AnomalyType `json:"type"`
	Signal        float64     `json:"signal"` // z-score, day delta or model score, per type
	Impact        float64     `json:"impact"` // estimated dollars at risk, floored at zero
	Detail        string      `json:"detail,omitempty"`
}
