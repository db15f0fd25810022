package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/pkg/scopereview"
)

// ScopeState is the three-valued outcome of the external scope comparison.
// Absent and failed are valid run outcomes, not errors: the run proceeds
// without a scope verdict for the affected bill.
type ScopeState string

const (
	ScopeVerdict ScopeState = "verdict"
	ScopeAbsent  ScopeState = "absent"
	ScopeFailed  ScopeState = "failed"
)

// ScopeResult carries a scope outcome back to the engine for merging.
type ScopeResult struct {
	BillID  string
	State   ScopeState
	Finding *model.Finding
	Err     error
}

// ScopeDetector delegates semantic line-item comparison to an external
// model. It owns the request/verdict contract and the timeout, nothing more.
type ScopeDetector struct {
	client  scopereview.Client
	timeout time.Duration
}

// NewScopeDetector wraps a scopereview client with a call timeout.
func NewScopeDetector(client scopereview.Client, timeout time.Duration) *ScopeDetector {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ScopeDetector{client: client, timeout: timeout}
}

func (*ScopeDetector) Type() model.AnomalyType { return model.AnomalyScopeDrift }

// Detect satisfies Detector for uniform dispatch, but the engine invokes
// scope through Evaluate so the external call runs out-of-band.
func (d *ScopeDetector) Detect(ctx context.Context, in Input) (*model.Finding, error) {
	res := d.Evaluate(ctx, in, "")
	if res.State == ScopeFailed {
		return nil, res.Err
	}
	return res.Finding, nil
}

// Evaluate runs the external comparison for one bill, bounded by the
// configured timeout and cancellable through ctx.
func (d *ScopeDetector) Evaluate(ctx context.Context, in Input, vendorName string) ScopeResult {
	b := in.Bill
	if d.client == nil || len(b.LineItems) == 0 {
		return ScopeResult{BillID: b.ID, State: ScopeAbsent}
	}

	history := historyPayload(b, in.VendorBills, in.Config.ScopeHistoryBills)
	if len(history) == 0 {
		return ScopeResult{BillID: b.ID, State: ScopeAbsent}
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	payload := scopereview.BuildPayload(vendorName, linesPayload(b.LineItems), history, in.Config.ScopeHistoryBills)
	verdict, err := d.client.Compare(cctx, payload)
	if err != nil {
		if cctx.Err() != nil {
			zap.L().Warn("scope comparison timed out",
				zap.String("bill_id", b.ID),
				zap.Duration("timeout", d.timeout),
			)
			return ScopeResult{BillID: b.ID, State: ScopeAbsent}
		}
		return ScopeResult{BillID: b.ID, State: ScopeFailed, Err: err}
	}

	if !verdict.Flagged {
		return ScopeResult{BillID: b.ID, State: ScopeVerdict}
	}

	var impact float64
	if verdict.SuggestedImpact != nil && *verdict.SuggestedImpact > 0 {
		impact = *verdict.SuggestedImpact
	}
	return ScopeResult{
		BillID: b.ID,
		State:  ScopeVerdict,
		Finding: &model.Finding{
			BillID: b.ID,
			Type:   model.AnomalyScopeDrift,
			Signal: 1,
			Impact: impact,
			Detail: fmt.Sprintf("scope drift: %s", verdict.Rationale),
		},
	}
}

func linesPayload(items []model.LineItem) []scopereview.Line {
	out := make([]scopereview.Line, len(items))
	for i, li := range items {
		out[i] = scopereview.Line{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount,
		}
	}
	return out
}

// historyPayload collects line items from the vendor's most recent prior
// bills, newest first.
func historyPayload(current model.Bill, vendorBills []model.Bill, maxBills int) []scopereview.HistoricalBill {
	var prior []model.Bill
	for _, vb := range vendorBills {
		if vb.ID == current.ID || len(vb.LineItems) == 0 {
			continue
		}
		if vb.BillDate.After(current.BillDate) {
			continue
		}
		prior = append(prior, vb)
	}
	sort.Slice(prior, func(i, j int) bool { return prior[i].BillDate.After(prior[j].BillDate) })
	if maxBills > 0 && len(prior) > maxBills {
		prior = prior[:maxBills]
	}

	out := make([]scopereview.HistoricalBill, len(prior))
	for i, vb := range prior {
		out[i] = scopereview.HistoricalBill{
			BillDate: vb.BillDate.Format("2006-01-02"),
			Total:    vb.Total,
			Lines:    linesPayload(vb.LineItems),
		}
	}
	return out
}
