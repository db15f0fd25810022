package detect

import (
	"context"
	"fmt"
	"math"

	"github.com/sells-group/apaudit/internal/model"
)

// RoundNumberDetector flags bills whose total is an exact multiple of a
// round unit with no fractional cents and no line-item detail. Round totals
// without itemization correlate with manually entered, unverified charges.
type RoundNumberDetector struct{}

func (RoundNumberDetector) Type() model.AnomalyType { return model.AnomalyRoundNumber }

func (RoundNumberDetector) Detect(_ context.Context, in Input) (*model.Finding, error) {
	b := in.Bill
	if b.HasLineItems || len(b.LineItems) > 0 {
		return nil, nil
	}

	cents := int64(math.Round(b.Total * 100))
	if cents <= 0 || cents%100 != 0 {
		return nil, nil
	}

	for _, unit := range in.Config.RoundUnits {
		unitCents := int64(math.Round(unit * 100))
		if unitCents <= 0 || cents%unitCents != 0 {
			continue
		}
		return &model.Finding{
			BillID: b.ID,
			Type:   model.AnomalyRoundNumber,
			Signal: unit,
			Impact: b.Total,
			Detail: fmt.Sprintf("round total $%.0f (multiple of $%.0f) with no line-item detail", b.Total, unit),
		}, nil
	}
	return nil, nil
}
