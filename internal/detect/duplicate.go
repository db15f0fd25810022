package detect

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
)

// DuplicateDetector flags a paid bill whose vendor, amount (within a cent
// tolerance, to absorb rounding) and date proximity match an earlier bill.
// Legitimate recurring identical charges are a known false-positive source;
// the detector does not attempt to judge intent — that is deferred to gate
// tiering and human review.
type DuplicateDetector struct{}

func (DuplicateDetector) Type() model.AnomalyType { return model.AnomalyDuplicate }

// Detect flags the later bill of a qualifying pair, so a pair yields exactly
// one finding and each additional repeat yields its own.
func (DuplicateDetector) Detect(_ context.Context, in Input) (*model.Finding, error) {
	b := in.Bill
	if !b.Paid {
		return nil, nil
	}
	if in.offCurrency() {
		zap.L().Debug("off-currency bill excluded from duplicate check",
			zap.String("bill_id", b.ID),
			zap.String("currency", b.Currency),
		)
		return nil, nil
	}

	tolerance := in.Config.DuplicateTolerance
	windowDays := in.Config.DuplicateWindowDays

	for _, other := range in.VendorBills {
		if other.ID == b.ID || !other.Paid || other.Currency != b.Currency {
			continue
		}
		if math.Abs(other.Total-b.Total) > tolerance {
			continue
		}
		deltaDays := b.BillDate.Sub(other.BillDate).Hours() / 24
		if deltaDays < 0 || deltaDays > float64(windowDays) {
			continue
		}
		if deltaDays == 0 && other.ID > b.ID {
			// Same-day pair: deterministically flag only one side.
			continue
		}
		return &model.Finding{
			BillID:        b.ID,
			RelatedBillID: other.ID,
			Type:          model.AnomalyDuplicate,
			Signal:        deltaDays,
			Impact:        b.Total,
			Detail: fmt.Sprintf("same vendor and amount $%.2f within %d days of bill %s",
				b.Total, windowDays, other.ExternalID),
		}, nil
	}
	return nil, nil
}
