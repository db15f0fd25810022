package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
)

var testDay = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func bill(id string, total float64, date time.Time) model.Bill {
	return model.Bill{
		ID:         id,
		TenantID:   "t1",
		VendorID:   "v1",
		ExternalID: "ext-" + id,
		Total:      total,
		Currency:   "USD",
		BillDate:   date,
		Paid:       true,
	}
}

func TestDuplicate_CurrencyMismatchNeverPairs(t *testing.T) {
	eur := bill("b1", 1200, testDay)
	eur.Currency = "EUR"
	usd := bill("b2", 1200, testDay.AddDate(0, 0, 3))
	vendorBills := []model.Bill{eur, usd}

	// An off-currency bill is excluded outright.
	f, err := DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: eur, VendorBills: vendorBills, BaseCurrency: "USD", Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)

	// The base-currency bill never pairs with its foreign-currency twin either.
	f, err = DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: usd, VendorBills: vendorBills, BaseCurrency: "USD", Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDuplicate_FlagsLaterOfPair(t *testing.T) {
	earlier := bill("b1", 1200, testDay)
	later := bill("b2", 1200, testDay.AddDate(0, 0, 3))
	vendorBills := []model.Bill{earlier, later}

	// The later bill carries the finding.
	f, err := DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: later, VendorBills: vendorBills, Config: Defaults(),
	})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, model.AnomalyDuplicate, f.Type)
	assert.Equal(t, "b1", f.RelatedBillID)
	assert.InDelta(t, 1200.0, f.Impact, 0.001)
	assert.InDelta(t, 3.0, f.Signal, 0.001)

	// The earlier bill does not.
	f, err = DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: earlier, VendorBills: vendorBills, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDuplicate_OutsideWindowNotFlagged(t *testing.T) {
	earlier := bill("b1", 1200, testDay)
	later := bill("b2", 1200, testDay.AddDate(0, 0, 8))

	f, err := DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: later, VendorBills: []model.Bill{earlier, later}, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDuplicate_AmountMustMatchWithinTolerance(t *testing.T) {
	earlier := bill("b1", 1200.00, testDay)
	near := bill("b2", 1200.005, testDay.AddDate(0, 0, 2))
	far := bill("b3", 1201.00, testDay.AddDate(0, 0, 2))

	f, err := DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: near, VendorBills: []model.Bill{earlier, near}, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.NotNil(t, f)

	f, err = DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: far, VendorBills: []model.Bill{earlier, far}, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDuplicate_UnpaidBillsIgnored(t *testing.T) {
	earlier := bill("b1", 1200, testDay)
	earlier.Paid = false
	later := bill("b2", 1200, testDay.AddDate(0, 0, 3))

	f, err := DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: later, VendorBills: []model.Bill{earlier, later}, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)

	later.Paid = false
	f, err = DuplicateDetector{}.Detect(context.Background(), Input{
		Bill: later, VendorBills: []model.Bill{bill("b1", 1200, testDay), later}, Config: Defaults(),
	})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDuplicate_SameDayPairFlagsExactlyOneSide(t *testing.T) {
	a := bill("b1", 500, testDay)
	b := bill("b2", 500, testDay)
	vendorBills := []model.Bill{a, b}

	fa, err := DuplicateDetector{}.Detect(context.Background(), Input{Bill: a, VendorBills: vendorBills, Config: Defaults()})
	require.NoError(t, err)
	fb, err := DuplicateDetector{}.Detect(context.Background(), Input{Bill: b, VendorBills: vendorBills, Config: Defaults()})
	require.NoError(t, err)

	flagged := 0
	if fa != nil {
		flagged++
	}
	if fb != nil {
		flagged++
	}
	assert.Equal(t, 1, flagged)
}

func TestDuplicate_TripleYieldsTwoFindings(t *testing.T) {
	b1 := bill("b1", 800, testDay)
	b2 := bill("b2", 800, testDay.AddDate(0, 0, 2))
	b3 := bill("b3", 800, testDay.AddDate(0, 0, 4))
	vendorBills := []model.Bill{b1, b2, b3}

	var findings int
	for _, b := range vendorBills {
		f, err := DuplicateDetector{}.Detect(context.Background(), Input{Bill: b, VendorBills: vendorBills, Config: Defaults()})
		require.NoError(t, err)
		if f != nil {
			findings++
		}
	}
	assert.Equal(t, 2, findings)
}
