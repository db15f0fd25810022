package baseline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
)

var asOf = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func paidBill(vendorID string, total float64, daysAgo int) model.Bill {
	return model.Bill{
		ID:       fmt.Sprintf("%s-%d", vendorID, daysAgo),
		VendorID: vendorID,
		Total:    total,
		Currency: "USD",
		BillDate: asOf.AddDate(0, 0, -daysAgo),
		Paid:     true,
	}
}

func TestCompute_MeanAndSampleStddev(t *testing.T) {
	bills := []model.Bill{
		paidBill("v1", 100, 10),
		paidBill("v1", 110, 20),
		paidBill("v1", 120, 30),
	}

	bl, ok := Compute("v1", bills, Options{}, asOf)
	require.True(t, ok)
	assert.InDelta(t, 110.0, bl.MeanAmount, 0.001)
	assert.InDelta(t, 10.0, bl.StddevAmount, 0.001) // sample stddev, n-1
	assert.Equal(t, 3, bl.SampleCount)
	assert.Equal(t, asOf.AddDate(0, 0, -10), bl.LastSeen)
	assert.InDelta(t, 10.0, bl.MeanIntervalDay, 0.001)
}

func TestCompute_BelowMinSamples(t *testing.T) {
	bills := []model.Bill{
		paidBill("v1", 100, 10),
		paidBill("v1", 110, 20),
	}

	_, ok := Compute("v1", bills, Options{MinSamples: 3}, asOf)
	assert.False(t, ok)
}

func TestCompute_IgnoresUnpaidOtherVendorsAndOutOfWindow(t *testing.T) {
	unpaid := paidBill("v1", 999, 15)
	unpaid.Paid = false
	bills := []model.Bill{
		paidBill("v1", 100, 10),
		paidBill("v1", 110, 20),
		paidBill("v1", 120, 30),
		unpaid,
		paidBill("v2", 5000, 10),  // different vendor
		paidBill("v1", 5000, 120), // outside the 90-day window
	}

	bl, ok := Compute("v1", bills, Options{}, asOf)
	require.True(t, ok)
	assert.Equal(t, 3, bl.SampleCount)
	assert.InDelta(t, 110.0, bl.MeanAmount, 0.001)
}

func TestCompute_ExcludesOffCurrencyBills(t *testing.T) {
	eur := paidBill("v1", 400, 5)
	eur.Currency = "EUR"
	bills := []model.Bill{
		paidBill("v1", 100, 10),
		paidBill("v1", 110, 20),
		paidBill("v1", 120, 30),
		eur,
	}

	bl, ok := Compute("v1", bills, Options{Currency: "USD"}, asOf)
	require.True(t, ok)
	assert.Equal(t, 3, bl.SampleCount)
}

func TestCompute_ZeroVariancePreserved(t *testing.T) {
	bills := []model.Bill{
		paidBill("v1", 250, 10),
		paidBill("v1", 250, 20),
		paidBill("v1", 250, 30),
	}

	bl, ok := Compute("v1", bills, Options{}, asOf)
	require.True(t, ok)
	assert.InDelta(t, 250.0, bl.MeanAmount, 0.001)
	assert.Zero(t, bl.StddevAmount) // preserved, not fudged
}

func TestCompute_UnitPriceStats(t *testing.T) {
	b1 := paidBill("v1", 300, 10)
	b1.LineItems = []model.LineItem{
		{UnitPrice: 100, Quantity: 1, Amount: 100},
		{UnitPrice: 200, Quantity: 1, Amount: 200},
	}
	b2 := paidBill("v1", 150, 20)
	b2.LineItems = []model.LineItem{{UnitPrice: 150, Quantity: 1, Amount: 150}}
	bills := []model.Bill{b1, b2, paidBill("v1", 300, 30)}

	bl, ok := Compute("v1", bills, Options{}, asOf)
	require.True(t, ok)
	assert.Equal(t, 3, bl.UnitPriceCount)
	assert.InDelta(t, 150.0, bl.MeanUnitPrice, 0.001)
}

func TestCompute_Deterministic(t *testing.T) {
	bills := []model.Bill{
		paidBill("v1", 410, 5),
		paidBill("v1", 435, 15),
		paidBill("v1", 428, 40),
		paidBill("v1", 452, 70),
	}

	first, ok1 := Compute("v1", bills, Options{}, asOf)
	second, ok2 := Compute("v1", bills, Options{}, asOf)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}
