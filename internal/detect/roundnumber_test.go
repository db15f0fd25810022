package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
)

func TestRoundNumber_FlagsUnitemizedRoundTotal(t *testing.T) {
	b := bill("b1", 5000, testDay)

	f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, model.AnomalyRoundNumber, f.Type)
	assert.InDelta(t, 5000.0, f.Impact, 0.001)
}

func TestRoundNumber_LineItemsSuppress(t *testing.T) {
	b := bill("b1", 5000, testDay)
	b.HasLineItems = true
	b.LineItems = []model.LineItem{{Description: "retainer", Quantity: 1, UnitPrice: 5000, Amount: 5000}}

	f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestRoundNumber_NonMultiplesNotFlagged(t *testing.T) {
	for _, total := range []float64{4317.50, 450, 1250.01, 99} {
		b := bill("b1", total, testDay)
		f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
		require.NoError(t, err)
		assert.Nil(t, f, "total %.2f", total)
	}
}

func TestRoundNumber_MultiplesOfConfiguredUnits(t *testing.T) {
	for _, total := range []float64{100, 500, 1000, 2500, 10000} {
		b := bill("b1", total, testDay)
		f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
		require.NoError(t, err)
		assert.NotNil(t, f, "total %.2f", total)
	}
}

func TestRoundNumber_FloatCentsDoNotFalseTrigger(t *testing.T) {
	// 1999.9999999 rounds to 2000.00 in cents and is a multiple; 1999.99 is not.
	b := bill("b1", 1999.99, testDay)
	f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestRoundNumber_ZeroAndNegativeIgnored(t *testing.T) {
	for _, total := range []float64{0, -500} {
		b := bill("b1", total, testDay)
		f, err := RoundNumberDetector{}.Detect(context.Background(), Input{Bill: b, Config: Defaults()})
		require.NoError(t, err)
		assert.Nil(t, f)
	}
}
