package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/pkg/scopereview"
)

type fakeScopeClient struct {
	verdict    *scopereview.Verdict
	err        error
	delay      time.Duration
	gotPayload *scopereview.Payload
}

func (f *fakeScopeClient) Compare(ctx context.Context, p scopereview.Payload) (*scopereview.Verdict, error) {
	f.gotPayload = &p
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.verdict, f.err
}

func itemized(id string, total float64, daysAgo int, desc string) model.Bill {
	b := bill(id, total, testDay.AddDate(0, 0, -daysAgo))
	b.HasLineItems = true
	b.LineItems = []model.LineItem{{Description: desc, Quantity: 1, UnitPrice: total, Amount: total}}
	return b
}

func TestScope_FlaggedVerdictYieldsFinding(t *testing.T) {
	impact := 800.0
	client := &fakeScopeClient{verdict: &scopereview.Verdict{
		Flagged:         true,
		Rationale:       "resurfacing work outside historical plumbing scope",
		SuggestedImpact: &impact,
	}}
	d := NewScopeDetector(client, time.Second)

	current := itemized("b9", 1100, 0, "parking lot resurfacing")
	history := []model.Bill{
		itemized("b1", 300, 30, "backflow inspection"),
		itemized("b2", 300, 60, "backflow inspection"),
		current,
	}

	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: history, Config: Defaults()}, "Apex Plumbing")
	assert.Equal(t, ScopeVerdict, res.State)
	require.NotNil(t, res.Finding)
	assert.Equal(t, model.AnomalyScopeDrift, res.Finding.Type)
	assert.InDelta(t, 800.0, res.Finding.Impact, 0.001)
	assert.Contains(t, res.Finding.Detail, "resurfacing")

	require.NotNil(t, client.gotPayload)
	assert.Equal(t, "Apex Plumbing", client.gotPayload.VendorName)
	assert.Len(t, client.gotPayload.History, 2)
}

func TestScope_CleanVerdictYieldsNoFinding(t *testing.T) {
	client := &fakeScopeClient{verdict: &scopereview.Verdict{Flagged: false}}
	d := NewScopeDetector(client, time.Second)

	current := itemized("b9", 300, 0, "backflow inspection")
	history := []model.Bill{itemized("b1", 300, 30, "backflow inspection"), current}

	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: history, Config: Defaults()}, "Apex")
	assert.Equal(t, ScopeVerdict, res.State)
	assert.Nil(t, res.Finding)
}

func TestScope_NoLineItemsIsAbsent(t *testing.T) {
	client := &fakeScopeClient{verdict: &scopereview.Verdict{Flagged: true}}
	d := NewScopeDetector(client, time.Second)

	current := bill("b9", 300, testDay)
	res := d.Evaluate(context.Background(), Input{Bill: current, Config: Defaults()}, "Apex")
	assert.Equal(t, ScopeAbsent, res.State)
	assert.Nil(t, client.gotPayload) // external call never made
}

func TestScope_NoHistoryIsAbsent(t *testing.T) {
	client := &fakeScopeClient{verdict: &scopereview.Verdict{Flagged: true}}
	d := NewScopeDetector(client, time.Second)

	current := itemized("b9", 300, 0, "inspection")
	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: []model.Bill{current}, Config: Defaults()}, "Apex")
	assert.Equal(t, ScopeAbsent, res.State)
}

func TestScope_TimeoutIsAbsentNotFailed(t *testing.T) {
	client := &fakeScopeClient{delay: 200 * time.Millisecond, verdict: &scopereview.Verdict{}}
	d := NewScopeDetector(client, 10*time.Millisecond)

	current := itemized("b9", 300, 0, "inspection")
	history := []model.Bill{itemized("b1", 300, 30, "inspection"), current}

	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: history, Config: Defaults()}, "Apex")
	assert.Equal(t, ScopeAbsent, res.State)
	assert.Nil(t, res.Finding)
}

func TestScope_ErrorIsFailed(t *testing.T) {
	client := &fakeScopeClient{err: errors.New("upstream 500")}
	d := NewScopeDetector(client, time.Second)

	current := itemized("b9", 300, 0, "inspection")
	history := []model.Bill{itemized("b1", 300, 30, "inspection"), current}

	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: history, Config: Defaults()}, "Apex")
	assert.Equal(t, ScopeFailed, res.State)
	assert.Error(t, res.Err)
}

func TestScope_HistoryCappedAndNewestFirst(t *testing.T) {
	client := &fakeScopeClient{verdict: &scopereview.Verdict{}}
	d := NewScopeDetector(client, time.Second)

	current := itemized("b9", 300, 0, "inspection")
	history := []model.Bill{current}
	for i := 1; i <= 8; i++ {
		history = append(history, itemized("b"+string(rune('0'+i)), 300, i*10, "inspection"))
	}

	cfg := Defaults() // ScopeHistoryBills = 5
	res := d.Evaluate(context.Background(), Input{Bill: current, VendorBills: history, Config: cfg}, "Apex")
	assert.Equal(t, ScopeVerdict, res.State)

	require.NotNil(t, client.gotPayload)
	require.Len(t, client.gotPayload.History, 5)
	// Newest prior bill first.
	assert.Equal(t, testDay.AddDate(0, 0, -10).Format("2006-01-02"), client.gotPayload.History[0].BillDate)
}
