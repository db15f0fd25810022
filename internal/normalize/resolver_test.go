package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apaudit/internal/model"
)

func vendor(id, externalID, display string) model.Vendor {
	return model.Vendor{
		ID:            id,
		TenantID:      "t1",
		ExternalID:    externalID,
		DisplayName:   display,
		CanonicalName: CanonicalKey(display),
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResolve_ExternalIDWins(t *testing.T) {
	r := NewResolver(0)
	existing := []model.Vendor{vendor("v1", "qb-100", "Apex Plumbing Inc")}

	// Same external ID resolves even when the display name is unrecognizable.
	res := r.Resolve("t1", "qb-100", "Totally Different Name", existing)
	assert.False(t, res.Created)
	assert.Equal(t, "v1", res.Vendor.ID)
	assert.InDelta(t, 1.0, res.Similarity, 0.001)
}

func TestResolve_CanonicalKeyMatch(t *testing.T) {
	r := NewResolver(0)
	existing := []model.Vendor{vendor("v1", "qb-100", "Apex Plumbing Inc")}

	res := r.Resolve("t1", "qb-200", "APEX PLUMBING, LLC", existing)
	assert.False(t, res.Created)
	assert.Equal(t, "v1", res.Vendor.ID)
}

func TestResolve_FuzzyMatch(t *testing.T) {
	r := NewResolver(0)
	existing := []model.Vendor{vendor("v1", "qb-100", "GreenScape Lawn Care")}

	res := r.Resolve("t1", "", "Greenscape Lawncare", existing)
	assert.False(t, res.Created)
	assert.Equal(t, "v1", res.Vendor.ID)
	assert.GreaterOrEqual(t, res.Similarity, DefaultSimilarityThreshold)
	assert.Less(t, res.Similarity, 1.0)
}

func TestResolve_BelowThresholdCreates(t *testing.T) {
	r := NewResolver(0)
	existing := []model.Vendor{vendor("v1", "qb-100", "Apex Plumbing Inc")}

	res := r.Resolve("t1", "qb-300", "Meridian Consulting Group", existing)
	require.True(t, res.Created)
	assert.Equal(t, "t1", res.Vendor.TenantID)
	assert.Equal(t, "qb-300", res.Vendor.ExternalID)
	assert.Equal(t, "MERIDIAN CONSULTING GROUP", res.Vendor.CanonicalName)
	assert.False(t, res.Vendor.NeedsReview)
}

func TestResolve_AmbiguousTieFlagsForReview(t *testing.T) {
	r := NewResolver(0)
	existing := []model.Vendor{
		vendor("v1", "qb-1", "Acme Services GroupX"),
		vendor("v2", "qb-2", "Acme Services GroupY"),
	}

	// Equidistant from both candidates: auto-merging would guess.
	res := r.Resolve("t1", "", "Acme Services GroupZ", existing)
	require.True(t, res.Created)
	assert.True(t, res.Vendor.NeedsReview)
}

func TestResolve_EmptyNameCreates(t *testing.T) {
	r := NewResolver(0)
	res := r.Resolve("t1", "qb-9", "", nil)
	require.True(t, res.Created)
	assert.Equal(t, "", res.Vendor.CanonicalName)
}
