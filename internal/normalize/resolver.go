package normalize

import (
	"time"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
)

// DefaultSimilarityThreshold is the minimum fuzzy similarity for treating a
// new display name as a variant of an existing vendor.
const DefaultSimilarityThreshold = 0.90

// Resolution is the outcome of resolving a raw vendor reference.
type Resolution struct {
	Vendor     model.Vendor
	Created    bool    // a new Vendor row must be inserted
	Similarity float64 // 1.0 for exact matches, fuzzy score otherwise
}

// Resolver maps raw vendor references onto canonical tenant vendors.
// Resolution is a pure computation over the tenant's existing vendor set;
// persisting a Created vendor is the caller's job.
type Resolver struct {
	threshold float64
	now       func() time.Time
}

// NewResolver creates a Resolver with the given fuzzy-match threshold.
// A zero threshold falls back to DefaultSimilarityThreshold.
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Resolver{threshold: threshold, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve finds the canonical Vendor for (externalID, displayName) among the
// tenant's existing vendors, in three tiers:
//
//  1. exact external ID match — same real-world vendor, authoritative;
//  2. exact canonical-key match — spelling/punctuation variant;
//  3. fuzzy canonical-key similarity at or above the threshold — the highest
//     scoring candidate wins; an exact score tie between distinct candidates
//     is a data-quality risk, so the vendor is created fresh and flagged for
//     manual review instead of auto-merged.
//
// Anything else creates a new Vendor.
func (r *Resolver) Resolve(tenantID, externalID, displayName string, existing []model.Vendor) Resolution {
	if externalID != "" {
		for _, v := range existing {
			if v.ExternalID == externalID {
				return Resolution{Vendor: v, Similarity: 1.0}
			}
		}
	}

	key := CanonicalKey(displayName)
	for _, v := range existing {
		if v.CanonicalName == key && key != "" {
			return Resolution{Vendor: v, Similarity: 1.0}
		}
	}

	best, tied, bestScore := r.fuzzyMatch(key, existing)
	if best != nil && !tied {
		zap.L().Debug("vendor resolved by fuzzy match",
			zap.String("tenant_id", tenantID),
			zap.String("display_name", displayName),
			zap.String("matched", best.DisplayName),
			zap.Float64("similarity", bestScore),
		)
		return Resolution{Vendor: *best, Similarity: bestScore}
	}

	v := model.Vendor{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ExternalID:    externalID,
		DisplayName:   displayName,
		CanonicalName: key,
		NeedsReview:   tied,
		CreatedAt:     r.now().UTC(),
	}
	if tied {
		zap.L().Warn("ambiguous vendor name match, flagging for review",
			zap.String("tenant_id", tenantID),
			zap.String("display_name", displayName),
			zap.Float64("similarity", bestScore),
		)
	}
	return Resolution{Vendor: v, Created: true, Similarity: bestScore}
}

// fuzzyMatch returns the best candidate above the threshold, whether that
// best score was an exact tie between distinct vendors, and the score.
func (r *Resolver) fuzzyMatch(key string, existing []model.Vendor) (*model.Vendor, bool, float64) {
	if key == "" {
		return nil, false, 0
	}

	params := levenshtein.NewParams()
	var best *model.Vendor
	var bestScore float64
	tied := false

	for i := range existing {
		v := &existing[i]
		if v.CanonicalName == "" {
			continue
		}
		score := levenshtein.Similarity(key, v.CanonicalName, params)
		if score < r.threshold {
			continue
		}
		switch {
		case best == nil || score > bestScore:
			best, bestScore, tied = v, score, false
		case score == bestScore && v.ID != best.ID:
			tied = true
		}
	}
	return best, tied, bestScore
}
