// Package clustering assigns a new complaint to an existing incident or
// creates a new one (spec.md §4.5): embed, discover candidates
// relationally, score them locally, decide a confidence band, arbitrate
// via LLM when the score is close enough to matter, then merge-or-create.
package clustering

import (
	sharedmath "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/math"
)

// Band is the confidence classification of a candidate's similarity
// score against a category's threshold T (spec.md §4.5 step 4,
// GLOSSARY "Confidence band").
type Band string

const (
	// BandHigh is scored >= T+0.10: call the LLM; merge iff YES.
	BandHigh Band = "high"
	// BandAmbiguous is scored in [T, T+0.10): call the LLM; merge iff YES.
	BandAmbiguous Band = "ambiguous"
	// BandReject is scored < T: no LLM call, always a new incident.
	BandReject Band = "reject"
)

// confidenceMargin is the width of the high/ambiguous split above T.
const confidenceMargin = 0.10

// Classify bands score against threshold T using the 1e-9 double
// comparison tolerance spec.md §4.5 mandates throughout.
func Classify(score, threshold float64) Band {
	switch {
	case score >= threshold+confidenceMargin || sharedmath.FloatEqual(score, threshold+confidenceMargin):
		return BandHigh
	case score >= threshold || sharedmath.FloatEqual(score, threshold):
		return BandAmbiguous
	default:
		return BandReject
	}
}

// RequiresArbitration reports whether a band needs an LLM call before a
// merge decision can be made (spec.md §4.5 step 4).
func (b Band) RequiresArbitration() bool {
	return b == BandHigh || b == BandAmbiguous
}
