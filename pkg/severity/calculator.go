// Package severity computes the bounded severity score and banded
// severity level for an incident from its complaint count, recent
// activity velocity, and category baseline (spec.md §4.6).
package severity

import (
	"math"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/incidents"
	sharedmath "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/math"
)

// Calculator computes severity_score from its three inputs. The formula
// is preserved byte-for-byte from spec.md §4.6 / [FULL] Severity &
// Confidence-Band Constants: logarithmic in count, linear in rate,
// additive on a category baseline, clamped to [1.0, 10.0].
type Calculator struct{}

// NewCalculator builds a Calculator. It carries no state; the formula
// is a pure function of its inputs.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Score computes severity_score = clamp(round(baseWeight +
// log2(max(count,1))*1.5 + velocity*2.0, 2), 1.0, 10.0).
func (c *Calculator) Score(baseWeight float64, complaintCount int, velocity float64) float64 {
	count := complaintCount
	if count < 1 {
		count = 1
	}
	raw := baseWeight + math.Log2(float64(count))*1.5 + velocity*2.0
	return sharedmath.Clamp(sharedmath.Round2(raw), 1.0, 10.0)
}

// Level bands a severity score per spec.md §3 invariants: LOW<4,
// MEDIUM<6, HIGH<8, CRITICAL>=8.
func (c *Calculator) Level(score float64) incidents.SeverityLevel {
	return incidents.Band(score)
}

