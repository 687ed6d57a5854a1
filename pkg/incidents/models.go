// Package incidents owns the authoritative relational state for the
// clustering engine: complaints, incidents, incident↔complaint memberships,
// and per-category configuration (spec §3, §4.3).
package incidents

import "time"

// ComplaintStatus mirrors the lifecycle the external workflow drives a
// complaint through. The clustering core never mutates it; it only reads it
// to compose a user-facing message (spec §4.5 step 7).
type ComplaintStatus string

const (
	ComplaintSubmitted              ComplaintStatus = "submitted"
	ComplaintUnderReview            ComplaintStatus = "under_review"
	ComplaintForwardedToLGU         ComplaintStatus = "forwarded_to_lgu"
	ComplaintForwardedToDepartment  ComplaintStatus = "forwarded_to_department"
	ComplaintResolved               ComplaintStatus = "resolved"
)

// complaintStatusUrgency ranks statuses most-urgent first, used to pick the
// single existing_status surfaced on a merge (spec §4.5 step 7).
var complaintStatusUrgency = map[ComplaintStatus]int{
	ComplaintUnderReview:           0,
	ComplaintForwardedToLGU:        1,
	ComplaintForwardedToDepartment: 2,
	ComplaintResolved:              3,
	ComplaintSubmitted:             4,
}

// MostUrgentStatus returns the status in statuses that ranks highest by
// complaintStatusUrgency. Returns "" for an empty input.
func MostUrgentStatus(statuses []ComplaintStatus) ComplaintStatus {
	if len(statuses) == 0 {
		return ""
	}
	best := statuses[0]
	bestRank := complaintStatusUrgency[best]
	for _, s := range statuses[1:] {
		if rank, ok := complaintStatusUrgency[s]; ok && rank < bestRank {
			best, bestRank = s, rank
		}
	}
	return best
}

// Complaint is the citizen-submitted record the clustering engine reads but
// never mutates (spec §3).
type Complaint struct {
	ID          int64
	Title       string
	Description string
	BarangayID  int64
	CategoryID  int64
	AuthorID    int64
	Status      ComplaintStatus
	CreatedAt   time.Time
}

// IncidentStatus is the incident lifecycle state (spec §3).
type IncidentStatus string

const (
	IncidentActive  IncidentStatus = "ACTIVE"
	IncidentExpired IncidentStatus = "EXPIRED"
)

// SeverityLevel is the banded label used for UI color-coding (spec §3, §4.6).
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "LOW"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityCritical SeverityLevel = "CRITICAL"
)

// Band returns the SeverityLevel for a score, applying the fixed bands of
// spec §3: LOW<4, MEDIUM<6, HIGH<8, CRITICAL>=8.
func Band(score float64) SeverityLevel {
	switch {
	case score < 4.0:
		return SeverityLow
	case score < 6.0:
		return SeverityMedium
	case score < 8.0:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Incident is a live or expired cluster of complaints describing the same
// real-world event (spec §3).
type Incident struct {
	ID               int64
	Title            string
	Description      string
	BarangayID       int64
	CategoryID       int64
	Status           IncidentStatus
	ComplaintCount   int
	SeverityScore    float64
	SeverityLevel    SeverityLevel
	TimeWindowHours  float64
	FirstReportedAt  time.Time
	LastReportedAt   time.Time
}

// IsActive reports whether the incident is still within its time window as
// of now, per the invariant in spec §3.
func (i *Incident) IsActive(now time.Time) bool {
	if i.Status != IncidentActive {
		return false
	}
	deadline := i.LastReportedAt.Add(durationFromHours(i.TimeWindowHours))
	return !deadline.Before(now)
}

func durationFromHours(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// IncidentMembership is the append-only link between an incident and one of
// its complaints (spec §3).
type IncidentMembership struct {
	ID              int64
	IncidentID      int64
	ComplaintID     int64
	SimilarityScore float64
	LinkedAt        time.Time
}

// CategoryConfig is read-only tuning for one complaint category (spec §3,
// §4.3). Unconfigured categories fall back to DefaultCategoryConfig.
type CategoryConfig struct {
	CategoryID          int64
	BaseSeverityWeight  float64
	TimeWindowHours     float64
	SimilarityThreshold float64
}

// DefaultCategoryConfig is returned by GetCategoryConfig for a category with
// no configured row, matching spec §4.3's defaults for window and
// threshold. The base weight is drawn from defaultCategoryWeights, a
// richer per-category fallback recovered from the original severity
// recalculation use case, falling back further to 2.0 for a category id
// that table doesn't recognize either.
func DefaultCategoryConfig(categoryID int64) CategoryConfig {
	return CategoryConfig{
		CategoryID:          categoryID,
		BaseSeverityWeight:  defaultBaseWeight(categoryID),
		TimeWindowHours:     24.0,
		SimilarityThreshold: 0.65,
	}
}

// defaultCategoryWeights mirrors the values seeded in category_configs;
// the relational store is the source of truth, this is only the
// fallback used when a category has no configured row.
var defaultCategoryWeights = map[int64]float64{
	1:  3.0, // Noise Disturbance
	2:  4.0, // Illegal Dumping
	3:  3.5, // Road Damage
	4:  2.5, // Street Light Outage
	5:  5.0, // Flooding / Drainage Issue
	6:  4.5, // Illegal Construction
	7:  2.0, // Stray Animals
	8:  3.0, // Public Intoxication
	9:  2.5, // Illegal Vending
	10: 4.0, // Water Supply Issue
	11: 3.5, // Garbage Collection Issue
	12: 2.0, // Vandalism
	13: 2.0, // Other
}

func defaultBaseWeight(categoryID int64) float64 {
	if w, ok := defaultCategoryWeights[categoryID]; ok {
		return w
	}
	return 2.0
}
