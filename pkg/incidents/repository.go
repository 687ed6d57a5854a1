package incidents

import (
	"context"
	"time"
)

// Repository is the authoritative relational store for incidents, their
// complaint memberships, and category configuration (spec §4.3).
//
// Implementations translate low-level driver errors into the
// pkg/ucrserrors taxonomy; callers (the clustering and severity use cases)
// never inspect driver-specific error types.
type Repository interface {
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	CreateIncident(ctx context.Context, incident *Incident) (*Incident, error)
	UpdateIncident(ctx context.Context, incident *Incident) error

	// LinkComplaint appends a membership. Implementations return a
	// ucrserrors.Conflict error (treated as success by the caller, spec §7)
	// on a duplicate (incident_id, complaint_id).
	LinkComplaint(ctx context.Context, incidentID, complaintID int64, similarityScore float64) error

	// ListActiveInWindow returns active incidents in (barangayID,
	// categoryID) whose last_reported_at is within windowHours of now,
	// ordered by last_reported_at descending.
	ListActiveInWindow(ctx context.Context, barangayID, categoryID int64, windowHours float64, now int64) ([]*Incident, error)

	CountMembershipsInWindow(ctx context.Context, incidentID int64, windowHours float64, now int64) (int, error)

	// GetCategoryConfig returns the configured row for categoryID, or
	// DefaultCategoryConfig if none exists.
	GetCategoryConfig(ctx context.Context, categoryID int64) (CategoryConfig, error)

	// ComplaintStatusesForIncident returns the distinct statuses of
	// complaints linked to incidentID.
	ComplaintStatusesForIncident(ctx context.Context, incidentID int64) ([]ComplaintStatus, error)

	// ExpireOverdue marks ACTIVE incidents whose last_reported_at +
	// time_window_hours <= now as EXPIRED, returning their ids.
	ExpireOverdue(ctx context.Context, now int64) ([]int64, error)

	// MergeComplaint is the transactional unit of spec §4.5 step 5 / §5:
	// it re-reads incidentID and, iff still ACTIVE as of now, increments
	// complaint_count, sets last_reported_at=now, and appends the
	// membership — all inside one transaction. If the incident is no
	// longer ACTIVE (the race-condition guard) or no longer exists, it
	// returns (nil, nil) so the caller falls through to Create.
	MergeComplaint(ctx context.Context, incidentID, complaintID int64, similarityScore float64, now time.Time) (*Incident, error)
}
