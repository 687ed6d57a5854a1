package severity

import "context"

// VelocityDetector measures how fast an incident is accumulating
// complaints. Kept as a separate collaborator from SeverityCalculator
// (spec.md §2 item 5) so the two pure-function concerns stay
// independently testable.
type VelocityDetector interface {
	// Velocity returns memberships-per-hour for incidentID over its
	// time window as of now: count_memberships_in_window / windowHours.
	Velocity(ctx context.Context, incidentID int64, windowHours float64, now int64) (float64, error)
}

// MembershipCounter is the narrow slice of incidents.Repository the
// velocity detector needs.
type MembershipCounter interface {
	CountMembershipsInWindow(ctx context.Context, incidentID int64, windowHours float64, now int64) (int, error)
}

// WindowVelocityDetector computes velocity from the relational store's
// membership count within the incident's own time window.
type WindowVelocityDetector struct {
	counter MembershipCounter
}

// NewWindowVelocityDetector builds a WindowVelocityDetector over counter.
func NewWindowVelocityDetector(counter MembershipCounter) *WindowVelocityDetector {
	return &WindowVelocityDetector{counter: counter}
}

var _ VelocityDetector = (*WindowVelocityDetector)(nil)

func (d *WindowVelocityDetector) Velocity(ctx context.Context, incidentID int64, windowHours float64, now int64) (float64, error) {
	if windowHours <= 0 {
		return 0, nil
	}
	count, err := d.counter.CountMembershipsInWindow(ctx, incidentID, windowHours, now)
	if err != nil {
		return 0, err
	}
	return float64(count) / windowHours, nil
}
