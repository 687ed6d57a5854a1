// Package lifecycle runs the periodic incident-expiry sweep of spec.md
// §4.7: mark overdue incidents EXPIRED in the relational store, then
// propagate that status to the vector store, logging per-incident
// propagation failures without letting them stop the rest of the sweep.
package lifecycle

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/vectorstore"
)

// IncidentExpirer is the narrow slice of incidents.Repository the
// scheduler needs.
type IncidentExpirer interface {
	// ExpireOverdue marks ACTIVE incidents whose last_reported_at +
	// time_window_hours <= now as EXPIRED, returning their ids.
	ExpireOverdue(ctx context.Context, now int64) ([]int64, error)
}

// VectorStatusUpdater is the narrow slice of vectorstore.Store the
// scheduler needs.
type VectorStatusUpdater interface {
	UpdateStatusByIncident(ctx context.Context, incidentID int64, status vectorstore.Status) error
}

// Clock abstracts "now" so tests can drive the sweep at a fixed instant.
type Clock func() time.Time

// Scheduler runs the spec.md §4.7 sweep on a fixed period.
type Scheduler struct {
	repo    IncidentExpirer
	vectors VectorStatusUpdater
	now     Clock
	period  time.Duration
	logger  logr.Logger
}

// NewScheduler builds a Scheduler sweeping every period. A non-positive
// period falls back to the spec's default of 30 minutes.
func NewScheduler(repo IncidentExpirer, vectors VectorStatusUpdater, now Clock, period time.Duration, logger logr.Logger) *Scheduler {
	if period <= 0 {
		period = 30 * time.Minute
	}
	return &Scheduler{repo: repo, vectors: vectors, now: now, period: period, logger: logger}
}

// Run blocks, ticking every s.period, until ctx is cancelled. It sweeps
// once immediately on start so a freshly deployed worker doesn't wait a
// full period before its first pass.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	expired, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error(err, "lifecycle sweep failed")
		return
	}
	if len(expired) > 0 {
		s.logger.Info("lifecycle sweep expired incidents", "count", len(expired), "incident_ids", expired)
	}
}

// Sweep runs one pass of spec.md §4.7: expire overdue incidents in the
// relational store (the authoritative status transition), then propagate
// EXPIRED to every complaint vector linked to each one. A propagation
// failure for one incident is logged and does not block the rest — the
// relational store has already committed the transition. Later sweeps
// only see incidents newly expired by ExpireOverdue, so a failed
// vector-store update is not retried by the scheduler and that incident's
// vectors keep their ACTIVE metadata.
func (s *Scheduler) Sweep(ctx context.Context) ([]int64, error) {
	expired, err := s.repo.ExpireOverdue(ctx, s.now().Unix())
	if err != nil {
		return nil, err
	}

	for _, incidentID := range expired {
		if err := s.vectors.UpdateStatusByIncident(ctx, incidentID, vectorstore.StatusExpired); err != nil {
			s.logger.Error(err, "failed to propagate expiry to vector store", "incident_id", incidentID)
		}
	}

	return expired, nil
}
