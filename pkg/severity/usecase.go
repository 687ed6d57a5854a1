package severity

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/incidents"
)

// IncidentStore is the narrow slice of incidents.Repository the
// severity use case needs.
type IncidentStore interface {
	GetIncident(ctx context.Context, id int64) (*incidents.Incident, error)
	UpdateIncident(ctx context.Context, incident *incidents.Incident) error
	GetCategoryConfig(ctx context.Context, categoryID int64) (incidents.CategoryConfig, error)
}

// Clock abstracts "now" so tests can pin velocity windows to a fixed
// instant.
type Clock func() time.Time

// UseCase refreshes a single incident's severity score (spec.md §4.6):
// load the incident, measure its recent velocity, recompute the
// formula, clamp and band, and persist.
type UseCase struct {
	store      IncidentStore
	velocity   VelocityDetector
	calculator *Calculator
	now        Clock
	logger     logr.Logger
}

// NewUseCase builds a severity UseCase. A zero logr.Logger discards.
func NewUseCase(store IncidentStore, velocity VelocityDetector, now Clock, logger logr.Logger) *UseCase {
	return &UseCase{
		store:      store,
		velocity:   velocity,
		calculator: NewCalculator(),
		now:        now,
		logger:     logger,
	}
}

// Recompute refreshes incidentID's severity_score and severity_level
// and persists the result.
func (u *UseCase) Recompute(ctx context.Context, incidentID int64) (*incidents.Incident, error) {
	incident, err := u.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	vel, err := u.velocity.Velocity(ctx, incidentID, incident.TimeWindowHours, now.Unix())
	if err != nil {
		return nil, err
	}

	categoryConfig, err := u.store.GetCategoryConfig(ctx, incident.CategoryID)
	if err != nil {
		return nil, err
	}

	score := u.calculator.Score(categoryConfig.BaseSeverityWeight, incident.ComplaintCount, vel)
	level := u.calculator.Level(score)

	incident.SeverityScore = score
	incident.SeverityLevel = level

	if err := u.store.UpdateIncident(ctx, incident); err != nil {
		return nil, err
	}

	u.logger.V(1).Info("recomputed incident severity",
		"incident_id", incidentID, "severity_score", score, "severity_level", level, "velocity", vel)

	return incident, nil
}
