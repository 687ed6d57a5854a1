package incidents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
)

// postgresUniqueViolation is Postgres' SQLSTATE for a unique_violation,
// raised by the (incident_id, complaint_id) unique index (spec §6).
const postgresUniqueViolation = "23505"

// PostgresRepository is the Postgres-backed Repository implementation
// (spec §6's `incidents`, `incident_memberships`, `category_configs`
// tables).
type PostgresRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	const q = `SELECT id, title, description, barangay_id, category_id, status,
		complaint_count, severity_score, severity_level, time_window_hours,
		first_reported_at, last_reported_at
		FROM incidents WHERE id = $1`

	row := r.db.QueryRowContext(ctx, q, id)
	incident, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ucrserrors.NewNotFound("incident", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return incident, nil
}

func (r *PostgresRepository) CreateIncident(ctx context.Context, incident *Incident) (*Incident, error) {
	const q = `INSERT INTO incidents
		(title, description, barangay_id, category_id, status, complaint_count,
		 severity_score, severity_level, time_window_hours, first_reported_at, last_reported_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, q,
		incident.Title, incident.Description, incident.BarangayID, incident.CategoryID,
		incident.Status, incident.ComplaintCount, incident.SeverityScore, incident.SeverityLevel,
		incident.TimeWindowHours, incident.FirstReportedAt, incident.LastReportedAt,
	).Scan(&incident.ID)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return incident, nil
}

func (r *PostgresRepository) UpdateIncident(ctx context.Context, incident *Incident) error {
	const q = `UPDATE incidents SET title=$1, description=$2, status=$3, complaint_count=$4,
		severity_score=$5, severity_level=$6, time_window_hours=$7,
		first_reported_at=$8, last_reported_at=$9
		WHERE id=$10`

	res, err := r.db.ExecContext(ctx, q,
		incident.Title, incident.Description, incident.Status, incident.ComplaintCount,
		incident.SeverityScore, incident.SeverityLevel, incident.TimeWindowHours,
		incident.FirstReportedAt, incident.LastReportedAt, incident.ID,
	)
	if err != nil {
		return ucrserrors.NewTransientExternal("incident_repository", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ucrserrors.NewNotFound("incident", fmt.Sprintf("%d", incident.ID))
	}
	return nil
}

func (r *PostgresRepository) LinkComplaint(ctx context.Context, incidentID, complaintID int64, similarityScore float64) error {
	const q = `INSERT INTO incident_memberships (incident_id, complaint_id, similarity_score, linked_at)
		VALUES ($1, $2, $3, now())`

	_, err := r.db.ExecContext(ctx, q, incidentID, complaintID, similarityScore)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
			return ucrserrors.NewConflict("incident_membership", "complaint_id", fmt.Sprintf("%d", complaintID))
		}
		return ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return nil
}

func (r *PostgresRepository) ListActiveInWindow(ctx context.Context, barangayID, categoryID int64, windowHours float64, now int64) ([]*Incident, error) {
	const q = `SELECT id, title, description, barangay_id, category_id, status,
		complaint_count, severity_score, severity_level, time_window_hours,
		first_reported_at, last_reported_at
		FROM incidents
		WHERE barangay_id = $1 AND category_id = $2 AND status = $3
		  AND last_reported_at >= to_timestamp($4 - $5 * 3600)
		ORDER BY last_reported_at DESC`

	rows, err := r.db.QueryContext(ctx, q, barangayID, categoryID, IncidentActive, now, windowHours)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, ucrserrors.NewTransientExternal("incident_repository", err)
		}
		out = append(out, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountMembershipsInWindow(ctx context.Context, incidentID int64, windowHours float64, now int64) (int, error) {
	const q = `SELECT count(*) FROM incident_memberships
		WHERE incident_id = $1 AND linked_at >= to_timestamp($2 - $3 * 3600)`

	var count int
	if err := r.db.QueryRowContext(ctx, q, incidentID, now, windowHours).Scan(&count); err != nil {
		return 0, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetCategoryConfig(ctx context.Context, categoryID int64) (CategoryConfig, error) {
	const q = `SELECT category_id, base_severity_weight, time_window_hours, similarity_threshold
		FROM category_configs WHERE category_id = $1`

	var cfg CategoryConfig
	err := r.db.QueryRowContext(ctx, q, categoryID).Scan(
		&cfg.CategoryID, &cfg.BaseSeverityWeight, &cfg.TimeWindowHours, &cfg.SimilarityThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultCategoryConfig(categoryID), nil
	}
	if err != nil {
		return CategoryConfig{}, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return cfg, nil
}

func (r *PostgresRepository) ComplaintStatusesForIncident(ctx context.Context, incidentID int64) ([]ComplaintStatus, error) {
	const q = `SELECT DISTINCT c.status FROM complaints c
		JOIN incident_memberships m ON m.complaint_id = c.id
		WHERE m.incident_id = $1`

	rows, err := r.db.QueryContext(ctx, q, incidentID)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	defer rows.Close()

	var out []ComplaintStatus
	for rows.Next() {
		var s ComplaintStatus
		if err := rows.Scan(&s); err != nil {
			return nil, ucrserrors.NewTransientExternal("incident_repository", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ExpireOverdue(ctx context.Context, now int64) ([]int64, error) {
	const q = `UPDATE incidents SET status = $1
		WHERE status = $2 AND last_reported_at + (time_window_hours * interval '1 hour') <= to_timestamp($3)
		RETURNING id`

	rows, err := r.db.QueryContext(ctx, q, IncidentExpired, IncidentActive, now)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ucrserrors.NewTransientExternal("incident_repository", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	if len(ids) > 0 {
		r.logger.WithField("count", len(ids)).Info("expired overdue incidents")
	}
	return ids, nil
}

func (r *PostgresRepository) MergeComplaint(ctx context.Context, incidentID, complaintID int64, similarityScore float64, now time.Time) (*Incident, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	defer tx.Rollback()

	const selectQ = `SELECT id, title, description, barangay_id, category_id, status,
		complaint_count, severity_score, severity_level, time_window_hours,
		first_reported_at, last_reported_at
		FROM incidents WHERE id = $1 FOR UPDATE`

	incident, err := scanIncident(tx.QueryRowContext(ctx, selectQ, incidentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	if !incident.IsActive(now) {
		return nil, nil
	}

	incident.ComplaintCount++
	incident.LastReportedAt = now

	const updateQ = `UPDATE incidents SET complaint_count=$1, last_reported_at=$2 WHERE id=$3`
	if _, err := tx.ExecContext(ctx, updateQ, incident.ComplaintCount, incident.LastReportedAt, incident.ID); err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}

	const insertQ = `INSERT INTO incident_memberships (incident_id, complaint_id, similarity_score, linked_at)
		VALUES ($1, $2, $3, now())`
	if _, err := tx.ExecContext(ctx, insertQ, incidentID, complaintID, similarityScore); err != nil {
		var pgErr *pgconn.PgError
		if !(errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation) {
			return nil, ucrserrors.NewTransientExternal("incident_repository", err)
		}
		// Conflict (spec §7): a retry of an already-applied merge. The
		// count/last_reported_at update above is itself idempotent for a
		// retry of the same logical job, so proceed to commit as-is.
	}

	if err := tx.Commit(); err != nil {
		return nil, ucrserrors.NewTransientExternal("incident_repository", err)
	}
	return incident, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var incident Incident
	err := row.Scan(
		&incident.ID, &incident.Title, &incident.Description, &incident.BarangayID,
		&incident.CategoryID, &incident.Status, &incident.ComplaintCount,
		&incident.SeverityScore, &incident.SeverityLevel, &incident.TimeWindowHours,
		&incident.FirstReportedAt, &incident.LastReportedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}
