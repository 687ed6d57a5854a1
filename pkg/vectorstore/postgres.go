package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// PostgresStore backs the vector store with a Postgres table using the
// pgvector extension for the embedding column and one plain column per
// Metadata field (see the schema below), matching the relational-first posture the clustering
// use case already takes for candidate discovery (spec §4.2, §4.5 step 2).
//
// Schema (logical): complaint_vectors(id text pk, embedding vector(d),
// barangay_id bigint, category_id bigint, incident_id bigint, status text,
// created_at_unix double precision).
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore builds a PostgresStore over db.
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

var _ Store = (*PostgresStore)(nil)

func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, f := range vec {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s *PostgresStore) Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error {
	const q = `INSERT INTO complaint_vectors (id, embedding, barangay_id, category_id, incident_id, status, created_at_unix)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding, barangay_id = EXCLUDED.barangay_id,
			category_id = EXCLUDED.category_id, incident_id = EXCLUDED.incident_id,
			status = EXCLUDED.status, created_at_unix = EXCLUDED.created_at_unix`

	_, err := s.db.ExecContext(ctx, q, id, vectorLiteral(vec), meta.BarangayID, meta.CategoryID, meta.IncidentID, meta.Status, meta.CreatedAtUnix)
	if err != nil {
		return fmt.Errorf("failed to upsert complaint vector %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) QuerySimilar(ctx context.Context, queryVec []float32, barangayID, categoryID int64, sinceUnix float64, topK int) ([]ScoredPoint, error) {
	const q = `SELECT id, embedding, barangay_id, category_id, incident_id, status, created_at_unix,
		1 - (embedding <=> $1) AS score
		FROM complaint_vectors
		WHERE barangay_id = $2 AND category_id = $3 AND status = $4 AND created_at_unix >= $5
		ORDER BY score DESC, created_at_unix DESC, id DESC
		LIMIT $6`

	rows, err := s.db.QueryContext(ctx, q, vectorLiteral(queryVec), barangayID, categoryID, StatusActive, sinceUnix, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar complaint vectors: %w", err)
	}
	defer rows.Close()

	var out []ScoredPoint
	for rows.Next() {
		var sp ScoredPoint
		var embeddingRaw string
		if err := rows.Scan(&sp.ID, &embeddingRaw, &sp.Metadata.BarangayID, &sp.Metadata.CategoryID,
			&sp.Metadata.IncidentID, &sp.Metadata.Status, &sp.Metadata.CreatedAtUnix, &sp.Score); err != nil {
			return nil, fmt.Errorf("failed to scan complaint vector row: %w", err)
		}
		sp.Vector = parseVectorLiteral(embeddingRaw)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FetchIncidentVector(ctx context.Context, incidentID int64) (*Point, error) {
	const q = `SELECT id, embedding, barangay_id, category_id, incident_id, status, created_at_unix
		FROM complaint_vectors WHERE incident_id = $1 ORDER BY created_at_unix ASC LIMIT 1`

	var p Point
	var embeddingRaw string
	err := s.db.QueryRowContext(ctx, q, incidentID).Scan(&p.ID, &embeddingRaw, &p.Metadata.BarangayID,
		&p.Metadata.CategoryID, &p.Metadata.IncidentID, &p.Metadata.Status, &p.Metadata.CreatedAtUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incident seed vector: %w", err)
	}
	p.Vector = parseVectorLiteral(embeddingRaw)
	return &p, nil
}

func (s *PostgresStore) BatchFetchIncidentVectors(ctx context.Context, incidentIDs []int64) (map[int64]*Point, error) {
	out := make(map[int64]*Point, len(incidentIDs))
	for _, id := range incidentIDs {
		p, err := s.FetchIncidentVector(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("incident_id", id).Warn("best-effort batch fetch skipped an incident")
			continue
		}
		if p != nil {
			out[id] = p
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, id string, update MetadataUpdate) error {
	var sets []string
	var args []interface{}
	argN := 1

	if update.IncidentID != nil {
		sets = append(sets, fmt.Sprintf("incident_id = $%d", argN))
		args = append(args, *update.IncidentID)
		argN++
	}
	if update.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argN))
		args = append(args, *update.Status)
		argN++
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	q := fmt.Sprintf("UPDATE complaint_vectors SET %s WHERE id = $%d", strings.Join(sets, ", "), argN)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update complaint vector metadata for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complaint vector %s not found", id)
	}
	return nil
}

func (s *PostgresStore) UpdateStatusByIncident(ctx context.Context, incidentID int64, status Status) error {
	const q = `UPDATE complaint_vectors SET status = $1 WHERE incident_id = $2`

	res, err := s.db.ExecContext(ctx, q, status, incidentID)
	if err != nil {
		return fmt.Errorf("failed to mass-update complaint vector status for incident %d: %w", incidentID, err)
	}
	n, _ := res.RowsAffected()
	s.logger.WithField("incident_id", incidentID).WithField("updated", n).Debug("propagated incident status to vector store")
	return nil
}

// parseVectorLiteral parses pgvector's "[1,2,3]" text representation back
// into a float32 slice. Malformed input yields an empty vector rather than
// a panic; the caller treats a degenerate score the same as a miss.
func parseVectorLiteral(raw string) []float32 {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(p)), &f); err != nil {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
