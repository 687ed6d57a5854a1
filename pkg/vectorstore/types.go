// Package vectorstore persists per-complaint embedding vectors with
// structured metadata and serves the filtered nearest-neighbour query the
// clustering use case scores candidates against (spec §4.2).
package vectorstore

import (
	"context"

	sharedmath "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/math"
)

// NoIncident is the sentinel for "not yet linked to an incident" in vector
// metadata, carried from the original Python implementation's
// `incident_id = -1` convention (spec §6, SPEC_FULL supplemented features).
const NoIncident int64 = -1

// Status mirrors the linked incident's lifecycle in vector metadata, kept
// in sync by the clustering use case and the lifecycle scheduler.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// Metadata is the structured, filterable payload stored alongside each
// complaint's vector (spec §3, §6).
type Metadata struct {
	ComplaintID   int64   `json:"complaint_id"`
	BarangayID    int64   `json:"barangay_id"`
	CategoryID    int64   `json:"category_id"`
	IncidentID    int64   `json:"incident_id"`
	Status        Status  `json:"status"`
	CreatedAtUnix float64 `json:"created_at_unix"`
}

// MetadataUpdate is a partial update to Metadata; nil fields are left
// untouched (spec §4.2 update_metadata).
type MetadataUpdate struct {
	IncidentID *int64
	Status     *Status
}

// Point is a stored vector plus its metadata, keyed by the decimal string
// of the complaint id (spec §6).
type Point struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// ScoredPoint is a Point annotated with its similarity to a query vector.
type ScoredPoint struct {
	Point
	Score float64
}

// Store is the vector store capability interface (spec §4.2). Missing ids
// on a fetch return (nil, nil) rather than an error; transient backend
// errors are surfaced to the caller for retry.
type Store interface {
	// Upsert is idempotent by id and overwrites metadata in full.
	Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error

	// QuerySimilar returns the top_k nearest points by cosine similarity,
	// restricted to barangayID/categoryID/status=ACTIVE/createdAt>=sinceUnix,
	// sorted by score descending, ties broken by larger created_at then
	// larger id (spec §4.2).
	QuerySimilar(ctx context.Context, queryVec []float32, barangayID, categoryID int64, sinceUnix float64, topK int) ([]ScoredPoint, error)

	// FetchIncidentVector returns the seed (earliest) complaint vector
	// linked to incidentID, or nil if none exists.
	FetchIncidentVector(ctx context.Context, incidentID int64) (*Point, error)

	// BatchFetchIncidentVectors is the first-class batched variant of
	// FetchIncidentVector (SPEC_FULL supplemented feature): ids missing a
	// seed vector are simply absent from the result map. It is best-effort
	// in PostgresStore, which logs and skips an id whose fetch fails instead
	// of returning the error; MemoryStore returns it.
	BatchFetchIncidentVectors(ctx context.Context, incidentIDs []int64) (map[int64]*Point, error)

	// UpdateMetadata partially updates the metadata for id. Absent keys in
	// update are left untouched.
	UpdateMetadata(ctx context.Context, id string, update MetadataUpdate) error

	// UpdateStatusByIncident mass-updates the status of every point whose
	// metadata.IncidentID equals incidentID.
	UpdateStatusByIncident(ctx context.Context, incidentID int64, status Status) error
}

// ComputeSimilarity is the local, never-suspending cosine similarity used
// to score a single candidate against a query vector (spec §4.2). Unit-norm
// inputs (as every stored embedding is) make this equivalent to a plain dot
// product.
func ComputeSimilarity(a, b []float32) float64 {
	return sharedmath.CosineSimilarity(toFloat64(a), toFloat64(b))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
