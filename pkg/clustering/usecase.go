package clustering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/embedding"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/incidents"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/llm"
	sharedmath "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/math"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/vectorstore"
)

// Input is the resolved ClusterInput of spec.md §6: the complaint
// identity and text plus its category's tuning, already looked up by
// the caller via IncidentRepository.GetCategoryConfig.
type Input struct {
	ComplaintID int64
	Title       string
	Description string
	BarangayID  int64
	CategoryID  int64
	CreatedAt   time.Time

	WindowHours float64
	BaseWeight  float64
	Threshold   float64
}

// Result is the outbound ClusterResult of spec.md §6.
type Result struct {
	IncidentID            int64
	IsNewIncident         bool
	SimilarityScore       float64
	SeverityLevel         incidents.SeverityLevel
	ExistingIncidentStatus incidents.ComplaintStatus
	Message               string
}

// UseCase implements the clustering algorithm of spec.md §4.5.
type UseCase struct {
	embedder    embedding.Embedder
	vectors     vectorstore.Store
	incidentsDB incidents.Repository
	arbiter     llm.Arbiter
	logger      logr.Logger
}

// NewUseCase wires the four collaborators of spec.md §2 items 1–4 into a
// clustering UseCase.
func NewUseCase(embedder embedding.Embedder, vectors vectorstore.Store, incidentsDB incidents.Repository, arbiter llm.Arbiter, logger logr.Logger) *UseCase {
	return &UseCase{embedder: embedder, vectors: vectors, incidentsDB: incidentsDB, arbiter: arbiter, logger: logger}
}

// Cluster assigns in to an existing incident or creates a new one.
func (u *UseCase) Cluster(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Description) == "" {
		return nil, ucrserrors.NewInvalidInput("description", "must not be empty after trimming")
	}

	// 1. Embed.
	queryVec, err := u.embedder.Embed(ctx, in.Description)
	if err != nil {
		return nil, ucrserrors.NewTransientExternal("embedder", err)
	}

	// 2. Candidate discovery from the relational store.
	nowUnix := in.CreatedAt.Unix()
	candidates, err := u.incidentsDB.ListActiveInWindow(ctx, in.BarangayID, in.CategoryID, in.WindowHours, nowUnix)
	if err != nil {
		return nil, err
	}

	// 3. Score candidates against their seed vectors.
	best, bestScore, err := u.scoreCandidates(ctx, queryVec, candidates)
	if err != nil {
		return nil, err
	}

	// 4. Confidence-band decision, 5. apply decision.
	if best == nil {
		return u.create(ctx, in, queryVec, 1.0)
	}

	band := Classify(bestScore, in.Threshold)
	if !band.RequiresArbitration() {
		return u.create(ctx, in, queryVec, 1.0)
	}

	same, err := u.arbiter.SameIncident(ctx, best.Description, in.Description)
	if err != nil {
		// Spec §4.4/§7: LLM errors are not fatal; treat as NO and proceed.
		u.logger.V(1).Info("LLM arbitration failed, treating as NO", "error", err.Error())
		same = false
	}
	if !same {
		return u.create(ctx, in, queryVec, 1.0)
	}

	return u.merge(ctx, in, queryVec, best, bestScore)
}

// scoreCandidates fetches each candidate's seed vector and keeps the
// highest-scoring one, with ties broken by latest last_reported_at then
// smallest incident id (spec.md §4.5 tie-breaking). All score comparisons use
// the engine-wide 1e-9 tolerance so near-ties fall through to the
// explicit last_reported_at / incident-id tie-break instead of being
// decided by floating point noise.
func (u *UseCase) scoreCandidates(ctx context.Context, queryVec []float32, candidates []*incidents.Incident) (*incidents.Incident, float64, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	seeds, err := u.vectors.BatchFetchIncidentVectors(ctx, ids)
	if err != nil {
		return nil, 0, ucrserrors.NewTransientExternal("vector_store", err)
	}

	var best *incidents.Incident
	bestScore := -1.0
	for _, candidate := range candidates {
		seed, ok := seeds[candidate.ID]
		if !ok || seed == nil {
			continue
		}
		score := vectorstore.ComputeSimilarity(queryVec, seed.Vector)
		switch {
		case best == nil:
			best, bestScore = candidate, score
		case sharedmath.FloatEqual(score, bestScore):
			if candidate.LastReportedAt.After(best.LastReportedAt) ||
				(candidate.LastReportedAt.Equal(best.LastReportedAt) && candidate.ID < best.ID) {
				best, bestScore = candidate, score
			}
		case score > bestScore:
			best, bestScore = candidate, score
		}
	}
	return best, bestScore, nil
}

func (u *UseCase) create(ctx context.Context, in Input, queryVec []float32, similarity float64) (*Result, error) {
	severityLevel := incidents.Band(in.BaseWeight)
	incident := &incidents.Incident{
		Title:           in.Title,
		Description:     in.Description,
		BarangayID:      in.BarangayID,
		CategoryID:      in.CategoryID,
		Status:          incidents.IncidentActive,
		ComplaintCount:  1,
		SeverityScore:   in.BaseWeight,
		SeverityLevel:   severityLevel,
		TimeWindowHours: in.WindowHours,
		FirstReportedAt: in.CreatedAt,
		LastReportedAt:  in.CreatedAt,
	}
	incident, err := u.incidentsDB.CreateIncident(ctx, incident)
	if err != nil {
		return nil, err
	}

	if err := u.linkAndUpsert(ctx, incident.ID, in, queryVec, 1.0); err != nil {
		return nil, err
	}

	return &Result{
		IncidentID:      incident.ID,
		IsNewIncident:   true,
		SimilarityScore: similarity,
		SeverityLevel:   severityLevel,
		Message:         fmt.Sprintf("New incident #%d created.", incident.ID),
	}, nil
}

// merge applies the candidate's complaint_count increment, last_reported_at
// bump, and membership insert as the single transactional unit of spec.md
// §4.5 step 5 / §5, rather than reading and writing the incident in
// separate round trips — two concurrent merges into the same incident
// would otherwise both read the same complaint_count and lose an update.
func (u *UseCase) merge(ctx context.Context, in Input, queryVec []float32, candidate *incidents.Incident, score float64) (*Result, error) {
	fresh, err := u.incidentsDB.MergeComplaint(ctx, candidate.ID, in.ComplaintID, score, in.CreatedAt)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		// Race-condition guard (spec.md §4.5 step 5, §5): the incident no
		// longer exists or is no longer ACTIVE as of in.CreatedAt. Fall
		// through to create rather than merging into a stale candidate.
		return u.create(ctx, in, queryVec, 1.0)
	}

	if err := u.upsertVector(ctx, fresh.ID, in, queryVec); err != nil {
		return nil, err
	}

	statuses, err := u.incidentsDB.ComplaintStatusesForIncident(ctx, fresh.ID)
	if err != nil {
		return nil, err
	}
	existingStatus := incidents.MostUrgentStatus(statuses)

	return &Result{
		IncidentID:             fresh.ID,
		IsNewIncident:          false,
		SimilarityScore:        score,
		SeverityLevel:          fresh.SeverityLevel,
		ExistingIncidentStatus: existingStatus,
		Message:                fmt.Sprintf("Merged into existing incident #%d.", fresh.ID),
	}, nil
}

// linkAndUpsert appends the membership (tolerating a Conflict as success
// per spec.md §7) then upserts the complaint's vector after the
// relational write, matching spec.md §4.5 step 6's commit ordering. Used
// by create, since MergeComplaint already inserts the membership row
// itself as part of its own transaction.
func (u *UseCase) linkAndUpsert(ctx context.Context, incidentID int64, in Input, queryVec []float32, score float64) error {
	err := u.incidentsDB.LinkComplaint(ctx, incidentID, in.ComplaintID, score)
	if err != nil && !ucrserrors.IsConflict(err) {
		return err
	}
	return u.upsertVector(ctx, incidentID, in, queryVec)
}

func (u *UseCase) upsertVector(ctx context.Context, incidentID int64, in Input, queryVec []float32) error {
	meta := vectorstore.Metadata{
		ComplaintID:   in.ComplaintID,
		BarangayID:    in.BarangayID,
		CategoryID:    in.CategoryID,
		IncidentID:    incidentID,
		Status:        vectorstore.StatusActive,
		CreatedAtUnix: float64(in.CreatedAt.Unix()),
	}
	if err := u.vectors.Upsert(ctx, strconv.FormatInt(in.ComplaintID, 10), queryVec, meta); err != nil {
		return ucrserrors.NewTransientExternal("vector_store", err)
	}
	return nil
}
