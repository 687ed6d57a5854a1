package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// MemoryStore is an in-process Store, used for local development and as
// the default in tests. It holds every point in a map guarded by a single
// mutex; concurrent callers are safe but there is no persistence across
// process restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]Point
	logger logr.Logger
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore(logger logr.Logger) *MemoryStore {
	return &MemoryStore{points: make(map[string]Point), logger: logger}
}

var _ Store = (*MemoryStore)(nil)

// Count returns the number of stored points; exposed for tests and
// operational introspection, not part of the Store interface.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func (s *MemoryStore) Upsert(ctx context.Context, id string, vec []float32, meta Metadata) error {
	if id == "" {
		return fmt.Errorf("point id cannot be empty")
	}
	if len(vec) == 0 {
		return fmt.Errorf("point vector cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[id] = Point{ID: id, Vector: vec, Metadata: meta}
	return nil
}

func (s *MemoryStore) QuerySimilar(ctx context.Context, queryVec []float32, barangayID, categoryID int64, sinceUnix float64, topK int) ([]ScoredPoint, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	s.mu.RLock()
	candidates := make([]ScoredPoint, 0, len(s.points))
	for _, p := range s.points {
		m := p.Metadata
		if m.BarangayID != barangayID || m.CategoryID != categoryID {
			continue
		}
		if m.Status != StatusActive {
			continue
		}
		if m.CreatedAtUnix < sinceUnix {
			continue
		}
		candidates = append(candidates, ScoredPoint{Point: p, Score: ComputeSimilarity(queryVec, p.Vector)})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.CreatedAtUnix != b.Metadata.CreatedAtUnix {
			return a.Metadata.CreatedAtUnix > b.Metadata.CreatedAtUnix
		}
		return a.Metadata.ComplaintID > b.Metadata.ComplaintID
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *MemoryStore) FetchIncidentVector(ctx context.Context, incidentID int64) (*Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seed *Point
	for _, p := range s.points {
		if p.Metadata.IncidentID != incidentID {
			continue
		}
		if seed == nil || p.Metadata.CreatedAtUnix < seed.Metadata.CreatedAtUnix {
			pCopy := p
			seed = &pCopy
		}
	}
	return seed, nil
}

func (s *MemoryStore) BatchFetchIncidentVectors(ctx context.Context, incidentIDs []int64) (map[int64]*Point, error) {
	out := make(map[int64]*Point, len(incidentIDs))
	for _, id := range incidentIDs {
		p, err := s.FetchIncidentVector(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateMetadata(ctx context.Context, id string, update MetadataUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.points[id]
	if !ok {
		return fmt.Errorf("point with id %s not found", id)
	}
	if update.IncidentID != nil {
		p.Metadata.IncidentID = *update.IncidentID
	}
	if update.Status != nil {
		p.Metadata.Status = *update.Status
	}
	s.points[id] = p
	return nil
}

func (s *MemoryStore) UpdateStatusByIncident(ctx context.Context, incidentID int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.points {
		if p.Metadata.IncidentID == incidentID {
			p.Metadata.Status = status
			s.points[id] = p
		}
	}
	return nil
}

// Clear removes every stored point; used to reset state between tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[string]Point)
}
