package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an exact cosine-similarity index held in memory.
type VectorIndex struct {
	mu      sync.RWMutex
	records map[string]domain.VectorRecord
	dims    int
}

// NewVectorIndex creates an index. dims of zero accepts the first
// upserted vector's length.
func NewVectorIndex(dims int) *VectorIndex {
	return &VectorIndex{records: make(map[string]domain.VectorRecord), dims: dims}
}

// Upsert inserts or replaces records.
func (v *VectorIndex) Upsert(_ context.Context, records []domain.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, r := range records {
		if v.dims == 0 {
			v.dims = len(r.Values)
		}
		if len(r.Values) != v.dims {
			return fmt.Errorf("vector %s has %d dimensions, index expects %d", r.ID, len(r.Values), v.dims)
		}
	}
	for _, r := range records {
		values := make([]float32, len(r.Values))
		copy(values, r.Values)
		r.Values = values
		v.records[r.ID] = r
	}
	return nil
}

// DeleteByIDs removes records by id.
func (v *VectorIndex) DeleteByIDs(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.records, id)
	}
	return nil
}

// Query scans every record matching the filter.
func (v *VectorIndex) Query(_ context.Context, vector []float32, opts driven.QueryOptions) ([]domain.VectorMatch, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.dims != 0 && len(vector) != v.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(vector), v.dims)
	}

	matches := make([]domain.VectorMatch, 0, len(v.records))
	for _, r := range v.records {
		if !opts.Filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:       r.ID,
			Score:    cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if opts.TopK > 0 && len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// Get returns a stored record.
func (v *VectorIndex) Get(id string) (domain.VectorRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.records[id]
	return r, ok
}

// Len returns the number of records.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// Close releases resources.
func (v *VectorIndex) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
