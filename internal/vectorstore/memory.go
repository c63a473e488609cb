package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
)

// ErrInjected is returned by Memory when a failure has been scheduled with FailDeletes.
var ErrInjected = errors.New("vectorstore: injected failure")

// Memory is an in-process Store.
type Memory struct {
	mu          sync.Mutex
	records     map[string]Record
	failDeletes int
	failFor     map[string]int
	deleteCalls int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), failFor: make(map[string]int)}
}

// Upsert stores records, replacing any with the same id.
func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = RecordID(rec.ContentID, rec.ChunkIndex)
		}
		rec.Vector = append([]float32(nil), rec.Vector...)
		m.records[rec.ID] = rec
	}
	return nil
}

// DeleteByMetadata removes matching records.
func (m *Memory) DeleteByMetadata(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.failDeletes > 0 {
		m.failDeletes--
		return 0, ErrInjected
	}
	if id := filter[KeyContentID]; m.failFor[id] > 0 {
		m.failFor[id]--
		return 0, ErrInjected
	}
	var removed int64
	for id, rec := range m.records {
		if matches(rec, filter) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

// Query returns the closest records by cosine similarity.
func (m *Memory) Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	matchesOut := make([]Match, 0, len(m.records))
	for _, rec := range m.records {
		if !matches(rec, filter) {
			continue
		}
		matchesOut = append(matchesOut, Match{Record: rec, Score: cosine(vector, rec.Vector)})
	}
	sort.Slice(matchesOut, func(i, j int) bool {
		if matchesOut[i].Score != matchesOut[j].Score {
			return matchesOut[i].Score > matchesOut[j].Score
		}
		return matchesOut[i].ChunkIndex < matchesOut[j].ChunkIndex
	})
	if limit > 0 && len(matchesOut) > limit {
		matchesOut = matchesOut[:limit]
	}
	return matchesOut, nil
}

// FailDeletes makes the next n DeleteByMetadata calls fail.
func (m *Memory) FailDeletes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes = n
}

// FailDeletesFor makes the next n DeleteByMetadata calls filtered on
// contentID fail. Other content ids are unaffected.
func (m *Memory) FailDeletesFor(contentID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[contentID] = n
}

// DeleteCalls reports how many DeleteByMetadata calls were made.
func (m *Memory) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

// Count returns the number of records matching filter.
func (m *Memory) Count(filter Filter) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if matches(rec, filter) {
			n++
		}
	}
	return n
}

func matches(rec Record, filter Filter) bool {
	for key, want := range filter {
		var got string
		switch key {
		case KeyContentID:
			got = rec.ContentID
		case KeyChunkIndex:
			got = strconv.Itoa(rec.ChunkIndex)
		case KeyText:
			got = rec.Text
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// cosine maps cosine similarity onto [0, 1] like Weaviate's certainty.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return (1 + dot/(math.Sqrt(na)*math.Sqrt(nb))) / 2
}

var _ Store = (*Memory)(nil)
