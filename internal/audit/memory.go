package audit

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/apimplane/apim/internal/model"
)

// MemoryStore keeps audit entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, entry *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	if entry.Properties != nil {
		e.Properties = make(map[string]string, len(entry.Properties))
		for k, v := range entry.Properties {
			e.Properties[k] = v
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, q model.AuditQuery) ([]*model.AuditEntry, int, error) {
	if q.ReferenceID == "" || q.ReferenceType == "" {
		return nil, 0, ErrInvalidQuery
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.AuditEntry
	for i := range s.entries {
		e := s.entries[i]
		if e.ReferenceType != q.ReferenceType || e.ReferenceID != q.ReferenceID {
			continue
		}
		if len(q.Events) > 0 && !slices.Contains(q.Events, e.Event) {
			continue
		}
		if q.From != nil && e.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && e.CreatedAt.After(*q.To) {
			continue
		}
		matched = append(matched, &e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, size := normalizePage(q)
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := min(start+size, total)
	return matched[start:end], total, nil
}

// All returns every recorded entry in insertion order.
func (s *MemoryStore) All() []model.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}
