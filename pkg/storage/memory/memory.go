// Package memory provides an in-memory storage.ReportStore for tests and
// single-run CLI use. Reports are lost when the process exits. Optional
// LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/sdvagent/pkg/api"
	"github.com/rhuss/sdvagent/pkg/storage"
)

// entry holds a stored report and its metadata.
type entry struct {
	report   *api.Report
	tenantID string
	lruElem  *list.Element
}

// Store is an in-memory ReportStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.ReportStore at compile time.
var _ storage.ReportStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit; otherwise the least recently used report is evicted when
// the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveReport stores a copy of the report.
func (s *Store) SaveReport(ctx context.Context, r *api.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[r.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	cp := *r
	s.entries[r.ID] = &entry{
		report:   &cp,
		tenantID: storage.GetTenant(ctx),
		lruElem:  s.lruList.PushFront(r.ID),
	}
	return nil
}

// GetReport returns a copy of the report and marks it recently used.
func (s *Store) GetReport(ctx context.Context, id string) (*api.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(ctx, id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	cp := *e.report
	return &cp, nil
}

// ListReports returns reports newest first, filtered by tenant and
// optionally by vehicle.
func (s *Store) ListReports(ctx context.Context, opts storage.ListOptions) ([]*api.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantID := storage.GetTenant(ctx)
	matches := []*api.Report{}
	for _, e := range s.entries {
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		if opts.VehicleID != "" && e.report.VehicleID != opts.VehicleID {
			continue
		}
		cp := *e.report
		matches = append(matches, &cp)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	if limit := opts.EffectiveLimit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteReport removes a report.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(ctx, id)
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored reports.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup applies tenant scoping. Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if tenantID := storage.GetTenant(ctx); tenantID != "" && e.tenantID != tenantID {
		return nil, false
	}
	return e, true
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
