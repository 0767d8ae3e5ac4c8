package moderation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orgmap.org/internal/directory"
)

// RecordStore persists update-request records. Rows are append-only except
// for status transitions; nothing here deletes.
type RecordStore interface {
	Append(ctx context.Context, rec *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	// List returns records filtered by status (empty status means all),
	// newest first.
	List(ctx context.Context, status Status, limit int) ([]*Record, error)
	// Transition moves a record from one status to another. The current
	// status must equal from; otherwise ErrConflict is returned and nothing
	// changes, which also covers two moderators racing on the same record.
	Transition(ctx context.Context, id string, from, to Status) error
}

// InMemoryRecords implements RecordStore for tests and single-node use.
type InMemoryRecords struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

func NewInMemoryRecords() *InMemoryRecords {
	return &InMemoryRecords{recs: make(map[string]*Record)}
}

func (s *InMemoryRecords) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.ID]; exists {
		return fmt.Errorf("%w: request %s already recorded", directory.ErrConflict, rec.ID)
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *InMemoryRecords) Find(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", directory.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryRecords) List(ctx context.Context, status Status, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.recs {
		if status != "" && rec.Status != status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryRecords) Transition(ctx context.Context, id string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return fmt.Errorf("%w: request %s", directory.ErrNotFound, id)
	}
	if rec.Status != from {
		return fmt.Errorf("%w: request %s is %s, not %s", directory.ErrConflict, id, rec.Status, from)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
