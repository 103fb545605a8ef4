package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
)

// MemoryStore is an in-process RecordStore for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*models.Recording
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*models.Recording)}
}

func (s *MemoryStore) Ping(_ context.Context) error  { return nil }
func (s *MemoryStore) Close(_ context.Context) error { return nil }

func (s *MemoryStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[rec.ID]; ok {
		return ErrDuplicateKey
	}
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRecording(_ context.Context, id string) (*models.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ApplyUpdate(_ context.Context, id string, u models.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return ErrNotFound
	}
	if !models.CanTransition(rec.Status, u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, u.Status)
	}
	cp := *rec
	u.Apply(&cp, time.Now().UTC())
	s.recs[id] = &cp
	return nil
}

var _ RecordStore = (*MemoryStore)(nil)
