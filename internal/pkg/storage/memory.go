package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vodeneev/footpredict/internal/model"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. Used by tests and the memory driver.
type MemoryStore struct {
	mu              sync.RWMutex
	closed          bool
	models          []*model.Model
	records         map[string]models.HistoricalRecord
	predictions     []models.Prediction
	predictionLimit int
}

func NewMemoryStore(predictionLimit int) *MemoryStore {
	if predictionLimit <= 0 {
		predictionLimit = 1000
	}
	return &MemoryStore{
		records:         make(map[string]models.HistoricalRecord),
		predictionLimit: predictionLimit,
	}
}

func (s *MemoryStore) SaveModel(ctx context.Context, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, existing := range s.models {
		if existing.Version == m.Version {
			return nil
		}
	}
	cp := *m
	s.models = append(s.models, &cp)
	return nil
}

func (s *MemoryStore) LatestModels(ctx context.Context) (map[enums.Target]*model.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[enums.Target]*model.Model)
	for _, m := range s.models {
		// later saves win ties, like seq DESC
		if cur, ok := out[m.Target]; !ok || !m.TrainedAt.Before(cur.TrainedAt) {
			out[m.Target] = m
		}
	}
	return out, nil
}

// ModelCount returns the number of saved model versions
func (s *MemoryStore) ModelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

func (s *MemoryStore) AppendRecords(ctx context.Context, records []models.HistoricalRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	inserted := 0
	for _, r := range records {
		if r.Fixture.Score == nil {
			continue
		}
		key := r.Fixture.Key()
		if _, ok := s.records[key]; ok {
			continue
		}
		s.records[key] = r
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) Records(ctx context.Context, since time.Time) ([]models.HistoricalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]models.HistoricalRecord, 0, len(s.records))
	for _, r := range s.records {
		if !since.IsZero() && r.Fixture.Kickoff.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Fixture.Kickoff, out[j].Fixture.Kickoff
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return out[i].Fixture.Key() < out[j].Fixture.Key()
	})
	return out, nil
}

func (s *MemoryStore) RecordCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.records), nil
}

func (s *MemoryStore) AppendPredictions(ctx context.Context, preds []models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.predictions = append(s.predictions, preds...)
	if over := len(s.predictions) - s.predictionLimit; over > 0 {
		s.predictions = append([]models.Prediction(nil), s.predictions[over:]...)
	}
	return nil
}

func (s *MemoryStore) RecentPredictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.Prediction, 0, limit)
	for i := len(s.predictions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.predictions[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
