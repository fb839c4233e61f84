package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Vodeneev/footpredict/internal/model"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage: store is closed")

// ModelStore persists trained models across restarts
type ModelStore interface {
	// SaveModel stores a model version; saving the same version twice is a no-op
	SaveModel(ctx context.Context, m *model.Model) error

	// LatestModels returns the most recently trained model per target
	LatestModels(ctx context.Context) (map[enums.Target]*model.Model, error)
}

// RecordStore is the append-only store of finished fixtures used for training
type RecordStore interface {
	// AppendRecords inserts records not seen before (by fixture identity)
	// and returns how many were new
	AppendRecords(ctx context.Context, records []models.HistoricalRecord) (int, error)

	// Records returns records with kickoff at or after since, oldest first
	Records(ctx context.Context, since time.Time) ([]models.HistoricalRecord, error)

	// RecordCount returns the total number of stored records
	RecordCount(ctx context.Context) (int, error)
}

// PredictionLog keeps a bounded history of produced predictions
type PredictionLog interface {
	// AppendPredictions stores predictions, dropping the oldest beyond the configured limit
	AppendPredictions(ctx context.Context, preds []models.Prediction) error

	// RecentPredictions returns up to limit predictions, newest first
	RecentPredictions(ctx context.Context, limit int) ([]models.Prediction, error)
}

// Store groups everything the engine persists
type Store interface {
	ModelStore
	RecordStore
	PredictionLog

	// Close closes the database connection
	Close() error
}
