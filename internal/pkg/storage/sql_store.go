package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Vodeneev/footpredict/internal/model"
	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// Ensure SQLStore implements Store
var _ Store = (*SQLStore)(nil)

// SQLStore stores models, records and predictions in PostgreSQL or SQLite
type SQLStore struct {
	db              *sql.DB
	driver          string
	predictionLimit int
}

// Open returns the store selected by cfg.Driver
func Open(cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(cfg.PredictionHistoryLimit), nil
	case "postgres", "sqlite":
		return NewSQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// NewSQLStore opens the database, checks the connection and creates the schema
func NewSQLStore(cfg *config.StorageConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s DSN is required", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// single writer
		db.SetMaxOpenConns(1)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	s := &SQLStore{db: db, driver: cfg.Driver, predictionLimit: cfg.PredictionHistoryLimit}
	if s.predictionLimit <= 0 {
		s.predictionLimit = 1000
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("SQL storage initialized", "driver", cfg.Driver)
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS models (
			seq ` + serial + `,
			target VARCHAR(50) NOT NULL,
			version VARCHAR(200) NOT NULL UNIQUE,
			schema_version VARCHAR(50) NOT NULL,
			trained_at_ms BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_models_target_trained ON models(target, trained_at_ms DESC)`,
		`CREATE TABLE IF NOT EXISTS historical_records (
			fixture_key VARCHAR(500) PRIMARY KEY,
			fixture_id VARCHAR(100) NOT NULL,
			home_team VARCHAR(200) NOT NULL,
			away_team VARCHAR(200) NOT NULL,
			competition VARCHAR(200) NOT NULL,
			kickoff_ms BIGINT NOT NULL,
			home_goals INTEGER NOT NULL,
			away_goals INTEGER NOT NULL,
			source VARCHAR(50) NOT NULL DEFAULT '',
			closing_odds TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historical_records_kickoff ON historical_records(kickoff_ms)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			seq ` + serial + `,
			id VARCHAR(100) NOT NULL,
			fixture_id VARCHAR(100) NOT NULL,
			target VARCHAR(50) NOT NULL,
			model_version VARCHAR(200) NOT NULL,
			created_at_ms BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return s.migrate(ctx)
}

// migrate adds columns introduced after a table was first created
func (s *SQLStore) migrate(ctx context.Context) error {
	if s.driver == "postgres" {
		_, err := s.db.ExecContext(ctx, `ALTER TABLE historical_records ADD COLUMN IF NOT EXISTS closing_odds TEXT NOT NULL DEFAULT ''`)
		return err
	}
	_, err := s.db.ExecContext(ctx, `ALTER TABLE historical_records ADD COLUMN closing_odds TEXT NOT NULL DEFAULT ''`)
	if err != nil && strings.Contains(err.Error(), "duplicate column") {
		return nil
	}
	return err
}

// rebind turns ? placeholders into $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveModel stores a model version
func (s *SQLStore) SaveModel(ctx context.Context, m *model.Model) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	query := s.rebind(`
	INSERT INTO models (target, version, schema_version, trained_at_ms, payload)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (version) DO NOTHING
	`)
	if _, err := s.db.ExecContext(ctx, query,
		string(m.Target),
		m.Version,
		m.SchemaVersion,
		m.TrainedAt.UnixMilli(),
		string(payload),
	); err != nil {
		return fmt.Errorf("failed to store model %s: %w", m.Version, err)
	}
	return nil
}

// LatestModels returns the newest model per target
func (s *SQLStore) LatestModels(ctx context.Context) (map[enums.Target]*model.Model, error) {
	query := s.rebind(`
	SELECT payload FROM models
	WHERE target = ?
	ORDER BY trained_at_ms DESC, seq DESC
	LIMIT 1
	`)

	out := make(map[enums.Target]*model.Model)
	for _, target := range enums.GetAllTargets() {
		var payload string
		err := s.db.QueryRowContext(ctx, query, string(target)).Scan(&payload)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load model for %s: %w", target, err)
		}
		var m model.Model
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("failed to decode model for %s: %w", target, err)
		}
		out[target] = &m
	}
	return out, nil
}

// AppendRecords inserts unseen records in one transaction
func (s *SQLStore) AppendRecords(ctx context.Context, records []models.HistoricalRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
	INSERT INTO historical_records (
		fixture_key, fixture_id, home_team, away_team, competition,
		kickoff_ms, home_goals, away_goals, source, closing_odds
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (fixture_key) DO NOTHING
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		f := r.Fixture
		if f.Score == nil {
			continue
		}
		var odds string
		if r.Odds != nil {
			payload, err := json.Marshal(r.Odds)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal odds for %s: %w", f.Key(), err)
			}
			odds = string(payload)
		}
		res, err := stmt.ExecContext(ctx,
			f.Key(),
			f.ID,
			f.HomeTeam,
			f.AwayTeam,
			f.Competition,
			f.Kickoff.UnixMilli(),
			f.Score.Home,
			f.Score.Away,
			f.Source,
			odds,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to store record %s: %w", f.Key(), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return inserted, nil
}

// Records returns records since a point in time, oldest first
func (s *SQLStore) Records(ctx context.Context, since time.Time) ([]models.HistoricalRecord, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
	SELECT fixture_id, home_team, away_team, competition, kickoff_ms, home_goals, away_goals, source, closing_odds
	FROM historical_records
	WHERE kickoff_ms >= ?
	ORDER BY kickoff_ms ASC, fixture_key ASC
	`), sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.HistoricalRecord
	for rows.Next() {
		var f models.Fixture
		var kickoffMs int64
		var score models.Score
		var odds string
		if err := rows.Scan(&f.ID, &f.HomeTeam, &f.AwayTeam, &f.Competition, &kickoffMs, &score.Home, &score.Away, &f.Source, &odds); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		f.Kickoff = time.UnixMilli(kickoffMs).UTC()
		f.Status = models.StatusFinished
		f.Score = &score
		r, ok := models.NewHistoricalRecord(f)
		if !ok {
			continue
		}
		if odds != "" {
			var q models.OddsQuote
			if err := json.Unmarshal([]byte(odds), &q); err != nil {
				return nil, fmt.Errorf("failed to decode odds for %s: %w", f.Key(), err)
			}
			r.Odds = &q
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordCount returns the number of stored records
func (s *SQLStore) RecordCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM historical_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// AppendPredictions stores predictions and trims the log to the configured limit
func (s *SQLStore) AppendPredictions(ctx context.Context, preds []models.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := s.rebind(`
	INSERT INTO predictions (id, fixture_id, target, model_version, created_at_ms, payload)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	for _, p := range preds {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal prediction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			p.ID,
			p.FixtureID,
			string(p.Target),
			p.ModelVersion,
			p.CreatedAt.UnixMilli(),
			string(payload),
		); err != nil {
			return fmt.Errorf("failed to store prediction %s: %w", p.ID, err)
		}
	}

	trim := s.rebind(`
	DELETE FROM predictions
	WHERE seq <= (SELECT MAX(seq) FROM predictions) - ?
	`)
	if _, err := tx.ExecContext(ctx, trim, s.predictionLimit); err != nil {
		return fmt.Errorf("failed to trim prediction log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit predictions: %w", err)
	}
	return nil
}

// RecentPredictions returns the newest predictions first
func (s *SQLStore) RecentPredictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
	SELECT payload FROM predictions
	ORDER BY seq DESC
	LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		var p models.Prediction
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
