package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.AnalysisRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.AnalysisRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) DeleteRun(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.AnalysisRun{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// DeleteRunsBefore removes runs started before the cutoff, returning how many
// were dropped. Used by the scheduled cache sweep to bound disk usage.
func (s *RunStorage) DeleteRunsBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	cutoff := time.Unix(cutoffUnix, 0)

	var runs []models.AnalysisRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("StartedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find expired runs: %w", err)
	}

	deleted := 0
	for i := range runs {
		if err := s.db.Store().Delete(runs[i].ID, &models.AnalysisRun{}); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runs[i].ID).Msg("Failed to delete expired run")
			continue
		}
		deleted++
	}
	return deleted, nil
}
