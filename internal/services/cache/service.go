// Package cache holds recent analysis results so repeated requests for the
// same repository skip the GitHub round trips.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/workflow"
)

type entry struct {
	analysis *workflow.Analysis
	expires  time.Time
}

// Service implements CacheService with an in-memory TTL map and a scheduled
// sweep of expired entries.
type Service struct {
	entries  map[string]entry
	ttl      time.Duration
	schedule string
	mu       sync.RWMutex
	cron     *cron.Cron
	logger   arbor.ILogger
}

// NewService creates a new cache service. schedule is a cron expression with
// seconds for the background sweep.
func NewService(logger arbor.ILogger, ttl time.Duration, schedule string) *Service {
	return &Service{
		entries:  make(map[string]entry),
		ttl:      ttl,
		schedule: schedule,
		logger:   logger,
	}
}

// Get returns the cached analysis for a repository if it has not expired.
func (s *Service) Get(repository string) (*workflow.Analysis, bool) {
	s.mu.RLock()
	e, ok := s.entries[repository]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.analysis, true
}

// Put stores an analysis result with the configured TTL.
func (s *Service) Put(repository string, analysis *workflow.Analysis) {
	s.mu.Lock()
	s.entries[repository] = entry{
		analysis: analysis,
		expires:  time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
}

// Invalidate drops a repository's cached analysis. Called after an applied
// recommendation changes the repository.
func (s *Service) Invalidate(repository string) {
	s.mu.Lock()
	delete(s.entries, repository)
	s.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Service) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for repo, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, repo)
			removed++
		}
	}
	return removed
}

// Start begins the scheduled background sweep.
func (s *Service) Start() error {
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(s.schedule, func() {
		if removed := s.Sweep(); removed > 0 {
			s.logger.Debug().Int("removed", removed).Msg("Swept expired cache entries")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cache sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", s.schedule).Dur("ttl", s.ttl).Msg("Analysis cache started")
	return nil
}

// Stop halts the background sweep.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

var _ interfaces.CacheService = (*Service)(nil)
