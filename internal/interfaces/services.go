package interfaces

import (
	"context"

	"github.com/ternarybob/munio/internal/models"
	"github.com/ternarybob/munio/internal/workflow"
)

// TemplateService manages the scan template catalog
type TemplateService interface {
	Create(ctx context.Context, template *models.Template) error
	Update(ctx context.Context, template *models.Template) error
	Get(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context, opts *TemplateListOptions) ([]*models.Template, error)
	Delete(ctx context.Context, id string) error

	// Fragments returns the whole catalog converted to analyzer fragments
	Fragments(ctx context.Context) ([]workflow.Fragment, error)

	// SeedFromDir loads built-in templates from TOML files, inserting any that
	// are missing and refreshing existing built-ins
	SeedFromDir(ctx context.Context, dir string) (int, error)
}

// SecretService manages encrypted secrets
type SecretService interface {
	Create(ctx context.Context, name, description, value string) (*models.Secret, error)
	Update(ctx context.Context, id, description, value string) (*models.Secret, error)
	Get(ctx context.Context, id string) (*models.Secret, error)
	List(ctx context.Context) ([]models.SecretSummary, error)
	Delete(ctx context.Context, id string) error

	// Decrypt returns the plaintext value of a secret
	Decrypt(ctx context.Context, id string) (string, error)
}

// AnalyzerService runs repository analyses and serves their results
type AnalyzerService interface {
	// Analyze runs a batch analysis and blocks until it completes or ctx is
	// cancelled. Cancellation stops new fetches; in-flight repositories finish.
	Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.AnalysisRun, error)

	// GetRun returns a stored run by ID
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)

	// ListRuns returns recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error)

	// Preview merges one recommendation and returns the result with its diff
	Preview(ctx context.Context, req *models.PreviewRequest) (*models.PreviewResult, error)

	// Apply commits one recommendation to the repository via branch and PR
	Apply(ctx context.Context, req *models.ApplyRequest) (*models.ApplyResult, error)
}

// CacheService caches analysis results with a TTL
type CacheService interface {
	// Get returns the cached analysis for a repository, or false when absent
	// or expired
	Get(repository string) (*workflow.Analysis, bool)

	// Put stores an analysis result
	Put(repository string, analysis *workflow.Analysis)

	// Invalidate drops a repository's cached analysis
	Invalidate(repository string)

	// Sweep removes expired entries and returns how many were dropped
	Sweep() int

	// Start begins the scheduled background sweep; Stop halts it
	Start() error
	Stop()
}

// EventService broadcasts analysis progress events to websocket subscribers
type EventService interface {
	// Publish sends an event to all current subscribers without blocking
	Publish(event models.ProgressEvent)

	// Subscribe registers a new subscriber channel and returns an unsubscribe
	// function
	Subscribe() (<-chan models.ProgressEvent, func())

	// Close shuts down the event service
	Close() error
}
