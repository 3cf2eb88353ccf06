// Package analyzer orchestrates repository analysis: fetching pipelines and
// file trees from GitHub, running the pure analysis chain, and serving
// previews and applies of the resulting recommendations.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	"github.com/ternarybob/munio/internal/workflow"
)

// Service implements AnalyzerService
type Service struct {
	config    *common.Config
	connector interfaces.GitHubConnector
	templates interfaces.TemplateService
	cache     interfaces.CacheService
	events    interfaces.EventService
	runs      interfaces.RunStorage
	limiter   *rate.Limiter
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates a new analyzer service. The rate limiter bounds GitHub
// API pressure across all concurrent repository fetches.
func NewService(
	logger arbor.ILogger,
	config *common.Config,
	connector interfaces.GitHubConnector,
	templates interfaces.TemplateService,
	cache interfaces.CacheService,
	events interfaces.EventService,
	runs interfaces.RunStorage,
) *Service {
	interval := config.GitHubRateInterval()
	return &Service{
		config:    config,
		connector: connector,
		templates: templates,
		cache:     cache,
		events:    events,
		runs:      runs,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		validate:  validator.New(),
		logger:    logger,
	}
}

// Analyze runs a batch analysis across the requested repositories. Individual
// repository failures are recorded in the run; only validation problems fail
// the call itself. Cancelling ctx stops new fetches while letting in-flight
// repositories finish.
func (s *Service) Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.AnalysisRun, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid analyze request: %w", err)
	}

	fragments, err := s.templates.Fragments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load template catalog: %w", err)
	}

	run := &models.AnalysisRun{
		ID:        common.NewAnalysisID(),
		Status:    models.RunStatusRunning,
		Requested: len(req.Repositories),
		Results:   make([]workflow.Analysis, len(req.Repositories)),
		StartedAt: time.Now(),
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	s.events.Publish(models.ProgressEvent{
		Type:      "run_started",
		RunID:     run.ID,
		Requested: run.Requested,
	})

	concurrency := s.config.Analyzer.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	cancelled := false

	for i, repository := range req.Repositories {
		// Stop dispatching once the request is cancelled; repositories that
		// never started are marked rather than silently dropped.
		if ctx.Err() != nil {
			mu.Lock()
			cancelled = true
			run.Results[i] = workflow.Analysis{
				Repository:    repository,
				Failed:        true,
				FailureReason: "analysis cancelled before start",
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		idx, repo := i, repository
		common.SafeGo(s.logger, "analyzeRepository", func() {
			defer wg.Done()
			defer func() { <-sem }()

			analysis := s.analyzeOne(ctx, repo, fragments)

			mu.Lock()
			run.Results[idx] = analysis
			completed++
			done := completed
			mu.Unlock()

			eventType := "repo_completed"
			if analysis.Failed {
				eventType = "repo_failed"
			}
			s.events.Publish(models.ProgressEvent{
				Type:       eventType,
				RunID:      run.ID,
				Repository: repo,
				Completed:  done,
				Requested:  run.Requested,
				Message:    analysis.FailureReason,
			})
		})
	}

	wg.Wait()

	for _, result := range run.Results {
		if result.Failed {
			run.Failed++
		}
	}
	run.Completed = run.Requested - run.Failed
	run.Status = models.RunStatusCompleted
	if cancelled {
		run.Status = models.RunStatusCancelled
	}
	now := time.Now()
	run.FinishedAt = &now

	// Persist with a fresh context: the request context may already be done.
	if err := s.runs.SaveRun(context.Background(), run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to persist analysis run")
	}

	s.events.Publish(models.ProgressEvent{
		Type:      string("run_" + run.Status),
		RunID:     run.ID,
		Completed: run.Completed,
		Requested: run.Requested,
	})

	s.logger.Info().
		Str("run_id", run.ID).
		Int("requested", run.Requested).
		Int("failed", run.Failed).
		Str("status", string(run.Status)).
		Msg("Analysis run finished")

	return run, nil
}

// analyzeOne fetches one repository and runs the pure analysis chain on it.
// All failures are folded into the returned Analysis.
func (s *Service) analyzeOne(ctx context.Context, repository string, fragments []workflow.Fragment) workflow.Analysis {
	if cached, ok := s.cache.Get(repository); ok {
		s.logger.Debug().Str("repository", repository).Msg("Serving analysis from cache")
		return *cached
	}

	failure := func(format string, args ...interface{}) workflow.Analysis {
		return workflow.Analysis{
			Repository:    repository,
			Failed:        true,
			FailureReason: fmt.Sprintf(format, args...),
		}
	}

	owner, name, err := splitRepository(repository)
	if err != nil {
		return failure("%v", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout())
	defer cancel()

	if err := s.limiter.Wait(fetchCtx); err != nil {
		return failure("fetch aborted: %v", err)
	}
	repo, err := s.connector.GetRepo(fetchCtx, owner, name)
	if err != nil {
		return failure("failed to fetch repository: %v", err)
	}
	if repo.Archived {
		return failure("repository is archived")
	}
	ref := repo.DefaultBranch
	if ref == "" {
		ref = s.config.GitHub.DefaultBranch
	}

	if err := s.limiter.Wait(fetchCtx); err != nil {
		return failure("fetch aborted: %v", err)
	}
	paths, err := s.connector.ListTree(fetchCtx, owner, name, ref)
	if err != nil {
		return failure("failed to list repository tree: %v", err)
	}
	if max := s.config.Analyzer.MaxTreeSize; max > 0 && len(paths) > max {
		paths = paths[:max]
	}

	if err := s.limiter.Wait(fetchCtx); err != nil {
		return failure("fetch aborted: %v", err)
	}
	workflows, err := s.connector.ListWorkflows(fetchCtx, owner, name, ref)
	if err != nil {
		return failure("failed to fetch pipelines: %v", err)
	}

	analysis := workflow.Assemble(workflow.RepositoryInput{
		Repository: repository,
		Workflows:  workflows,
		FilePaths:  paths,
		Fragments:  fragments,
	})

	if !analysis.Failed {
		s.cache.Put(repository, &analysis)
	}
	return analysis
}

// GetRun returns a stored run by ID
func (s *Service) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns recent runs, newest first
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	return s.runs.ListRuns(ctx, limit)
}

// Preview merges one recommendation and returns the result with its diff.
// The target pipeline is re-fetched so the preview reflects the repository's
// current contents.
func (s *Service) Preview(ctx context.Context, req *models.PreviewRequest) (*models.PreviewResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid preview request: %w", err)
	}

	rec, frag, err := s.findRecommendation(ctx, req.RunID, req.RecommendationID)
	if err != nil {
		return nil, err
	}

	merged, diff, err := s.mergeRecommendation(ctx, rec, frag)
	if err != nil {
		return nil, err
	}

	return &models.PreviewResult{
		Repository: rec.Repository,
		TargetPath: rec.TargetPath,
		Content:    merged.Raw,
		Diff:       diff,
	}, nil
}

// Apply commits one recommendation to the repository on a new branch and
// opens a pull request for it.
func (s *Service) Apply(ctx context.Context, req *models.ApplyRequest) (*models.ApplyResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid apply request: %w", err)
	}

	rec, frag, err := s.findRecommendation(ctx, req.RunID, req.RecommendationID)
	if err != nil {
		return nil, err
	}

	merged, _, err := s.mergeRecommendation(ctx, rec, frag)
	if err != nil {
		return nil, err
	}

	owner, name, err := splitRepository(rec.Repository)
	if err != nil {
		return nil, err
	}

	base := req.BaseBranch
	if base == "" {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		repo, err := s.connector.GetRepo(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch repository: %w", err)
		}
		base = repo.DefaultBranch
		if base == "" {
			base = s.config.GitHub.DefaultBranch
		}
	}

	branch := fmt.Sprintf("%s-%s", s.config.GitHub.BranchPrefix, rec.FragmentID)
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := s.connector.ApplyChange(ctx, interfaces.ChangeSet{
		Owner:         owner,
		Repo:          name,
		BaseBranch:    base,
		NewBranch:     branch,
		Path:          rec.TargetPath,
		Content:       merged.Raw,
		CommitMessage: fmt.Sprintf("Add %s security scanning", rec.Category),
		PRTitle:       fmt.Sprintf("Add %s security scanning", rec.Category),
		PRBody:        rec.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply recommendation: %w", err)
	}

	// The repository changed; its cached analysis is stale.
	s.cache.Invalidate(rec.Repository)

	s.logger.Info().
		Str("repository", rec.Repository).
		Str("branch", result.Branch).
		Str("pr", result.PullRequestURL).
		Msg("Recommendation applied")

	return &models.ApplyResult{
		Repository:     rec.Repository,
		Branch:         result.Branch,
		CommitSHA:      result.CommitSHA,
		PullRequestURL: result.PullRequestURL,
		TargetPath:     rec.TargetPath,
	}, nil
}

// findRecommendation locates a recommendation inside a stored run and pairs
// it with its fragment, placeholder-filled for the run's decision. Fragments
// are rebuilt from the catalog because stored runs carry only the template
// reference.
func (s *Service) findRecommendation(ctx context.Context, runID, recommendationID string) (*workflow.Recommendation, workflow.Fragment, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, workflow.Fragment{}, err
	}

	for i := range run.Results {
		for j := range run.Results[i].Recommendations {
			rec := &run.Results[i].Recommendations[j]
			if rec.ID != recommendationID {
				continue
			}

			template, err := s.templates.Get(ctx, rec.FragmentID)
			if err != nil {
				return nil, workflow.Fragment{}, fmt.Errorf("template for recommendation no longer exists: %w", err)
			}
			frag := template.ToFragment()
			frag.Body = workflow.FillPlaceholders(frag.Body, rec.Decision)
			return rec, frag, nil
		}
	}
	return nil, workflow.Fragment{}, fmt.Errorf("recommendation not found: %s", recommendationID)
}

// mergeRecommendation re-fetches the target pipeline and merges the fragment
// at the recommendation's insertion point.
func (s *Service) mergeRecommendation(ctx context.Context, rec *workflow.Recommendation, frag workflow.Fragment) (*workflow.Document, workflow.Diff, error) {
	var doc *workflow.Document

	if rec.Point.Kind != workflow.InsertNewPipeline {
		owner, name, err := splitRepository(rec.Repository)
		if err != nil {
			return nil, workflow.Diff{}, err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, workflow.Diff{}, err
		}
		content, err := s.connector.GetFileContent(ctx, owner, name, "", rec.TargetPath)
		if err != nil {
			return nil, workflow.Diff{}, fmt.Errorf("failed to fetch pipeline %s: %w", rec.TargetPath, err)
		}
		doc, err = workflow.Parse(rec.TargetPath, content)
		if err != nil {
			return nil, workflow.Diff{}, fmt.Errorf("pipeline %s no longer parses: %w", rec.TargetPath, err)
		}
	}

	return workflow.Merge(doc, frag, rec.Point)
}

// splitRepository parses an "owner/name" repository reference.
func splitRepository(repository string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(repository), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", repository)
	}
	return parts[0], parts[1], nil
}

var _ interfaces.AnalyzerService = (*Service)(nil)
