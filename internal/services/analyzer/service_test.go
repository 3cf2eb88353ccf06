package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	"github.com/ternarybob/munio/internal/services/cache"
	"github.com/ternarybob/munio/internal/services/events"
	"github.com/ternarybob/munio/internal/workflow"
)

const buildPipeline = `name: CI
on: [push, pull_request]
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Build
        run: mvn package
`

// fakeConnector serves canned repository data keyed by "owner/name"
type fakeConnector struct {
	repos     map[string]*interfaces.RepoInfo
	trees     map[string][]string
	workflows map[string][]workflow.WorkflowFile
	applied   []interfaces.ChangeSet
	getCalls  int
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		repos:     make(map[string]*interfaces.RepoInfo),
		trees:     make(map[string][]string),
		workflows: make(map[string][]workflow.WorkflowFile),
	}
}

func (f *fakeConnector) addRepo(owner, name string, paths []string, files ...workflow.WorkflowFile) {
	key := owner + "/" + name
	f.repos[key] = &interfaces.RepoInfo{Owner: owner, Name: name, DefaultBranch: "main"}
	f.trees[key] = paths
	f.workflows[key] = files
}

func (f *fakeConnector) TestConnection(ctx context.Context) error { return nil }

func (f *fakeConnector) GetRepo(ctx context.Context, owner, repo string) (*interfaces.RepoInfo, error) {
	info, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, fmt.Errorf("repository not found: %s/%s", owner, repo)
	}
	return info, nil
}

func (f *fakeConnector) ListTree(ctx context.Context, owner, repo, ref string) ([]string, error) {
	return f.trees[owner+"/"+repo], nil
}

func (f *fakeConnector) ListWorkflows(ctx context.Context, owner, repo, ref string) ([]workflow.WorkflowFile, error) {
	return f.workflows[owner+"/"+repo], nil
}

func (f *fakeConnector) GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error) {
	f.getCalls++
	for _, wf := range f.workflows[owner+"/"+repo] {
		if wf.Path == path {
			return wf.Content, nil
		}
	}
	return "", fmt.Errorf("file not found: %s", path)
}

func (f *fakeConnector) ApplyChange(ctx context.Context, change interfaces.ChangeSet) (*interfaces.ChangeResult, error) {
	f.applied = append(f.applied, change)
	return &interfaces.ChangeResult{
		Branch:         change.NewBranch,
		CommitSHA:      "abc1234",
		PullRequestURL: fmt.Sprintf("https://github.com/%s/%s/pull/1", change.Owner, change.Repo),
	}, nil
}

// fakeRunStorage is an in-memory RunStorage
type fakeRunStorage struct {
	runs map[string]*models.AnalysisRun
}

func newFakeRunStorage() *fakeRunStorage {
	return &fakeRunStorage{runs: make(map[string]*models.AnalysisRun)}
}

func (f *fakeRunStorage) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeRunStorage) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRunStorage) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	out := make([]*models.AnalysisRun, 0, len(f.runs))
	for _, run := range f.runs {
		copied := *run
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeRunStorage) DeleteRun(ctx context.Context, id string) error {
	delete(f.runs, id)
	return nil
}

func (f *fakeRunStorage) DeleteRunsBefore(ctx context.Context, cutoffUnix int64) (int, error) {
	return 0, nil
}

// catalogService is a fixed template catalog standing in for TemplateService
type catalogService struct {
	templates map[string]*models.Template
}

func newCatalog(templates ...*models.Template) *catalogService {
	c := &catalogService{templates: make(map[string]*models.Template)}
	for _, t := range templates {
		c.templates[t.ID] = t
	}
	return c
}

func (c *catalogService) Create(ctx context.Context, template *models.Template) error { return nil }
func (c *catalogService) Update(ctx context.Context, template *models.Template) error { return nil }
func (c *catalogService) Delete(ctx context.Context, id string) error                 { return nil }

func (c *catalogService) Get(ctx context.Context, id string) (*models.Template, error) {
	template, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	return template, nil
}

func (c *catalogService) List(ctx context.Context, opts *interfaces.TemplateListOptions) ([]*models.Template, error) {
	out := make([]*models.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	return out, nil
}

func (c *catalogService) Fragments(ctx context.Context) ([]workflow.Fragment, error) {
	out := make([]workflow.Fragment, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t.ToFragment())
	}
	return out, nil
}

func (c *catalogService) SeedFromDir(ctx context.Context, dir string) (int, error) { return 0, nil }

func polarisStepTemplate() *models.Template {
	return &models.Template{
		ID:       "tmpl-polaris-step",
		Name:     "polaris-step",
		Kind:     models.TemplateKindStep,
		Category: "polaris",
		Body:     "- name: Polaris Scan\n  run: polaris analyze --types {assessment_types}\n",
		Metadata: models.TemplateMetadata{
			CompatibleLanguages: []string{"java"},
			RequiredSecrets:     []string{"POLARIS_ACCESS_TOKEN"},
			Priority:            10,
		},
	}
}

type fixture struct {
	svc       *Service
	connector *fakeConnector
	runs      *fakeRunStorage
	cache     interfaces.CacheService
	events    interfaces.EventService
}

func newFixture(t *testing.T, templates ...*models.Template) *fixture {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.GitHub.RateLimit = "1ms"
	cfg.Analyzer.Concurrency = 4

	connector := newFakeConnector()
	runs := newFakeRunStorage()
	cacheSvc := cache.NewService(logger, time.Minute, "0 */5 * * * *")
	eventSvc := events.NewService(logger, nil)
	t.Cleanup(func() { eventSvc.Close() })

	svc := NewService(logger, cfg, connector, newCatalog(templates...), cacheSvc, eventSvc, runs)
	return &fixture{svc: svc, connector: connector, runs: runs, cache: cacheSvc, events: eventSvc}
}

func TestAnalyzeProducesRecommendations(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml", "src/Main.java"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Completed)
	assert.Zero(t, run.Failed)
	require.NotNil(t, run.FinishedAt)

	require.Len(t, run.Results, 1)
	result := run.Results[0]
	assert.False(t, result.Failed)
	assert.True(t, result.Decision.StaticAnalysis)
	assert.True(t, result.Decision.CompositionAnalysis, "maven manifest implies dependency risk")
	assert.Equal(t, "java", result.Decision.PrimaryLanguage)
	assert.Equal(t, workflow.InsertAppendStep, result.Point.Kind)
	assert.Equal(t, "build", result.Point.TargetJob)

	require.Len(t, result.Recommendations, 1)
	rec := result.Recommendations[0]
	assert.Equal(t, "tmpl-polaris-step", rec.FragmentID)
	assert.True(t, rec.LanguageMatch)
	assert.Contains(t, rec.Fragment.Body, "SAST,SCA", "placeholder filled from the decision")

	// The finished run is persisted
	stored, err := f.svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
}

func TestAnalyzeRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid analyze request")
}

func TestAnalyzeRecordsPerRepositoryFailures(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)
	f.connector.repos["acme/attic"] = &interfaces.RepoInfo{Owner: "acme", Name: "attic", Archived: true}

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{
		Repositories: []string{"acme/widget", "acme/attic", "not-a-repo", "acme/missing"},
	})
	require.NoError(t, err, "repository failures never fail the run")

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Failed)
	assert.Equal(t, 1, run.Completed)

	byRepo := map[string]workflow.Analysis{}
	for _, result := range run.Results {
		byRepo[result.Repository] = result
	}
	assert.False(t, byRepo["acme/widget"].Failed)
	assert.Contains(t, byRepo["acme/attic"].FailureReason, "archived")
	assert.Contains(t, byRepo["not-a-repo"].FailureReason, "expected owner/name")
	assert.Contains(t, byRepo["acme/missing"].FailureReason, "failed to fetch repository")
}

func TestAnalyzeServesSecondRunFromCache(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)

	_, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)

	// Remove the repository from the fake; a cache hit never touches the API
	delete(f.connector.repos, "acme/widget")

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.False(t, run.Results[0].Failed)
}

func TestAnalyzeCancelledContextMarksUndispatchedRepositories(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.svc.Analyze(ctx, &models.AnalyzeRequest{Repositories: []string{"acme/one", "acme/two"}})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	for _, result := range run.Results {
		assert.True(t, result.Failed)
		assert.Contains(t, result.FailureReason, "cancelled")
	}
}

func TestAnalyzeReportsUnparseablePipeline(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "broken",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: "jobs: [unclosed\n"},
	)

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/broken"}})
	require.NoError(t, err)

	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].Failed)
	assert.Contains(t, run.Results[0].FailureReason, "failed to parse")
}

func TestPreviewMergesAgainstCurrentContent(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)
	rec := run.Results[0].Recommendations[0]

	preview, err := f.svc.Preview(context.Background(), &models.PreviewRequest{
		RunID:            run.ID,
		RecommendationID: rec.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "acme/widget", preview.Repository)
	assert.Equal(t, ".github/workflows/ci.yml", preview.TargetPath)
	assert.Contains(t, preview.Content, "Polaris Scan")
	assert.Contains(t, preview.Content, "SAST,SCA")
	assert.Greater(t, preview.Diff.InsertEnd, 0)
	assert.Positive(t, f.connector.getCalls, "preview re-fetches the target pipeline")
}

func TestPreviewUnknownRecommendation(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)

	_, err = f.svc.Preview(context.Background(), &models.PreviewRequest{
		RunID:            run.ID,
		RecommendationID: "acme/widget/no-such-fragment",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommendation not found")
}

func TestApplyCommitsBranchAndInvalidatesCache(t *testing.T) {
	f := newFixture(t, polarisStepTemplate())
	f.connector.addRepo("acme", "widget",
		[]string{"pom.xml"},
		workflow.WorkflowFile{Path: ".github/workflows/ci.yml", Content: buildPipeline},
	)

	run, err := f.svc.Analyze(context.Background(), &models.AnalyzeRequest{Repositories: []string{"acme/widget"}})
	require.NoError(t, err)
	rec := run.Results[0].Recommendations[0]

	result, err := f.svc.Apply(context.Background(), &models.ApplyRequest{
		RunID:            run.ID,
		RecommendationID: rec.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "acme/widget", result.Repository)
	assert.True(t, strings.HasPrefix(result.Branch, "munio/security-scan-"), "branch %q carries the configured prefix", result.Branch)
	assert.NotEmpty(t, result.CommitSHA)
	assert.Contains(t, result.PullRequestURL, "acme/widget")

	require.Len(t, f.connector.applied, 1)
	change := f.connector.applied[0]
	assert.Equal(t, "main", change.BaseBranch)
	assert.Equal(t, ".github/workflows/ci.yml", change.Path)
	assert.Contains(t, change.Content, "Polaris Scan")
	assert.Contains(t, change.CommitMessage, "polaris")

	_, cached := f.cache.Get("acme/widget")
	assert.False(t, cached, "applying a change invalidates the cached analysis")
}

func TestSplitRepository(t *testing.T) {
	owner, name, err := splitRepository(" acme/widget ")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", name)

	for _, bad := range []string{"", "acme", "/widget", "acme/", "a/b/c"} {
		_, _, err := splitRepository(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
