package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	"github.com/ternarybob/munio/internal/workflow"
)

// fakeTemplateService is a map-backed TemplateService
type fakeTemplateService struct {
	templates map[string]*models.Template
	listOpts  *interfaces.TemplateListOptions
}

func newFakeTemplateService() *fakeTemplateService {
	return &fakeTemplateService{templates: make(map[string]*models.Template)}
}

func (f *fakeTemplateService) Create(ctx context.Context, template *models.Template) error {
	if template.Body == "" {
		return fmt.Errorf("template body is required")
	}
	template.ID = fmt.Sprintf("tmpl_%d", len(f.templates)+1)
	f.templates[template.ID] = template
	return nil
}

func (f *fakeTemplateService) Update(ctx context.Context, template *models.Template) error {
	if _, ok := f.templates[template.ID]; !ok {
		return fmt.Errorf("template not found: %s", template.ID)
	}
	f.templates[template.ID] = template
	return nil
}

func (f *fakeTemplateService) Get(ctx context.Context, id string) (*models.Template, error) {
	template, ok := f.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	return template, nil
}

func (f *fakeTemplateService) List(ctx context.Context, opts *interfaces.TemplateListOptions) ([]*models.Template, error) {
	f.listOpts = opts
	out := make([]*models.Template, 0, len(f.templates))
	for _, t := range f.templates {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTemplateService) Delete(ctx context.Context, id string) error {
	if _, ok := f.templates[id]; !ok {
		return fmt.Errorf("template not found: %s", id)
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeTemplateService) Fragments(ctx context.Context) ([]workflow.Fragment, error) {
	return nil, nil
}

func (f *fakeTemplateService) SeedFromDir(ctx context.Context, dir string) (int, error) {
	return 0, nil
}

// fakeSecretService stores plaintext values directly; encryption is the real
// service's concern, not the handler's
type fakeSecretService struct {
	secrets map[string]*models.Secret
	values  map[string]string
}

func newFakeSecretService() *fakeSecretService {
	return &fakeSecretService{
		secrets: make(map[string]*models.Secret),
		values:  make(map[string]string),
	}
}

func (f *fakeSecretService) Create(ctx context.Context, name, description, value string) (*models.Secret, error) {
	if name == "" || value == "" {
		return nil, fmt.Errorf("name and value are required")
	}
	secret := &models.Secret{
		ID:          fmt.Sprintf("sec_%d", len(f.secrets)+1),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
	f.secrets[secret.ID] = secret
	f.values[secret.ID] = value
	return secret, nil
}

func (f *fakeSecretService) Update(ctx context.Context, id, description, value string) (*models.Secret, error) {
	secret, ok := f.secrets[id]
	if !ok {
		return nil, fmt.Errorf("secret not found: %s", id)
	}
	secret.Description = description
	if value != "" {
		f.values[id] = value
	}
	return secret, nil
}

func (f *fakeSecretService) Get(ctx context.Context, id string) (*models.Secret, error) {
	secret, ok := f.secrets[id]
	if !ok {
		return nil, fmt.Errorf("secret not found: %s", id)
	}
	return secret, nil
}

func (f *fakeSecretService) List(ctx context.Context) ([]models.SecretSummary, error) {
	out := make([]models.SecretSummary, 0, len(f.secrets))
	for _, s := range f.secrets {
		out = append(out, s.Summary())
	}
	return out, nil
}

func (f *fakeSecretService) Delete(ctx context.Context, id string) error {
	if _, ok := f.secrets[id]; !ok {
		return fmt.Errorf("secret not found: %s", id)
	}
	delete(f.secrets, id)
	delete(f.values, id)
	return nil
}

func (f *fakeSecretService) Decrypt(ctx context.Context, id string) (string, error) {
	value, ok := f.values[id]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", id)
	}
	return value, nil
}

// fakeAnalyzerService returns canned results
type fakeAnalyzerService struct {
	run        *models.AnalysisRun
	analyzeErr error
	listLimit  int
}

func (f *fakeAnalyzerService) Analyze(ctx context.Context, req *models.AnalyzeRequest) (*models.AnalysisRun, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.run, nil
}

func (f *fakeAnalyzerService) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	if f.run == nil || f.run.ID != id {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return f.run, nil
}

func (f *fakeAnalyzerService) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	f.listLimit = limit
	if f.run == nil {
		return nil, nil
	}
	return []*models.AnalysisRun{f.run}, nil
}

func (f *fakeAnalyzerService) Preview(ctx context.Context, req *models.PreviewRequest) (*models.PreviewResult, error) {
	return &models.PreviewResult{Repository: "acme/widget", Content: "merged"}, nil
}

func (f *fakeAnalyzerService) Apply(ctx context.Context, req *models.ApplyRequest) (*models.ApplyResult, error) {
	return &models.ApplyResult{Repository: "acme/widget", Branch: "munio/security-scan-x"}, nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTemplateCreateAndGet(t *testing.T) {
	handler := NewTemplateHandler(newFakeTemplateService(), arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/templates", strings.NewReader(
		`{"name":"polaris-step","kind":"step","category":"polaris","body":"- run: polaris analyze"}`))
	handler.CreateHandler(w, r)
	require.Equal(t, 201, w.Code, w.Body.String())

	created := decodeBody(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/templates/"+id, nil)
	handler.GetHandler(w, r)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "polaris-step", decodeBody(t, w)["name"])
}

func TestTemplateCreateRejectsBadKind(t *testing.T) {
	handler := NewTemplateHandler(newFakeTemplateService(), arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/templates", strings.NewReader(
		`{"name":"x","kind":"pipeline","category":"polaris","body":"y"}`))
	handler.CreateHandler(w, r)
	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "invalid template kind")
}

func TestTemplateListParsesQueryOptions(t *testing.T) {
	svc := newFakeTemplateService()
	handler := NewTemplateHandler(svc, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/templates?kind=step&category=Polaris&limit=5&offset=2", nil)
	handler.ListHandler(w, r)
	require.Equal(t, 200, w.Code)

	require.NotNil(t, svc.listOpts)
	assert.Equal(t, models.TemplateKindStep, svc.listOpts.Kind)
	assert.Equal(t, "polaris", svc.listOpts.Category)
	assert.Equal(t, 5, svc.listOpts.Limit)
	assert.Equal(t, 2, svc.listOpts.Offset)

	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/templates?kind=bogus", nil)
	handler.ListHandler(w, r)
	assert.Equal(t, 400, w.Code)
}

func TestTemplateGetMissing(t *testing.T) {
	handler := NewTemplateHandler(newFakeTemplateService(), arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/templates/absent", nil)
	handler.GetHandler(w, r)
	assert.Equal(t, 404, w.Code)
}

func TestSecretCreateNeverEchoesValue(t *testing.T) {
	handler := NewSecretHandler(newFakeSecretService(), arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/secrets", strings.NewReader(
		`{"name":"polaris-token","description":"scan token","value":"tok-12345"}`))
	handler.CreateHandler(w, r)
	require.Equal(t, 201, w.Code, w.Body.String())

	assert.NotContains(t, w.Body.String(), "tok-12345")
	assert.Equal(t, "polaris-token", decodeBody(t, w)["name"])
}

func TestSecretDecryptRoute(t *testing.T) {
	svc := newFakeSecretService()
	handler := NewSecretHandler(svc, arbor.NewLogger())

	secret, err := svc.Create(context.Background(), "polaris-token", "", "tok-12345")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/secrets/"+secret.ID+"/decrypt", nil)
	handler.GetHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "tok-12345", decodeBody(t, w)["value"])

	// The plain GET of the same secret stays value-free
	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/secrets/"+secret.ID, nil)
	handler.GetHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.NotContains(t, w.Body.String(), "tok-12345")
}

func TestSecretDeleteMissing(t *testing.T) {
	handler := NewSecretHandler(newFakeSecretService(), arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("DELETE", "/api/secrets/absent", nil)
	handler.DeleteHandler(w, r)
	assert.Equal(t, 400, w.Code)
}

func TestAnalyzeHandler(t *testing.T) {
	run := &models.AnalysisRun{ID: "run_1", Status: models.RunStatusCompleted, Requested: 1}
	handler := NewAnalysisHandler(&fakeAnalyzerService{run: run}, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(`{"repositories":["acme/widget"]}`))
	handler.AnalyzeHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "run_1", decodeBody(t, w)["id"])
}

func TestAnalyzeHandlerBadRequest(t *testing.T) {
	handler := NewAnalysisHandler(&fakeAnalyzerService{analyzeErr: fmt.Errorf("invalid analyze request")}, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(`{"repositories":[]}`))
	handler.AnalyzeHandler(w, r)
	assert.Equal(t, 400, w.Code)
}

func TestListRunsDefaultLimit(t *testing.T) {
	svc := &fakeAnalyzerService{}
	handler := NewAnalysisHandler(svc, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/runs", nil)
	handler.ListRunsHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, 20, svc.listLimit)

	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/runs?limit=5", nil)
	handler.ListRunsHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, 5, svc.listLimit)
}

func TestGetRunMissing(t *testing.T) {
	handler := NewAnalysisHandler(&fakeAnalyzerService{}, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/runs/absent", nil)
	handler.GetRunHandler(w, r)
	assert.Equal(t, 404, w.Code)
}

func TestPreviewHandler(t *testing.T) {
	handler := NewAnalysisHandler(&fakeAnalyzerService{}, arbor.NewLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/preview", strings.NewReader(
		`{"run_id":"run_1","recommendation_id":"acme/widget/tmpl_1"}`))
	handler.PreviewHandler(w, r)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "merged", decodeBody(t, w)["content"])
}
