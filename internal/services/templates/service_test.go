package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	"github.com/ternarybob/munio/internal/workflow"
)

// memoryTemplateStorage is an in-memory TemplateStorage for tests
type memoryTemplateStorage struct {
	templates map[string]*models.Template
}

func newMemoryTemplateStorage() *memoryTemplateStorage {
	return &memoryTemplateStorage{templates: make(map[string]*models.Template)}
}

func (m *memoryTemplateStorage) SaveTemplate(ctx context.Context, template *models.Template) error {
	copied := *template
	m.templates[template.ID] = &copied
	return nil
}

func (m *memoryTemplateStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	template, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	copied := *template
	return &copied, nil
}

func (m *memoryTemplateStorage) GetTemplateByName(ctx context.Context, name string) (*models.Template, error) {
	for _, template := range m.templates {
		if template.Name == name {
			copied := *template
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("template not found: %s", name)
}

func (m *memoryTemplateStorage) ListTemplates(ctx context.Context, opts *interfaces.TemplateListOptions) ([]*models.Template, error) {
	out := make([]*models.Template, 0, len(m.templates))
	for _, template := range m.templates {
		if opts != nil {
			if opts.Kind != "" && template.Kind != opts.Kind {
				continue
			}
			if opts.Category != "" && template.Category != opts.Category {
				continue
			}
		}
		copied := *template
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memoryTemplateStorage) DeleteTemplate(ctx context.Context, id string) error {
	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("template not found: %s", id)
	}
	delete(m.templates, id)
	return nil
}

func (m *memoryTemplateStorage) CountTemplates(ctx context.Context) (int, error) {
	return len(m.templates), nil
}

func stepTemplate() *models.Template {
	return &models.Template{
		Name:     "polaris-step",
		Kind:     models.TemplateKindStep,
		Category: "Polaris",
		Body:     "- name: Polaris Scan\n  run: polaris analyze --types {assessment_types}\n",
		Metadata: models.TemplateMetadata{Priority: 10},
	}
}

func TestCreateAssignsIDAndNormalizesCategory(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	ctx := context.Background()

	template := stepTemplate()
	require.NoError(t, svc.Create(ctx, template))

	assert.NotEmpty(t, template.ID)
	assert.Equal(t, "polaris", template.Category, "category is lowercased")
}

func TestCreateRejectsMissingFields(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	ctx := context.Background()

	template := stepTemplate()
	template.Body = ""
	assert.Error(t, svc.Create(ctx, template))

	template = stepTemplate()
	template.Category = ""
	assert.Error(t, svc.Create(ctx, template))
}

func TestCreateRejectsBodyThatDoesNotMerge(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	ctx := context.Background()

	// A body that is not valid YAML must be refused at write time, not at
	// recommendation time.
	template := stepTemplate()
	template.Body = "- name: Polaris Scan\n  with: [unclosed\n"
	err := svc.Create(ctx, template)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not merge")
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, stepTemplate()))

	dup := stepTemplate()
	err := svc.Create(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestUpdatePreservesBuiltInFlag(t *testing.T) {
	storage := newMemoryTemplateStorage()
	svc := NewService(arbor.NewLogger(), storage)
	ctx := context.Background()

	template := stepTemplate()
	require.NoError(t, svc.Create(ctx, template))

	stored := storage.templates[template.ID]
	stored.BuiltIn = true

	edited := stepTemplate()
	edited.ID = template.ID
	edited.Description = "edited"
	edited.BuiltIn = false
	require.NoError(t, svc.Update(ctx, edited))

	assert.True(t, edited.BuiltIn, "update cannot clear the built-in flag")
}

func TestDeleteProtectsBuiltIns(t *testing.T) {
	storage := newMemoryTemplateStorage()
	svc := NewService(arbor.NewLogger(), storage)
	ctx := context.Background()

	template := stepTemplate()
	require.NoError(t, svc.Create(ctx, template))
	storage.templates[template.ID].BuiltIn = true

	err := svc.Delete(ctx, template.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be deleted")

	storage.templates[template.ID].BuiltIn = false
	assert.NoError(t, svc.Delete(ctx, template.ID))
}

func TestFragmentsConvertsWholeCatalog(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	ctx := context.Background()

	template := stepTemplate()
	require.NoError(t, svc.Create(ctx, template))

	fragments, err := svc.Fragments(ctx)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, template.ID, fragments[0].ID)
	assert.Equal(t, workflow.FragmentStep, fragments[0].Kind)
	assert.Equal(t, 10, fragments[0].Priority)
}

func TestSeedFromDirLoadsBuiltIns(t *testing.T) {
	storage := newMemoryTemplateStorage()
	svc := NewService(arbor.NewLogger(), storage)
	ctx := context.Background()

	dir := t.TempDir()
	seed := `name = "seeded-step"
description = "Seeded scan step"
kind = "step"
category = "polaris"
body = '''
- name: Polaris Scan
  run: polaris analyze
'''

[metadata]
priority = 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seeded-step.toml"), []byte(seed), 0644))

	count, err := svc.SeedFromDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	template, err := storage.GetTemplateByName(ctx, "seeded-step")
	require.NoError(t, err)
	assert.True(t, template.BuiltIn)
	assert.Equal(t, 7, template.Metadata.Priority)

	// Reseeding refreshes in place rather than duplicating
	count, err = svc.SeedFromDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	total, _ := storage.CountTemplates(ctx)
	assert.Equal(t, 1, total)
}

func TestSeedFromMissingDirIsNotAnError(t *testing.T) {
	svc := NewService(arbor.NewLogger(), newMemoryTemplateStorage())
	count, err := svc.SeedFromDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, count)
}
