// Package templates manages the scan template catalog.
package templates

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
	badgerstore "github.com/ternarybob/munio/internal/storage/badger"
	"github.com/ternarybob/munio/internal/workflow"
)

// Service implements TemplateService
type Service struct {
	storage  interfaces.TemplateStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a new template service
func NewService(logger arbor.ILogger, storage interfaces.TemplateStorage) *Service {
	return &Service{
		storage:  storage,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create validates and stores a new template. The body must be parseable as a
// fragment of the declared kind before it is accepted.
func (s *Service) Create(ctx context.Context, template *models.Template) error {
	if template.ID == "" {
		template.ID = common.NewTemplateID()
	}
	template.Category = strings.ToLower(strings.TrimSpace(template.Category))

	if err := s.validate.Struct(template); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	if err := s.checkBody(template); err != nil {
		return err
	}

	if existing, err := s.storage.GetTemplateByName(ctx, template.Name); err == nil && existing != nil && existing.ID != template.ID {
		return fmt.Errorf("template %q already exists", template.Name)
	}

	if err := s.storage.SaveTemplate(ctx, template); err != nil {
		return err
	}

	s.logger.Info().Str("template_id", template.ID).Str("kind", string(template.Kind)).Msg("Template created")
	return nil
}

// Update validates and stores changes to an existing template
func (s *Service) Update(ctx context.Context, template *models.Template) error {
	existing, err := s.storage.GetTemplate(ctx, template.ID)
	if err != nil {
		return err
	}

	template.BuiltIn = existing.BuiltIn
	template.CreatedAt = existing.CreatedAt
	template.Category = strings.ToLower(strings.TrimSpace(template.Category))

	if err := s.validate.Struct(template); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	if err := s.checkBody(template); err != nil {
		return err
	}

	if err := s.storage.SaveTemplate(ctx, template); err != nil {
		return err
	}

	s.logger.Info().Str("template_id", template.ID).Msg("Template updated")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Template, error) {
	return s.storage.GetTemplate(ctx, id)
}

func (s *Service) List(ctx context.Context, opts *interfaces.TemplateListOptions) ([]*models.Template, error) {
	return s.storage.ListTemplates(ctx, opts)
}

// Delete removes a template. Built-in templates are protected; they would
// reappear on the next seed pass anyway.
func (s *Service) Delete(ctx context.Context, id string) error {
	template, err := s.storage.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if template.BuiltIn {
		return fmt.Errorf("built-in template %q cannot be deleted", template.Name)
	}

	if err := s.storage.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("template_id", id).Msg("Template deleted")
	return nil
}

// Fragments returns the whole catalog converted to analyzer fragments.
func (s *Service) Fragments(ctx context.Context) ([]workflow.Fragment, error) {
	templates, err := s.storage.ListTemplates(ctx, nil)
	if err != nil {
		return nil, err
	}

	fragments := make([]workflow.Fragment, len(templates))
	for i, template := range templates {
		fragments[i] = template.ToFragment()
	}
	return fragments, nil
}

// SeedFromDir loads built-in templates from TOML files in dir.
func (s *Service) SeedFromDir(ctx context.Context, dir string) (int, error) {
	return badgerstore.LoadTemplatesFromFiles(ctx, s.storage, dir, s.logger)
}

// checkBody verifies the template body merges cleanly as its declared kind,
// using a scratch document for job and step bodies.
func (s *Service) checkBody(template *models.Template) error {
	frag := template.ToFragment()
	frag.Body = workflow.FillPlaceholders(frag.Body, workflow.Decision{StaticAnalysis: true, CompositionAnalysis: true})

	var err error
	switch template.Kind {
	case models.TemplateKindWorkflow:
		_, _, err = workflow.Merge(nil, frag, workflow.InsertionPoint{Kind: workflow.InsertNewPipeline})
	case models.TemplateKindJob:
		doc := scratchDocument()
		_, _, err = workflow.Merge(doc, frag, workflow.InsertionPoint{Kind: workflow.InsertAppendJob, AfterJob: "build"})
	case models.TemplateKindStep:
		doc := scratchDocument()
		_, _, err = workflow.Merge(doc, frag, workflow.InsertionPoint{Kind: workflow.InsertAppendStep, TargetJob: "build"})
	}
	if err != nil {
		return fmt.Errorf("template body does not merge as %s: %w", template.Kind, err)
	}
	return nil
}

func scratchDocument() *workflow.Document {
	doc, _ := workflow.Parse("scratch.yml", `jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo build
`)
	return doc
}

var _ interfaces.TemplateService = (*Service)(nil)
