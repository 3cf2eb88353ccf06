package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/munio/internal/workflow"
)

// TemplateKind describes the shape of a template body and where it can be
// inserted into a pipeline.
type TemplateKind string

const (
	// TemplateKindWorkflow is a complete pipeline file
	TemplateKindWorkflow TemplateKind = "workflow"
	// TemplateKindJob is a job mapping appended to an existing jobs section
	TemplateKindJob TemplateKind = "job"
	// TemplateKindStep is a single step appended to an existing steps sequence
	TemplateKindStep TemplateKind = "step"
)

// ParseTemplateKind validates and normalizes a template kind string
func ParseTemplateKind(s string) (TemplateKind, error) {
	switch TemplateKind(strings.ToLower(strings.TrimSpace(s))) {
	case TemplateKindWorkflow:
		return TemplateKindWorkflow, nil
	case TemplateKindJob:
		return TemplateKindJob, nil
	case TemplateKindStep:
		return TemplateKindStep, nil
	default:
		return "", fmt.Errorf("invalid template kind %q: must be workflow, job, or step", s)
	}
}

// TemplateMetadata carries the matching and provisioning hints attached to a
// template. All fields are optional.
type TemplateMetadata struct {
	CompatibleLanguages []string `json:"compatible_languages,omitempty" toml:"compatible_languages"`
	RequiredSecrets     []string `json:"required_secrets,omitempty" toml:"required_secrets"`
	RequiredVariables   []string `json:"required_variables,omitempty" toml:"required_variables"`
	Priority            int      `json:"priority" toml:"priority"`
}

// Template is a stored scan template. Bodies are YAML text with optional
// {assessment_types} placeholders filled at recommendation time.
type Template struct {
	ID          string           `json:"id" badgerhold:"key"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Kind        TemplateKind     `json:"kind" validate:"required,oneof=workflow job step"`
	Category    string           `json:"category" validate:"required"`
	Body        string           `json:"body" validate:"required"`
	Metadata    TemplateMetadata `json:"metadata"`
	BuiltIn     bool             `json:"built_in"` // Seeded from the template directory, protected from deletion
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// fragmentKinds maps stored template kinds onto the analyzer's fragment
// vocabulary.
var fragmentKinds = map[TemplateKind]workflow.FragmentKind{
	TemplateKindWorkflow: workflow.FragmentPipeline,
	TemplateKindJob:      workflow.FragmentJob,
	TemplateKindStep:     workflow.FragmentStep,
}

// ToFragment converts the stored template into the analyzer's fragment form.
func (t *Template) ToFragment() workflow.Fragment {
	return workflow.Fragment{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		Kind:              fragmentKinds[t.Kind],
		Category:          t.Category,
		Body:              t.Body,
		Languages:         t.Metadata.CompatibleLanguages,
		RequiredSecrets:   t.Metadata.RequiredSecrets,
		RequiredVariables: t.Metadata.RequiredVariables,
		Priority:          t.Metadata.Priority,
	}
}
