package interfaces

import (
	"context"

	"github.com/ternarybob/munio/internal/models"
)

// TemplateListOptions controls template listing
type TemplateListOptions struct {
	Kind     models.TemplateKind // Filter by kind, empty for all
	Category string              // Filter by category, empty for all
	Limit    int
	Offset   int
}

// TemplateStorage - interface for scan template persistence
type TemplateStorage interface {
	SaveTemplate(ctx context.Context, template *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*models.Template, error)
	ListTemplates(ctx context.Context, opts *TemplateListOptions) ([]*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	CountTemplates(ctx context.Context) (int, error)
}

// SecretStorage - interface for encrypted secret persistence
type SecretStorage interface {
	SaveSecret(ctx context.Context, secret *models.Secret) error
	GetSecret(ctx context.Context, id string) (*models.Secret, error)
	GetSecretByName(ctx context.Context, name string) (*models.Secret, error)
	ListSecrets(ctx context.Context) ([]*models.Secret, error)
	DeleteSecret(ctx context.Context, id string) error
}

// RunStorage - interface for analysis run persistence
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error)
	DeleteRun(ctx context.Context, id string) error
	DeleteRunsBefore(ctx context.Context, cutoffUnix int64) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	TemplateStorage() TemplateStorage
	SecretStorage() SecretStorage
	RunStorage() RunStorage
	DB() interface{}
	Close() error
}
