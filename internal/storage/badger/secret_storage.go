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

// SecretStorage implements the SecretStorage interface for Badger. Values are
// encrypted before they reach this layer; storage never sees plaintext.
type SecretStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSecretStorage creates a new SecretStorage instance
func NewSecretStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SecretStorage {
	return &SecretStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SecretStorage) SaveSecret(ctx context.Context, secret *models.Secret) error {
	if secret.ID == "" {
		return fmt.Errorf("secret ID is required")
	}

	now := time.Now()
	if secret.CreatedAt.IsZero() {
		secret.CreatedAt = now
	}
	secret.UpdatedAt = now

	if err := s.db.Store().Upsert(secret.ID, secret); err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}
	return nil
}

func (s *SecretStorage) GetSecret(ctx context.Context, id string) (*models.Secret, error) {
	var secret models.Secret
	if err := s.db.Store().Get(id, &secret); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("secret not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return &secret, nil
}

func (s *SecretStorage) GetSecretByName(ctx context.Context, name string) (*models.Secret, error) {
	var secrets []models.Secret
	if err := s.db.Store().Find(&secrets, badgerhold.Where("Name").Eq(name).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get secret by name: %w", err)
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("secret not found: %s", name)
	}
	return &secrets[0], nil
}

func (s *SecretStorage) ListSecrets(ctx context.Context) ([]*models.Secret, error) {
	var secrets []models.Secret
	if err := s.db.Store().Find(&secrets, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}

	result := make([]*models.Secret, len(secrets))
	for i := range secrets {
		result[i] = &secrets[i]
	}
	return result, nil
}

func (s *SecretStorage) DeleteSecret(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Secret{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
