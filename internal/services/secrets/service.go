// Package secrets manages named credentials encrypted at rest with AES-GCM.
// The encryption key lives in a file next to the data directory and is
// generated on first start.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/common"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

const keySize = 32 // AES-256

// Service implements SecretService
type Service struct {
	storage interfaces.SecretStorage
	gcm     cipher.AEAD
	logger  arbor.ILogger
}

// NewService creates a new secret service, loading or generating the
// encryption key at keyFile.
func NewService(logger arbor.ILogger, storage interfaces.SecretStorage, keyFile string) (*Service, error) {
	key, err := loadOrCreateKey(keyFile, logger)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Service{
		storage: storage,
		gcm:     gcm,
		logger:  logger,
	}, nil
}

// loadOrCreateKey reads the hex-encoded key file, generating a fresh key with
// restrictive permissions when it does not exist.
func loadOrCreateKey(keyFile string, logger arbor.ILogger) ([]byte, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		key, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("key file %s is corrupt", keyFile)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	logger.Info().Str("file", keyFile).Msg("Generated new secret encryption key")
	return key, nil
}

func (s *Service) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(sealed) < s.gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:s.gcm.NonceSize()], sealed[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

// Create encrypts and stores a new secret. Names are unique.
func (s *Service) Create(ctx context.Context, name, description, value string) (*models.Secret, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("secret name is required")
	}
	if value == "" {
		return nil, fmt.Errorf("secret value is required")
	}

	if existing, err := s.storage.GetSecretByName(ctx, name); err == nil && existing != nil {
		return nil, fmt.Errorf("secret %q already exists", name)
	}

	encrypted, err := s.encrypt(value)
	if err != nil {
		return nil, err
	}

	secret := &models.Secret{
		ID:             common.NewSecretID(),
		Name:           name,
		Description:    description,
		EncryptedValue: encrypted,
	}
	if err := s.storage.SaveSecret(ctx, secret); err != nil {
		return nil, err
	}

	s.logger.Info().Str("secret_id", secret.ID).Str("name", name).Msg("Secret created")
	return secret, nil
}

// Update re-encrypts a secret's value and description. An empty value keeps
// the stored one.
func (s *Service) Update(ctx context.Context, id, description, value string) (*models.Secret, error) {
	secret, err := s.storage.GetSecret(ctx, id)
	if err != nil {
		return nil, err
	}

	secret.Description = description
	if value != "" {
		encrypted, err := s.encrypt(value)
		if err != nil {
			return nil, err
		}
		secret.EncryptedValue = encrypted
	}

	if err := s.storage.SaveSecret(ctx, secret); err != nil {
		return nil, err
	}

	s.logger.Info().Str("secret_id", secret.ID).Msg("Secret updated")
	return secret, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Secret, error) {
	return s.storage.GetSecret(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.SecretSummary, error) {
	secrets, err := s.storage.ListSecrets(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.SecretSummary, len(secrets))
	for i, secret := range secrets {
		summaries[i] = secret.Summary()
	}
	return summaries, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteSecret(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("secret_id", id).Msg("Secret deleted")
	return nil
}

// Decrypt returns the plaintext value of a secret.
func (s *Service) Decrypt(ctx context.Context, id string) (string, error) {
	secret, err := s.storage.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	return s.decrypt(secret.EncryptedValue)
}

var _ interfaces.SecretService = (*Service)(nil)
