package models

import "time"

// Secret is a named credential referenced by scan templates, stored encrypted
// at rest. EncryptedValue is the AES-GCM ciphertext, base64 encoded; the
// plaintext never leaves the secret service except through an explicit
// decrypt call.
type Secret struct {
	ID             string    `json:"id" badgerhold:"key"`
	Name           string    `json:"name" validate:"required"`
	Description    string    `json:"description"`
	EncryptedValue string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SecretSummary is the listing view of a secret: everything except the value.
type SecretSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary strips the encrypted payload for list responses.
func (s *Secret) Summary() SecretSummary {
	return SecretSummary{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
