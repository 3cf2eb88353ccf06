package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
)

// SecretHandler serves the encrypted secret API
type SecretHandler struct {
	secrets interfaces.SecretService
	logger  arbor.ILogger
}

func NewSecretHandler(secrets interfaces.SecretService, logger arbor.ILogger) *SecretHandler {
	return &SecretHandler{
		secrets: secrets,
		logger:  logger,
	}
}

type secretRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

// ListHandler handles GET /api/secrets. Values are never included.
func (h *SecretHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	secrets, err := h.secrets.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list secrets")
		WriteError(w, http.StatusInternalServerError, "Failed to list secrets")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"secrets": secrets,
		"count":   len(secrets),
	})
}

// CreateHandler handles POST /api/secrets
func (h *SecretHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req secretRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	secret, err := h.secrets.Create(r.Context(), req.Name, req.Description, req.Value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, secret.Summary())
}

// GetHandler handles GET /api/secrets/{id} and GET /api/secrets/{id}/decrypt
func (h *SecretHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/decrypt") {
		h.decryptHandler(w, r)
		return
	}

	id := PathID(r, "/api/secrets/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Secret ID is required")
		return
	}

	secret, err := h.secrets.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, secret.Summary())
}

// decryptHandler returns a secret's plaintext value
func (h *SecretHandler) decryptHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/secrets/"), "/decrypt")
	id = strings.Trim(id, "/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Secret ID is required")
		return
	}

	value, err := h.secrets.Decrypt(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().Str("secret_id", id).Msg("Secret decrypted")
	WriteJSON(w, http.StatusOK, map[string]string{
		"id":    id,
		"value": value,
	})
}

// UpdateHandler handles PUT /api/secrets/{id}
func (h *SecretHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/secrets/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Secret ID is required")
		return
	}

	var req secretRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	secret, err := h.secrets.Update(r.Context(), id, req.Description, req.Value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, secret.Summary())
}

// DeleteHandler handles DELETE /api/secrets/{id}
func (h *SecretHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/secrets/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Secret ID is required")
		return
	}

	if err := h.secrets.Delete(r.Context(), id); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteSuccess(w, "Secret deleted")
}
