package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

// TemplateHandler serves the scan template catalog API
type TemplateHandler struct {
	templates interfaces.TemplateService
	logger    arbor.ILogger
}

func NewTemplateHandler(templates interfaces.TemplateService, logger arbor.ILogger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		logger:    logger,
	}
}

// templateRequest is the create/update payload
type templateRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Kind        string                  `json:"kind"`
	Category    string                  `json:"category"`
	Body        string                  `json:"body"`
	Metadata    models.TemplateMetadata `json:"metadata"`
}

// ListHandler handles GET /api/templates
func (h *TemplateHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.TemplateListOptions{
		Category: strings.ToLower(r.URL.Query().Get("category")),
		Limit:    QueryInt(r, "limit", 0),
		Offset:   QueryInt(r, "offset", 0),
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		parsed, err := models.ParseTemplateKind(kind)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Kind = parsed
	}

	templates, err := h.templates.List(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list templates")
		WriteError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// CreateHandler handles POST /api/templates
func (h *TemplateHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	kind, err := models.ParseTemplateKind(req.Kind)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	template := &models.Template{
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		Category:    req.Category,
		Body:        req.Body,
		Metadata:    req.Metadata,
	}
	if err := h.templates.Create(r.Context(), template); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, template)
}

// GetHandler handles GET /api/templates/{id}
func (h *TemplateHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/templates/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	template, err := h.templates.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, template)
}

// UpdateHandler handles PUT /api/templates/{id}
func (h *TemplateHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/templates/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	kind, err := models.ParseTemplateKind(req.Kind)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	template := &models.Template{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		Category:    req.Category,
		Body:        req.Body,
		Metadata:    req.Metadata,
	}
	if err := h.templates.Update(r.Context(), template); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, template)
}

// DeleteHandler handles DELETE /api/templates/{id}
func (h *TemplateHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r, "/api/templates/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Template ID is required")
		return
	}

	if err := h.templates.Delete(r.Context(), id); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteSuccess(w, "Template deleted")
}
