package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
)

// GitHubHandler exposes GitHub connectivity checks
type GitHubHandler struct {
	connector interfaces.GitHubConnector
	logger    arbor.ILogger
}

func NewGitHubHandler(connector interfaces.GitHubConnector, logger arbor.ILogger) *GitHubHandler {
	return &GitHubHandler{
		connector: connector,
		logger:    logger,
	}
}

// TestConnectionHandler handles GET /api/github/test
func (h *GitHubHandler) TestConnectionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if err := h.connector.TestConnection(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("GitHub connection test failed")
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"connected": true,
	})
}
