package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - analysis progress streaming
	mux.HandleFunc("/ws", s.app.WSHandler.WebSocketHandler)

	// API routes - Templates (scan template catalog)
	mux.HandleFunc("/api/templates", s.handleTemplatesRoute)
	mux.HandleFunc("/api/templates/", s.handleTemplateRoutes)

	// API routes - Secrets (encrypted credential store)
	mux.HandleFunc("/api/secrets", s.handleSecretsRoute)
	mux.HandleFunc("/api/secrets/", s.handleSecretRoutes)

	// API routes - Analysis
	mux.HandleFunc("/api/analyze", s.app.AnalysisHandler.AnalyzeHandler) // POST - run batch analysis
	mux.HandleFunc("/api/runs", s.app.AnalysisHandler.ListRunsHandler)   // GET - list recent runs
	mux.HandleFunc("/api/runs/", s.app.AnalysisHandler.GetRunHandler)    // GET /{id}
	mux.HandleFunc("/api/preview", s.app.AnalysisHandler.PreviewHandler) // POST - preview a recommendation
	mux.HandleFunc("/api/apply", s.app.AnalysisHandler.ApplyHandler)     // POST - apply via branch + PR

	// API routes - GitHub
	mux.HandleFunc("/api/github/test", s.app.GitHubHandler.TestConnectionHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleTemplatesRoute routes /api/templates requests (list and create)
func (s *Server) handleTemplatesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.TemplateHandler.ListHandler,
		s.app.TemplateHandler.CreateHandler)
}

// handleTemplateRoutes routes /api/templates/{id} requests
func (s *Server) handleTemplateRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.TemplateHandler.GetHandler,
		s.app.TemplateHandler.UpdateHandler,
		s.app.TemplateHandler.DeleteHandler)
}

// handleSecretsRoute routes /api/secrets requests (list and create)
func (s *Server) handleSecretsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.SecretHandler.ListHandler,
		s.app.SecretHandler.CreateHandler)
}

// handleSecretRoutes routes /api/secrets/{id} requests, including the
// /decrypt subpath
func (s *Server) handleSecretRoutes(w http.ResponseWriter, r *http.Request) {
	decryptRoutes := []PathSuffixRouter{
		{Suffix: "/decrypt", Handler: func(w http.ResponseWriter, r *http.Request) {
			RouteByMethod(w, r, MethodRouter{"GET": s.app.SecretHandler.GetHandler})
		}},
	}
	if strings.HasSuffix(r.URL.Path, "/decrypt") && RouteByPathSuffix(w, r, "/api/secrets/", decryptRoutes) {
		return
	}

	RouteResourceItem(w, r,
		s.app.SecretHandler.GetHandler,
		s.app.SecretHandler.UpdateHandler,
		s.app.SecretHandler.DeleteHandler)
}
