package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagramlab/apiserver/internal/ratelimit"
	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// DiagramHandler provides HTTP handlers for diagrams.
type DiagramHandler struct {
	diagrams *services.DiagramService
}

func NewDiagramHandler(diagrams *services.DiagramService) *DiagramHandler {
	return &DiagramHandler{diagrams: diagrams}
}

// DiagramRouter registers diagram routes. Every route requires an active
// account and sits behind the api rate-limit namespace; per-diagram
// routes additionally enforce ownership in the service. The {diagramRef}
// parameter accepts either the opaque ID or the "LAB-n" short ID.
func DiagramRouter(r chi.Router, diagrams *services.DiagramService, limiter *ratelimit.Limiter, authMW *AuthMiddleware) {
	handler := NewDiagramHandler(diagrams)

	r.Use(ratelimit.Middleware(limiter, ratelimit.NamespaceAPI), authMW.RequireAuthenticated, RequireActive)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{diagramRef}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
		r.Get("/versions", handler.Versions)
	})
}

// List returns the caller's diagrams; admins see everyone's.
func (h *DiagramHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	diagrams, err := h.diagrams.List(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list diagrams")
		return
	}
	if diagrams == nil {
		diagrams = []types.Diagram{}
	}
	writeJSON(w, http.StatusOK, diagrams)
}

type CreateDiagramRequest struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Content    json.RawMessage `json:"content"`
	Tags       []string        `json:"tags"`
	IsTemplate bool            `json:"is_template"`
}

func (h *DiagramHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateDiagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.diagrams.Create(r.Context(), services.CreateDiagramParams{
		Type:       req.Type,
		Name:       req.Name,
		Content:    req.Content,
		Tags:       req.Tags,
		IsTemplate: req.IsTemplate,
	}, user)
	if err != nil {
		h.respondError(w, err, "failed to create diagram")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *DiagramHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	diagram, err := h.diagrams.Get(r.Context(), chi.URLParam(r, "diagramRef"), user)
	if err != nil {
		h.respondError(w, err, "failed to fetch diagram")
		return
	}
	writeJSON(w, http.StatusOK, diagram)
}

type UpdateDiagramRequest struct {
	Name       *string         `json:"name"`
	Content    json.RawMessage `json:"content"`
	Tags       *[]string       `json:"tags"`
	IsTemplate *bool           `json:"is_template"`
}

func (h *DiagramHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateDiagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.diagrams.Update(r.Context(), chi.URLParam(r, "diagramRef"), services.UpdateDiagramParams{
		Name:       req.Name,
		Content:    req.Content,
		Tags:       req.Tags,
		IsTemplate: req.IsTemplate,
	}, user)
	if err != nil {
		h.respondError(w, err, "failed to update diagram")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *DiagramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.diagrams.Delete(r.Context(), chi.URLParam(r, "diagramRef"), user); err != nil {
		h.respondError(w, err, "failed to delete diagram")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Versions returns the diagram's version history, oldest first.
func (h *DiagramHandler) Versions(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	versions, err := h.diagrams.Versions(r.Context(), chi.URLParam(r, "diagramRef"), user)
	if err != nil {
		h.respondError(w, err, "failed to list versions")
		return
	}
	if versions == nil {
		versions = []types.DiagramVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *DiagramHandler) respondError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "diagram not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrInvalidDiagramType):
		writeError(w, http.StatusBadRequest, "invalid diagram type")
	case errors.Is(err, services.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "name is required")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
