// Package api provides HTTP handlers for the stackd API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/artpar/stackd/internal/core/edge"
	"github.com/artpar/stackd/internal/core/plan"
	"github.com/artpar/stackd/internal/core/stack"
	"github.com/artpar/stackd/internal/shell/api/openapi"
	"github.com/artpar/stackd/internal/shell/docker"
	"github.com/artpar/stackd/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store      store.Store
	docker     docker.Client
	reconciler *docker.Reconciler
	logger     *slog.Logger
	baseDomain string
	portRange  edge.PortRange
	openapi    *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d docker.Client, l *slog.Logger, baseDomain string) *Handler {
	if l == nil {
		l = slog.Default()
	}

	gen := openapi.NewGenerator(
		openapi.WithTitle("Stackd API"),
		openapi.WithDescription("Single-host stack orchestrator API"),
	)
	gen.RegisterResource(openapi.ResourceInfo{
		Name:           "stacks",
		Model:          StackResponse{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
	})
	gen.RegisterResource(openapi.ResourceInfo{
		Name:         "events",
		Model:        EventResponse{},
		SupportsFind: true,
	})

	return &Handler{
		store:      s,
		docker:     d,
		reconciler: docker.NewReconciler(d, l),
		logger:     l,
		baseDomain: baseDomain,
		portRange:  edge.DefaultPortRange(),
		openapi:    gen,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// OpenAPI spec
	r.Get("/openapi.json", h.openapi.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/validate", h.handleValidate)

		r.Route("/stacks", func(r chi.Router) {
			r.Post("/", h.handleCreateStack)
			r.Get("/", h.handleListStacks)
			r.Get("/{id}", h.handleGetStack)
			r.Put("/{id}", h.handleUpdateStack)
			r.Delete("/{id}", h.handleDeleteStack)
			r.Post("/{id}/apply", h.handleApplyStack)
			r.Post("/{id}/stop", h.handleStopStack)
			r.Get("/{id}/status", h.handleStackStatus)
			r.Get("/{id}/events", h.handleListEvents)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check database (implicit - if we got here, store was created)
	checks["database"] = "ok"

	// Check Docker
	if err := h.docker.Ping(); err != nil {
		checks["docker"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["docker"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Validate Handler
// =============================================================================

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	spec, err := stack.Parse(req.Source)
	if err != nil {
		h.writeJSON(w, http.StatusOK, ValidateResponse{
			Valid:  false,
			Errors: []string{err.Error()},
		})
		return
	}

	resp := ValidateResponse{
		Valid:     true,
		Variables: stack.ExtractVariables(req.Source),
	}
	for _, svc := range spec.Services {
		resp.Services = append(resp.Services, svc.Name)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleCreateStack(w http.ResponseWriter, r *http.Request) {
	var req CreateStackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", "validation_error")
		return
	}
	if req.Source == "" {
		h.writeError(w, http.StatusBadRequest, "source is required", "validation_error")
		return
	}

	// The document must parse and validate before it is accepted
	spec, err := stack.Parse(req.Source)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_document")
		return
	}

	stk, err := domain.NewStack(req.Name, req.Source, req.Variables)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	stk.EnvFiles = req.EnvFiles
	stk.Resources = stack.CalculateResources(spec)

	if req.Hostname != "" {
		stk.Hostname = req.Hostname
		port, err := h.allocateEdgePort(r)
		if err != nil {
			h.writeError(w, http.StatusConflict, err.Error(), "no_ports_available")
			return
		}
		stk.EdgePort = port
	}

	if err := h.store.CreateStack(r.Context(), stk); err != nil {
		if errors.Is(err, store.ErrDuplicateHostname) {
			h.writeError(w, http.StatusConflict, "hostname is already in use", "hostname_in_use")
			return
		}
		h.logger.Error("failed to create stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create stack", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, h.stackToResponse(stk))
}

func (h *Handler) handleGetStack(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.stackToResponse(stk))
}

func (h *Handler) handleListStacks(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}

	stacks, err := h.store.ListStacks(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list stacks", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list stacks", "internal_error")
		return
	}

	resp := ListStacksResponse{
		Stacks: make([]StackResponse, 0, len(stacks)),
		Total:  len(stacks),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range stacks {
		resp.Stacks = append(resp.Stacks, h.stackToResponse(&stacks[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateStack(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	var req UpdateStackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if req.Source != "" {
		spec, err := stack.Parse(req.Source)
		if err != nil {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_document")
			return
		}
		stk.Source = req.Source
		stk.Resources = stack.CalculateResources(spec)
	}
	if req.Variables != nil {
		stk.Variables = req.Variables
	}
	if req.EnvFiles != nil {
		stk.EnvFiles = req.EnvFiles
	}
	if req.Hostname != nil {
		stk.Hostname = *req.Hostname
		if stk.Hostname != "" && stk.EdgePort == 0 {
			port, err := h.allocateEdgePort(r)
			if err != nil {
				h.writeError(w, http.StatusConflict, err.Error(), "no_ports_available")
				return
			}
			stk.EdgePort = port
		}
		if stk.Hostname == "" {
			stk.EdgePort = 0
		}
	}

	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		if errors.Is(err, store.ErrDuplicateHostname) {
			h.writeError(w, http.StatusConflict, "hostname is already in use", "hostname_in_use")
			return
		}
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, h.stackToResponse(stk))
}

func (h *Handler) handleDeleteStack(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	if err := stk.Transition(domain.StatusRemoving); err != nil {
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	if err := h.reconciler.Destroy(r.Context(), stk.ID); err != nil {
		h.logger.Error("failed to destroy stack", "stack_id", stk.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to destroy stack", "docker_error")
		return
	}

	h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventStackDestroyed, "", "Stack destroyed"))

	if err := h.store.DeleteStack(r.Context(), stk.ID); err != nil {
		h.logger.Error("failed to delete stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete stack", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApplyStack(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	if err := stk.Transition(domain.StatusApplying); err != nil {
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	spec, err := stack.Parse(stk.Source)
	if err != nil {
		h.failStack(r, stk, "document parse failed: "+err.Error())
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_document")
		return
	}

	result, err := h.reconciler.Apply(r.Context(), stk, spec)
	if err != nil {
		h.failStack(r, stk, err.Error())
		h.writeError(w, http.StatusInternalServerError, "failed to apply stack: "+err.Error(), "apply_error")
		return
	}

	for _, action := range result.Actions {
		name := plan.ContainerName(stk.ID, action.ServiceName)
		switch action.Kind {
		case plan.ActionCreate:
			h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventContainerCreated, action.ServiceName,
				domain.EventMessage(domain.EventContainerCreated, name)))
		case plan.ActionRecreate:
			h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventContainerRecreated, action.ServiceName,
				domain.EventMessage(domain.EventContainerRecreated, name)))
		case plan.ActionRemove:
			h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventContainerRemoved, action.ServiceName,
				domain.EventMessage(domain.EventContainerRemoved, name)))
		}
	}

	stk.Containers = result.Containers
	if err := stk.Transition(domain.StatusRunning); err != nil {
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventStackApplied, "", "Stack applied"))

	h.writeJSON(w, http.StatusOK, h.stackToResponse(stk))
}

func (h *Handler) handleStopStack(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	if err := stk.Transition(domain.StatusStopping); err != nil {
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	spec, err := stack.Parse(stk.Source)
	if err != nil {
		h.failStack(r, stk, "document parse failed: "+err.Error())
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_document")
		return
	}

	if err := h.reconciler.Stop(r.Context(), stk, spec); err != nil {
		h.failStack(r, stk, err.Error())
		h.writeError(w, http.StatusInternalServerError, "failed to stop stack: "+err.Error(), "docker_error")
		return
	}

	if err := stk.Transition(domain.StatusStopped); err != nil {
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to update stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update stack", "internal_error")
		return
	}

	h.recordEvent(r, domain.NewEvent(stk.ID, domain.EventStackStopped, "", "Stack stopped"))

	h.writeJSON(w, http.StatusOK, h.stackToResponse(stk))
}

func (h *Handler) handleStackStatus(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	status, err := h.reconciler.Status(r.Context(), stk.ID)
	if err != nil {
		h.logger.Error("failed to get stack status", "stack_id", stk.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get stack status", "docker_error")
		return
	}

	resp := StackStatusResponse{
		Status:     string(stk.Status),
		Readiness:  string(status.Readiness),
		Containers: make([]ContainerStatusResponse, 0, len(status.Containers)),
	}
	for i, c := range status.Containers {
		resp.Containers = append(resp.Containers, ContainerStatusResponse{
			ServiceName: c.ServiceName,
			ContainerID: c.ID,
			Status:      c.Status,
			Readiness:   string(status.Verdicts[i].Level),
			Restarts:    status.Verdicts[i].Restarts,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	stk, ok := h.lookupStack(w, r)
	if !ok {
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	var eventType *string
	if t := r.URL.Query().Get("type"); t != "" {
		eventType = &t
	}

	events, err := h.store.ListEvents(r.Context(), stk.ID, limit, eventType)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list events", "internal_error")
		return
	}

	resp := ListEventsResponse{
		Events: make([]EventResponse, 0, len(events)),
		Total:  len(events),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, EventResponse{
			ID:        e.ID,
			StackID:   e.StackID,
			Type:      string(e.Type),
			Service:   e.Service,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// lookupStack resolves the {id} URL parameter, trying the ID first and the
// slug as a fallback. Writes the error response itself when not found.
func (h *Handler) lookupStack(w http.ResponseWriter, r *http.Request) (*domain.Stack, bool) {
	id := chi.URLParam(r, "id")

	stk, err := h.store.GetStack(r.Context(), id)
	if err == nil {
		return stk, true
	}
	if !isNotFound(err) {
		h.logger.Error("failed to get stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get stack", "internal_error")
		return nil, false
	}

	stk, err = h.store.GetStackBySlug(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "stack not found", "stack_not_found")
			return nil, false
		}
		h.logger.Error("failed to get stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get stack", "internal_error")
		return nil, false
	}

	return stk, true
}

// allocateEdgePort picks the first free host port in the edge range.
func (h *Handler) allocateEdgePort(r *http.Request) (int, error) {
	used, err := h.store.GetUsedEdgePorts(r.Context())
	if err != nil {
		return 0, err
	}
	return edge.AllocatePort(used, h.portRange)
}

// failStack transitions to failed and persists; errors are logged only
// because the caller is already on an error path.
func (h *Handler) failStack(r *http.Request, stk *domain.Stack, message string) {
	if err := stk.TransitionToFailed(message); err != nil {
		h.logger.Error("failed to transition stack to failed", "stack_id", stk.ID, "error", err)
		return
	}
	if err := h.store.UpdateStack(r.Context(), stk); err != nil {
		h.logger.Error("failed to persist failed stack", "stack_id", stk.ID, "error", err)
	}
}

// recordEvent persists an apply-history event, logging on failure.
func (h *Handler) recordEvent(r *http.Request, event *domain.Event) {
	if err := h.store.RecordEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to record event",
			"stack_id", event.StackID,
			"type", event.Type,
			"error", err,
		)
	}
}

func (h *Handler) stackToResponse(s *domain.Stack) StackResponse {
	resp := StackResponse{
		ID:        s.ID,
		Name:      s.Name,
		Slug:      s.Slug,
		Source:    s.Source,
		Variables: s.Variables,
		EnvFiles:  s.EnvFiles,
		Hostname:  s.Hostname,
		EdgePort:  s.EdgePort,
		Status:    string(s.Status),
		Resources: ResourcesResponse{
			CPUCores: s.Resources.CPUCores,
			MemoryMB: s.Resources.MemoryMB,
			DiskMB:   s.Resources.DiskMB,
		},
		ErrorMessage: s.ErrorMessage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		AppliedAt:    s.AppliedAt,
		StoppedAt:    s.StoppedAt,
	}
	if resp.Variables == nil {
		resp.Variables = make(map[string]string)
	}
	resp.Containers = make([]ContainerResponse, 0, len(s.Containers))
	for _, c := range s.Containers {
		resp.Containers = append(resp.Containers, ContainerResponse{
			ServiceName: c.ServiceName,
			ContainerID: c.ID,
			Image:       c.Image,
			Status:      c.Status,
		})
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
