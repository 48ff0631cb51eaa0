package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nildb/application/services"
	"nildb/domain"
	"nildb/pkg/auth"
	"nildb/pkg/common"
)

// QueryHandler serves saved-query registration and execution.
type QueryHandler struct {
	service *services.QueryService
	logger  *zap.Logger
}

func NewQueryHandler(service *services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{service: service, logger: logger}
}

type addQueryRequest struct {
	ID         string                          `json:"_id" validate:"omitempty,uuid"`
	Name       string                          `json:"name" validate:"required,min=1,max=100"`
	Collection string                          `json:"collection" validate:"required,uuid"`
	Variables  map[string]domain.QueryVariable `json:"variables"`
	Pipeline   []map[string]any                `json:"pipeline" validate:"required,min=1"`
}

type removeQueryRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type runQueryRequest struct {
	ID        string         `json:"_id" validate:"required,uuid"`
	Variables map[string]any `json:"variables"`
}

type runStatusRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

// Add registers a saved query for the authenticated builder.
func (h *QueryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addQueryRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	query, err := h.service.Add(r.Context(), subject.DID, services.AddQueryInput{
		ID:         req.ID,
		Name:       req.Name,
		Collection: req.Collection,
		Variables:  req.Variables,
		Pipeline:   req.Pipeline,
	})
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.Created(w, query)
}

// List returns the authenticated builder's queries.
func (h *QueryHandler) List(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	queries, err := h.service.List(r.Context(), subject.DID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, queries)
}

// Read returns one query by ID.
func (h *QueryHandler) Read(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	query, err := h.service.Read(r.Context(), subject.DID, chi.URLParam(r, "id"))
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, query)
}

// Remove deletes one query by ID. In-flight runs are left to finish.
func (h *QueryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req removeQueryRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), subject.DID, req.ID); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// Run starts a background run and returns its ID immediately.
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runQueryRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	runID, err := h.service.RunBackground(r.Context(), subject.DID, req.ID, req.Variables)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, runID)
}

// Job returns the status and result of one background run.
func (h *QueryHandler) Job(w http.ResponseWriter, r *http.Request) {
	var req runStatusRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	run, err := h.service.Run(r.Context(), subject.DID, req.ID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, run)
}
