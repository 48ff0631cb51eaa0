package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"nildb/application/services"
	"nildb/domain"
	"nildb/pkg/auth"
	"nildb/pkg/common"
	"nildb/pkg/errors"
)

// BuilderHandler serves builder registration and the /me surface.
type BuilderHandler struct {
	service *services.BuilderService
	logger  *zap.Logger
}

func NewBuilderHandler(service *services.BuilderService, logger *zap.Logger) *BuilderHandler {
	return &BuilderHandler{service: service, logger: logger}
}

type registerBuilderRequest struct {
	DID  string `json:"did" validate:"required"`
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type setBuilderNameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// Register creates the builder record for the authenticated subject.
func (h *BuilderHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerBuilderRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}

	id, err := domain.ParseDID(req.DID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	if !id.Equal(subject.DID) {
		common.Fail(w, errors.Forbidden("did must match the authenticated subject"))
		return
	}

	builder, err := h.service.Register(r.Context(), id, req.Name)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.Created(w, builder)
}

// Profile returns the authenticated builder's record.
func (h *BuilderHandler) Profile(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	builder, err := h.service.Profile(r.Context(), subject.DID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, builder)
}

// SetName updates the authenticated builder's display name.
func (h *BuilderHandler) SetName(w http.ResponseWriter, r *http.Request) {
	var req setBuilderNameRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.SetName(r.Context(), subject.DID, req.Name); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// Remove deletes the authenticated builder and cascades over its
// collections, queries, data stores, and user references.
func (h *BuilderHandler) Remove(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), subject.DID); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}
