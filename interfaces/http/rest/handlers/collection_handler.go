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

// CollectionHandler serves collection registration and removal.
type CollectionHandler struct {
	service *services.CollectionService
	logger  *zap.Logger
}

func NewCollectionHandler(service *services.CollectionService, logger *zap.Logger) *CollectionHandler {
	return &CollectionHandler{service: service, logger: logger}
}

type createCollectionRequest struct {
	ID     string         `json:"_id" validate:"omitempty,uuid"`
	Type   string         `json:"type" validate:"required,oneof=owned standard"`
	Name   string         `json:"name" validate:"required,min=1,max=100"`
	Schema map[string]any `json:"schema" validate:"required"`
}

// Create registers a collection owned by the authenticated builder.
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}

	collection, err := h.service.Create(r.Context(), subject.DID, services.CreateCollectionInput{
		ID:     req.ID,
		Type:   domain.CollectionType(req.Type),
		Name:   req.Name,
		Schema: req.Schema,
	})
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.Created(w, collection)
}

// List returns the authenticated builder's collections.
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	collections, err := h.service.List(r.Context(), subject.DID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, collections)
}

// Read returns one collection by ID.
func (h *CollectionHandler) Read(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	collection, err := h.service.Read(r.Context(), subject.DID, chi.URLParam(r, "id"))
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, collection)
}

// Delete removes one collection, its data store, and the user references
// of its owned documents.
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), subject.DID, chi.URLParam(r, "id")); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}
