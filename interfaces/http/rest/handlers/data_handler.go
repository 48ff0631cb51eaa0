package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"nildb/application/services"
	"nildb/domain"
	"nildb/pkg/auth"
	"nildb/pkg/common"
	"nildb/pkg/observability"
)

// DataHandler serves the data plane: uploads, updates, deletes, reads.
type DataHandler struct {
	service *services.DataService
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewDataHandler(service *services.DataService, metrics *observability.Metrics, logger *zap.Logger) *DataHandler {
	return &DataHandler{service: service, metrics: metrics, logger: logger}
}

type aclRequest struct {
	Grantee string `json:"grantee" validate:"required"`
	Read    bool   `json:"read"`
	Write   bool   `json:"write"`
	Execute bool   `json:"execute"`
}

func (a *aclRequest) toEntry() (*domain.AclEntry, error) {
	if a == nil {
		return nil, nil
	}
	grantee, err := domain.ParseDID(a.Grantee)
	if err != nil {
		return nil, err
	}
	return &domain.AclEntry{
		Grantee: grantee,
		Read:    a.Read,
		Write:   a.Write,
		Execute: a.Execute,
	}, nil
}

type createOwnedRequest struct {
	Collection string            `json:"collection" validate:"required,uuid"`
	Owner      string            `json:"owner" validate:"required"`
	Data       []domain.Document `json:"data" validate:"required,min=1"`
	Acl        *aclRequest       `json:"acl" validate:"omitempty"`
}

type createStandardRequest struct {
	Collection string            `json:"collection" validate:"required,uuid"`
	Data       []domain.Document `json:"data" validate:"required,min=1"`
}

type filterRequest struct {
	Collection string         `json:"collection" validate:"required,uuid"`
	Filter     map[string]any `json:"filter"`
}

type updateRequest struct {
	Collection string         `json:"collection" validate:"required,uuid"`
	Filter     map[string]any `json:"filter"`
	Update     map[string]any `json:"update" validate:"required"`
}

type tailRequest struct {
	Collection string `json:"collection" validate:"required,uuid"`
	Limit      int64  `json:"limit" validate:"omitempty,min=1"`
}

type collectionRequest struct {
	Collection string `json:"collection" validate:"required,uuid"`
}

type updateResponse struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
}

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// CreateOwned uploads user-owned documents into an owned collection.
func (h *DataHandler) CreateOwned(w http.ResponseWriter, r *http.Request) {
	var req createOwnedRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	owner, err := domain.ParseDID(req.Owner)
	if err != nil {
		common.Fail(w, err)
		return
	}
	acl, err := req.Acl.toEntry()
	if err != nil {
		common.Fail(w, err)
		return
	}

	result, err := h.service.CreateOwned(r.Context(), subject.DID, req.Collection, owner, req.Data, acl)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("create")
	common.OK(w, result)
}

// CreateStandard uploads documents into a standard collection.
func (h *DataHandler) CreateStandard(w http.ResponseWriter, r *http.Request) {
	var req createStandardRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	result, err := h.service.CreateStandard(r.Context(), subject.DID, req.Collection, req.Data)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("create")
	common.OK(w, result)
}

// Update applies an update spec to every matching document.
func (h *DataHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	matched, modified, err := h.service.Update(r.Context(), subject.DID, req.Collection, req.Filter, req.Update)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("update")
	common.OK(w, updateResponse{Matched: matched, Modified: modified})
}

// Delete removes every document matching a non-empty filter.
func (h *DataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	deleted, err := h.service.Delete(r.Context(), subject.DID, req.Collection, req.Filter)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("delete")
	common.OK(w, deleteResponse{Deleted: deleted})
}

// Read returns every document matching the filter.
func (h *DataHandler) Read(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	docs, err := h.service.Find(r.Context(), subject.DID, req.Collection, req.Filter)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("read")
	common.OK(w, docs)
}

// Tail returns the most recently created documents, newest first.
func (h *DataHandler) Tail(w http.ResponseWriter, r *http.Request) {
	var req tailRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	docs, err := h.service.Tail(r.Context(), subject.DID, req.Collection, req.Limit)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("read")
	common.OK(w, docs)
}

// Flush removes every document of the collection.
func (h *DataHandler) Flush(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	deleted, err := h.service.Flush(r.Context(), subject.DID, req.Collection)
	if err != nil {
		common.Fail(w, err)
		return
	}
	h.metrics.DocumentOp("delete")
	common.OK(w, deleteResponse{Deleted: deleted})
}
